package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-3 * time.Second, "0s"},
		{time.Millisecond, "1s"},
		{1500 * time.Millisecond, "2s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m 0s"},
		{59*time.Second + time.Millisecond, "1m 0s"},
		{125 * time.Second, "2m 5s"},
		{61 * time.Minute, "61m 0s"},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRemaining(tt.in))
		})
	}
}
