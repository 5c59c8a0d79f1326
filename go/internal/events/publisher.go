package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// eventNamespace seeds deterministic event ids so JetStream can drop duplicates.
var eventNamespace = uuid.MustParse("6f1c0a43-5f0e-4d55-9a43-2f4c7e1e8b10")

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	DuplicateWindow time.Duration // Window for duplicate detection
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "TOWER_EVENTS",
		SubjectPrefix:   "tower.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 10 * time.Minute,
	}
}

// msgPublisher is the slice of jetstream.JetStream the publisher needs.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher emits engine events to a JetStream stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     msgPublisher
	config JetStreamConfig
}

func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name("idoltower-viewer"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Tower viewer engine events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  cfg.DuplicateWindow,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

// CollectionReady publishes that a building's cooldown ran out.
func (p *JetStreamPublisher) CollectionReady(ctx context.Context, sessionID string, id models.BuildingID, at time.Time) error {
	payload := CollectionReadyPayload{BuildingID: id.String(), ReadyAt: at.UTC()}
	key := sessionID + "/" + id.String() + "/" + strconv.FormatInt(at.UnixMilli(), 10)
	return p.publish(ctx, EventTypeCollectionReady, sessionID, key, payload)
}

// ConstructionFinished publishes that a finish request for a building succeeded.
func (p *JetStreamPublisher) ConstructionFinished(ctx context.Context, sessionID string, id models.BuildingID, at time.Time) error {
	payload := ConstructionFinishedPayload{BuildingID: id.String(), FinishedAt: at.UTC()}
	key := sessionID + "/" + id.String() + "/finished/" + strconv.FormatInt(at.UnixMilli(), 10)
	return p.publish(ctx, EventTypeConstructionFinished, sessionID, key, payload)
}

func (p *JetStreamPublisher) publish(ctx context.Context, eventType, sessionID, key string, payload any) error {
	eventID := uuid.NewSHA1(eventNamespace, []byte(eventType+"/"+key)).String()
	subject := Subject(p.config.SubjectPrefix, eventType)

	data, err := json.Marshal(Envelope{
		EventID:   eventID,
		EventType: eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{eventType},
			"Session-ID": []string{sessionID},
			"Event-ID":   []string{eventID},
		},
	},
		jetstream.WithMsgID(eventID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", eventID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published to JetStream")
	return nil
}

// Close drains the NATS connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}

// Subject builds the subject an event type is published on.
func Subject(prefix, eventType string) string {
	return fmt.Sprintf("%s.%s", prefix, eventType)
}
