package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/idoltower/go/clients/game_api_client"
	"github.com/mcdev12/idoltower/go/internal/actions"
	"github.com/mcdev12/idoltower/go/internal/config"
	"github.com/mcdev12/idoltower/go/internal/dispatch"
	"github.com/mcdev12/idoltower/go/internal/engine"
	"github.com/mcdev12/idoltower/go/internal/events"
	"github.com/mcdev12/idoltower/go/internal/layout"
	"github.com/mcdev12/idoltower/go/internal/session"
	"github.com/mcdev12/idoltower/go/internal/viewfeed"
	"github.com/rs/zerolog/log"
)

type Services struct {
	API     *game_api_client.GameApiClient
	Feed    *viewfeed.ConnectionManager
	Session *session.Session
	Actions *actions.Service
	Events  *events.JetStreamPublisher
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Transport
	api := game_api_client.NewGameApiClient(cfg.API.URL, cfg.API.Token)
	api.SetTimeout(cfg.API.Timeout)
	api.SetRateLimit(cfg.API.RateLimit, cfg.API.RateBurst)

	feed := viewfeed.NewConnectionManager(viewfeed.DefaultConnectionConfig())

	// Engine
	opts := []engine.Option{
		engine.WithPublisher(feed),
		engine.WithLayout(layout.NewBuilder(
			layout.WithMinWidth(cfg.Layout.MinWidth),
			layout.WithFallbackFootprint(cfg.Layout.FallbackFootprint),
		)),
		engine.WithDispatchOptions(dispatch.WithRequestTimeout(cfg.Dispatch.RequestTimeout)),
	}

	var publisher *events.JetStreamPublisher
	if cfg.Events.Enabled {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Events.NATSURL
		jsCfg.StreamName = cfg.Events.StreamName
		jsCfg.SubjectPrefix = cfg.Events.SubjectPrefix

		var err error
		publisher, err = events.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		opts = append(opts, engine.WithEventSink(publisher))
	}

	sess := session.New(api, opts...)

	return &Services{
		API:     api,
		Feed:    feed,
		Session: sess,
		Actions: actions.NewService(sess.WatchActions(api), sess, sess),
		Events:  publisher,
	}, nil
}

func (s *Services) Close() {
	if s.Events == nil {
		return
	}
	if err := s.Events.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to drain event publisher")
	}
}
