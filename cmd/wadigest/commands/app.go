package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/solvaholic/wadigest/internal/cache"
	"github.com/solvaholic/wadigest/internal/db"
	"github.com/solvaholic/wadigest/internal/digest"
	"github.com/solvaholic/wadigest/internal/events"
	"github.com/solvaholic/wadigest/internal/gateway"
	"github.com/solvaholic/wadigest/internal/llm"
	"github.com/solvaholic/wadigest/internal/logger"
	"github.com/solvaholic/wadigest/internal/normalize"
	"github.com/solvaholic/wadigest/internal/summarize"
)

// app holds the components shared by the pipeline commands
type app struct {
	db        *db.DB
	gateway   *gateway.Client
	cache     *cache.Store
	publisher *events.AMQPPublisher
	service   *digest.Service
}

type appOptions struct {
	noStore    bool
	permissive bool
	publish    bool
}

func openDB() (*db.DB, error) {
	database, err := db.Open(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

func newGateway(limiter gateway.Limiter) (*gateway.Client, error) {
	g := settings.Gateway
	opts := []gateway.Option{
		gateway.WithSendPolicy(gateway.SendGate{
			Enabled:       settings.Send.Enabled,
			SummariesOnly: settings.Send.SummariesOnly,
		}),
	}
	if limiter != nil {
		opts = append(opts, gateway.WithLimiter(limiter))
	}
	return gateway.New(gateway.Config{
		BaseURL:    g.BaseURL,
		InstanceID: g.InstanceID,
		Token:      g.Token,
		Delay:      g.Delay,
		Timeout:    g.Timeout,
	}, opts...)
}

// newApp wires gateway, normalizer, summarizer and the optional stores into
// a digest service
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{}

	var limiter gateway.Limiter
	if !opts.noStore {
		database, err := openDB()
		if err != nil {
			return nil, err
		}
		a.db = database
		limiter = database
	}

	gw, err := newGateway(limiter)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.gateway = gw

	store, err := cache.New(settings.CacheDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = store

	mode := normalize.Strict
	if opts.permissive || !settings.Summary.Strict {
		mode = normalize.Permissive
	}
	normLog := logger.Component("normalize")
	normalizer := normalize.New(normalize.Options{
		Mode:            mode,
		CommandPrefixes: settings.Summary.CommandPrefixes,
		Logger:          &normLog,
	})

	l := settings.LLM
	client := llm.New(llm.Config{APIKey: l.APIKey, BaseURL: l.BaseURL, Model: l.Model}, logger.Component("llm"))
	summarizer := summarize.New(client, summarize.Options{
		Language:    l.Language,
		Prompt:      l.Prompt,
		MaxTokens:   l.MaxTokens,
		Temperature: l.Temperature,
		Location:    time.Local,
	}, logger.Component("summarize"))

	s := settings.Summary
	svcOpts := []digest.Option{
		digest.WithConfig(digest.Config{
			TargetCount:   s.TargetCount,
			MinCount:      s.MinCount,
			MinForSummary: s.MinForSummary,
			MoreAttempts:  s.MoreAttempts,
			Model:         client.Model(),
		}),
		digest.WithCache(a.cache),
		digest.WithSender(a.gateway),
	}
	if a.db != nil {
		svcOpts = append(svcOpts, digest.WithStore(a.db))
	}

	if opts.publish && settings.Publish.AMQPURL != "" {
		pub := dialPublisher(ctx, events.Config{
			URL:        settings.Publish.AMQPURL,
			Exchange:   settings.Publish.Exchange,
			RoutingKey: settings.Publish.RoutingKey,
		})
		if pub != nil {
			a.publisher = pub
			svcOpts = append(svcOpts, digest.WithPublisher(pub))
		}
	}

	a.service = digest.New(a.gateway.Assembler(), normalizer, summarizer, svcOpts...)
	return a, nil
}

// dialPublisher connects to the broker. Events are optional, so a failure is
// logged and yields nil.
func dialPublisher(ctx context.Context, cfg events.Config) *events.AMQPPublisher {
	pub, err := events.Dial(ctx, cfg)
	if err != nil {
		log := logger.Component("app")
		log.Warn().Err(err).Msg("Summary events disabled")
		return nil
	}
	return pub
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// resolveGroup picks the chat id from the flag, then the configured active
// group
func resolveGroup(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if settings.ActiveGroup != "" {
		return settings.ActiveGroup, nil
	}
	if len(settings.Groups) > 0 {
		return settings.Groups[0], nil
	}
	return "", fmt.Errorf("no group given: use --group or set ACTIVE_GROUP_ID")
}
