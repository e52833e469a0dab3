package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/curator/internal/anthropic"
	"github.com/MikeSquared-Agency/curator/internal/api"
	"github.com/MikeSquared-Agency/curator/internal/config"
	"github.com/MikeSquared-Agency/curator/internal/enrich"
	"github.com/MikeSquared-Agency/curator/internal/hermes"
	"github.com/MikeSquared-Agency/curator/internal/ingest"
	"github.com/MikeSquared-Agency/curator/internal/llm"
	"github.com/MikeSquared-Agency/curator/internal/metrics"
	"github.com/MikeSquared-Agency/curator/internal/openai"
	"github.com/MikeSquared-Agency/curator/internal/prompt"
	"github.com/MikeSquared-Agency/curator/internal/rowstore"
	"github.com/MikeSquared-Agency/curator/internal/session"
	"github.com/MikeSquared-Agency/curator/internal/slack"
	"github.com/MikeSquared-Agency/curator/internal/store"
	"github.com/MikeSquared-Agency/curator/internal/submit"
)

const submitBackoff = 500 * time.Millisecond

var inputFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := setupLogging(cfg.LogLevel)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&inputFile, "input", "i", "", "CSV or XLSX file to load at startup")
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("curator starting", "port", cfg.Port, "provider", cfg.Provider)

	var source [][]string
	if inputFile != "" {
		var err error
		if source, err = ingest.ReadFile(inputFile); err != nil {
			return err
		}
	}

	completer, err := newCompleter(cfg, logger)
	if err != nil {
		return err
	}
	enricher, err := enrich.New(completer, cfg.EnrichTimeout, logger)
	if err != nil {
		return err
	}

	instr, err := prompt.Load(cfg.InstructionFile)
	if err != nil {
		return err
	}

	m := metrics.New()

	var (
		sinks     []submit.Submitter
		listeners []rowstore.Listener
	)

	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, submit.Named("postgres", db))
		logger.Info("database connected")
	}

	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return err
		}
		defer hermesClient.Close()
		sinks = append(sinks, submit.Named("nats", hermes.SubmissionSink{Pub: hermesClient}))
		listeners = append(listeners, hermes.StatusListener(hermesClient, logger))
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		sinks = append(sinks, submit.Named("slack", slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)))
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	var submitter submit.Submitter
	if !cfg.HasSinks() {
		logger.Warn("no submission backend configured, using simulated backend", "delay", cfg.SubmitDelay)
		submitter = submit.Simulated{Delay: cfg.SubmitDelay, Logger: logger}
	} else {
		submitter = submit.Retrying{
			Next:     submit.Fanout(sinks),
			Attempts: cfg.SubmitAttempts,
			Backoff:  submitBackoff,
			Logger:   logger,
		}
	}

	sess := session.New(session.Deps{
		Enricher:      enricher,
		Submitter:     submitter,
		Instructions:  instr,
		Metrics:       m,
		Listeners:     listeners,
		SubmitTimeout: cfg.SubmitTimeout,
	}, logger)

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectInstructionSet, hermes.HandleInstructionUpdate(sess, logger)); err != nil {
			return err
		}
	}

	srv := api.NewServer(api.Options{
		Port:        cfg.Port,
		APIToken:    cfg.APIToken,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     m.Handler(),
	}, sess, logger)
	if cfg.APIToken == "" {
		logger.Warn("CURATOR_API_TOKEN not set, API is unauthenticated")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })
	if source != nil {
		g.Go(func() error {
			v, err := sess.Load(gctx, source)
			if err != nil {
				return fmt.Errorf("load %s: %w", inputFile, err)
			}
			logger.Info("input loaded", "file", inputFile, "rows", len(v.Rows))
			return nil
		})
	}

	logger.Info("curator ready", "port", cfg.Port)
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("curator stopped")
	return err
}

func newCompleter(cfg config.Config, logger *slog.Logger) (llm.Completer, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		logger.Info("anthropic client ready", "model", cfg.AnthropicModel)
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger), nil
	default:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY not set, requests go out unauthenticated", "base_url", cfg.OpenAIBaseURL)
		}
		logger.Info("openai-compatible client ready", "model", cfg.OpenAIModel, "base_url", cfg.OpenAIBaseURL)
		return openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.EnrichTimeout,
		}, logger), nil
	}
}
