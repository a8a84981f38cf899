package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openefficiency/empathaicoach/application"
	"github.com/openefficiency/empathaicoach/llm"
	"github.com/openefficiency/empathaicoach/logging"
	"github.com/openefficiency/empathaicoach/ports"
	"github.com/openefficiency/empathaicoach/r2c2"
	"github.com/openefficiency/empathaicoach/server"
	"github.com/openefficiency/empathaicoach/storage"
)

// ServeCmd starts the coaching API server
type ServeCmd struct {
	Listen    string `help:"Listen address" default:":8484" env:"EMPATHAI_LISTEN"`
	Model     string `help:"OpenAI model for coach replies" default:"gpt-4o-mini" env:"EMPATHAI_MODEL"`
	APIKey    string `help:"OpenAI API key" env:"OPENAI_API_KEY"`
	MockModel bool   `help:"Use the deterministic mock model instead of OpenAI"`
}

// Run starts the server and blocks until interrupted
func (s *ServeCmd) Run(cli *CLI) error {
	// Apply ServeCmd-specific settings with proper precedence
	if cli.settings != nil {
		if s.Listen == ":8484" {
			if _, hasEnv := os.LookupEnv("EMPATHAI_LISTEN"); !hasEnv {
				if cli.settings.Listen != "" {
					s.Listen = cli.settings.Listen
				}
			}
		}
		if s.Model == "gpt-4o-mini" {
			if _, hasEnv := os.LookupEnv("EMPATHAI_MODEL"); !hasEnv {
				if cli.settings.Model != "" {
					s.Model = cli.settings.Model
				}
			}
		}
	}

	store, err := storage.NewStore(cli.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	var model ports.CoachModel
	switch {
	case s.MockModel:
		logging.Logger.Info("using mock model")
		model = llm.NewMockModel()
	case s.APIKey == "":
		return fmt.Errorf("OPENAI_API_KEY is required unless --mock-model is set")
	default:
		model = llm.NewClient(s.APIKey, s.Model)
	}

	opts := serviceOptions(cli)
	svc := application.NewSessionService(store, model, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Logger.Info("starting coaching server", "listen", s.Listen, "model", s.Model, "mock", s.MockModel)
	return server.New(s.Listen, svc).Run(ctx)
}

// serviceOptions maps settings.json pacing overrides onto service options
func serviceOptions(cli *CLI) []application.ServiceOption {
	var opts []application.ServiceOption
	if cli.settings == nil {
		return opts
	}

	d := r2c2.DefaultDurations()
	override := false
	if cli.settings.RelationshipMinS > 0 {
		d.Relationship = time.Duration(cli.settings.RelationshipMinS) * time.Second
		override = true
	}
	if cli.settings.ReactionMinS > 0 {
		d.Reaction = time.Duration(cli.settings.ReactionMinS) * time.Second
		override = true
	}
	if cli.settings.ContentMinS > 0 {
		d.Content = time.Duration(cli.settings.ContentMinS) * time.Second
		override = true
	}
	if cli.settings.CoachingMinS > 0 {
		d.Coaching = time.Duration(cli.settings.CoachingMinS) * time.Second
		override = true
	}
	if override {
		opts = append(opts, application.WithDurations(d))
	}

	if cli.settings.EmotionWindowS > 0 {
		opts = append(opts, application.WithEmotionWindow(time.Duration(cli.settings.EmotionWindowS)*time.Second))
	}
	if cli.settings.MaxSessionS > 0 {
		opts = append(opts, application.WithMaxSessionDuration(time.Duration(cli.settings.MaxSessionS)*time.Second))
	}
	return opts
}
