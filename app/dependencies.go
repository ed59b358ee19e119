package app

import (
	"context"
	"fmt"

	"github.com/tyson-yobot/command-center-sub002/config"
	"github.com/tyson-yobot/command-center-sub002/repositories"
	"github.com/tyson-yobot/command-center-sub002/repositories/postgres"
	"github.com/tyson-yobot/command-center-sub002/services/knowledge"
	"github.com/tyson-yobot/command-center-sub002/services/providers"
	"github.com/tyson-yobot/command-center-sub002/services/providers/openai"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repositories
	Knowledge repositories.KnowledgeRepository

	// Language model provider; nil when no credential is configured
	Completer providers.Completer

	// Services
	KnowledgeService *knowledge.Service
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initProvider(cfg)

	deps.KnowledgeService = knowledge.NewService(
		deps.Knowledge,
		deps.Completer,
		cfg.Retrieval,
		logger,
	)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens the knowledge store connection, ensures the schema and
// builds the repository
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.NewDB(cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	d.DB = db

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	d.Knowledge = postgres.NewKnowledgeRepository(db, d.Logger)
	d.Logger.Info("knowledge repository initialized")
	return nil
}

// initProvider builds the language-model adapter when a credential is
// present. An absent credential is not an error: the service degrades to
// rule-based answers.
func (d *Dependencies) initProvider(cfg *config.Config) {
	if !cfg.OpenAI.Configured() {
		d.Logger.Warn("no language model configured, answers will be rule-based only")
		return
	}

	d.Completer = openai.New(providers.ProviderConfig{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Timeout:     cfg.OpenAI.Timeout,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		MaxRetries:  cfg.OpenAI.MaxRetries,
	})
	d.Logger.Info("registered OpenAI provider", zap.String("model", cfg.OpenAI.Model))
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
