package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jonathan/pain-assessment/internal/config"
	"github.com/jonathan/pain-assessment/internal/db"
	"github.com/jonathan/pain-assessment/internal/llm"
	"github.com/jonathan/pain-assessment/internal/notify"
	"github.com/jonathan/pain-assessment/internal/server"
	"github.com/jonathan/pain-assessment/internal/server/ratelimit"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assessment backend",
	Long: `Start an HTTP server that validates submitted assessments, streams an AI clinical
summary back as Server-Sent Events, stores the record and notifies the clinic.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default $PORT or 8080)")
	rootCmd.AddCommand(serveCmd)
}

// llmConfig picks the provider defaults and applies a model override to the chosen tier.
func llmConfig(cfg *config.ServerConfig) (*llm.Config, llm.ModelTier, error) {
	provider, err := llm.ParseProvider(cfg.LLMProvider)
	if err != nil {
		return nil, "", err
	}
	tier, err := llm.ParseTier(cfg.LLMTier)
	if err != nil {
		return nil, "", err
	}

	llmCfg := llm.DefaultGeminiConfig()
	if provider == llm.ProviderOpenAI {
		llmCfg = llm.DefaultOpenAIConfig()
	}
	if cfg.LLMModel != "" {
		llmCfg.Models[tier] = cfg.LLMModel
	}
	return llmCfg, tier, nil
}

// buildNotifier wires the configured notification channels. It returns nil when none are.
func buildNotifier(cfg *config.ServerConfig, logger *slog.Logger) (*notify.Dispatcher, error) {
	var notifiers []notify.Notifier
	if cfg.EmailEnabled() {
		email, err := notify.NewEmailNotifier(notify.EmailConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			From:      cfg.SMTPFrom,
			ClinicTo:  cfg.ClinicEmail,
			ClinicBCC: cfg.ClinicBCC,
		}, notify.WithEmailLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to configure email: %w", err)
		}
		notifiers = append(notifiers, email)
	}
	if cfg.SMSEnabled() {
		sms, err := notify.NewSMSNotifier(notify.SMSConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFrom,
			To:         cfg.ClinicSMSTo,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure SMS: %w", err)
		}
		notifiers = append(notifiers, sms)
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notify.NewDispatcher(logger, notifiers...), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	llmCfg, tier, err := llmConfig(cfg)
	if err != nil {
		return err
	}
	client, err := llm.NewClient(ctx, llmCfg, cfg.LLMAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		return err
	}

	dispatcher, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	var notifier server.Dispatcher
	if dispatcher != nil {
		notifier = dispatcher
		logger.Info("serve: notifications enabled", "channels", dispatcher.Len())
	}

	var jwtService *server.JWTService
	if jwtCfg, err := config.NewJWTConfig(); err != nil {
		logger.Warn("serve: records API disabled", "reason", err)
	} else {
		jwtService = server.NewJWTService(jwtCfg)
	}

	srv, err := server.New(server.Config{
		Port:           cfg.Port,
		Store:          database,
		LLM:            client,
		Tier:           tier,
		Notifier:       notifier,
		JWT:            jwtService,
		RateLimit:      ratelimit.LoadConfig(),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("serve: starting", "port", cfg.Port, "provider", llmCfg.Provider, "model", client.GetModel(tier))
	return srv.Start(ctx)
}
