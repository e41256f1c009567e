package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ogulcanaydogan/ai-spend-guardian/internal/config"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/alerting"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/collector"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/costapi"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/cronguard"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/pricing"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/report"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/retry"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/secrets"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/storage"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "asg",
	Short: "AI Spend Guardian - provider cost ingestion and spend alerts",
	Long: `AI Spend Guardian pulls daily cost reports from AI provider admin APIs,
attributes them to internal projects, alerts when project spend crosses a
threshold, and emails weekly spend summaries.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.asg/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// app holds the components shared by commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *storage.SQLite
	client  *costapi.Client
	creds   *secrets.CredentialStore
	catalog *pricing.Catalog
	email   *alerts.EmailNotifier
}

// newApp wires storage, the provider client and credential decryption.
func newApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)

	cipher, err := secrets.NewCipher(cfg.Secrets.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init secrets (set ASG_SECRETS_ENCRYPTION_KEY): %w", err)
	}

	catalog, err := initCatalog(cfg)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		client: costapi.NewClient(costapi.Config{
			BaseURL:       cfg.Provider.BaseURL,
			Timeout:       cfg.Provider.Timeout,
			PageLimit:     cfg.Provider.PageLimit,
			ValidationTTL: cfg.Provider.ValidationTTL,
		}),
		creds:   secrets.NewCredentialStore(store, cipher),
		catalog: catalog,
	}
	if e := cfg.Alerts.Email; e.Enabled {
		a.email = alerts.NewEmailNotifier(alerts.SMTPConfig{
			Host:     e.Host,
			Port:     e.Port,
			Username: e.Username,
			Password: e.Password,
			From:     e.From,
			UseTLS:   e.UseTLS,
			Timeout:  e.Timeout,
		}, e.To)
	}
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) collector() (*collector.Collector, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	return collector.New(a.client, a.store, a.creds, a.catalog, collector.Config{
		MaxPages:  a.cfg.Collector.MaxPages,
		BatchSize: a.cfg.Collector.BatchSize,
		PageDelay: a.cfg.Collector.PageDelay,
		PageLimit: a.cfg.Provider.PageLimit,
		Location:  loc,
		Retry: retry.Options{
			MaxRetries: a.cfg.Collector.MaxRetries,
			BaseDelay:  a.cfg.Collector.BaseDelay,
			Logger:     a.logger,
		},
	}, a.logger), nil
}

func (a *app) evaluator() (*alerting.Evaluator, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	dispatcher := alerting.NewDispatcher(retry.Options{
		MaxRetries: a.cfg.Alerts.MaxRetries,
		BaseDelay:  a.cfg.Alerts.BaseDelay,
		Logger:     a.logger,
	}, a.logger, initNotifiers(a.cfg, a.email)...)

	return alerting.NewEvaluator(a.store, dispatcher, alerting.Config{
		Throttle: a.cfg.Alerts.Throttle,
		Location: loc,
	}, a.logger), nil
}

func (a *app) reporter() *report.Generator {
	if a.email == nil {
		return report.NewGenerator(a.store, nil, a.logger)
	}
	return report.NewGenerator(a.store, a.email, a.logger)
}

func (a *app) guard() *cronguard.Guard {
	return cronguard.New(a.store, nil, a.logger)
}

// initCatalog loads model pricing used to name the model behind line items.
func initCatalog(cfg *config.Config) (*pricing.Catalog, error) {
	pricingDir := cfg.Pricing.Dir

	// Try to find pricing directory
	if _, err := os.Stat(pricingDir); os.IsNotExist(err) {
		// Try relative to executable
		exePath, _ := os.Executable()
		if exePath != "" {
			altDir := filepath.Join(filepath.Dir(exePath), "pricing")
			if _, altErr := os.Stat(altDir); altErr == nil {
				pricingDir = altDir
			}
		}
	}

	catalog, err := pricing.LoadDir(pricingDir)
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}
	return catalog, nil
}

// initStorage creates a storage backend from config.
func initStorage(cfg *config.Config) (*storage.SQLite, error) {
	return storage.NewSQLite(cfg.Storage.Path)
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config, email *alerts.EmailNotifier) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	if email != nil && len(cfg.Alerts.Email.To) > 0 {
		notifiers = append(notifiers, email)
	}

	return notifiers
}
