package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/mentorpack/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                           string        `env:"ENV" envDefault:"production"`
	HTTPAddr                      string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL                   string        `env:"DATABASE_URL,required"`
	FactsToken                    string        `env:"FACTS_TOKEN,required"`
	GoogleCalendarCredentialsJSON string        `env:"GOOGLE_CALENDAR_CREDENTIALS_JSON,required"`
	PaymentGatewayURL             string        `env:"PAYMENT_GATEWAY_URL,required"`
	PaymentGatewayToken           string        `env:"PAYMENT_GATEWAY_TOKEN"`
	PaymentProvider               string        `env:"PAYMENT_PROVIDER" envDefault:"stripe"`
	DiscordToken                  string        `env:"DISCORD_TOKEN"`
	DiscordNotifyChannelID        string        `env:"DISCORD_NOTIFY_CHANNEL_ID"`
	NotifyWebhookURL              string        `env:"NOTIFY_WEBHOOK_URL"`
	SessionDurationMin            int           `env:"SESSION_DURATION_MIN" envDefault:"60"`
	GracePeriodHours              int           `env:"GRACE_PERIOD_HOURS" envDefault:"72"`
	GraceWarningWindowHours       int           `env:"GRACE_WARNING_WINDOW_HOURS" envDefault:"12"`
	SweepInterval                 time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	WorkflowMaxAttempts           int           `env:"WORKFLOW_MAX_ATTEMPTS" envDefault:"5"`
	WorkflowStepTimeout           time.Duration `env:"WORKFLOW_STEP_TIMEOUT" envDefault:"30s"`
	ProvisionOrderFetchAttempts   int           `env:"PROVISION_ORDER_FETCH_ATTEMPTS" envDefault:"5"`
	MetricsEnabled                bool          `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                           raw.Env,
		HTTPAddr:                      raw.HTTPAddr,
		DatabaseURL:                   raw.DatabaseURL,
		FactsToken:                    raw.FactsToken,
		GoogleCalendarCredentialsJSON: raw.GoogleCalendarCredentialsJSON,
		PaymentGatewayURL:             raw.PaymentGatewayURL,
		PaymentGatewayToken:           raw.PaymentGatewayToken,
		PaymentProvider:               raw.PaymentProvider,
		DiscordToken:                  raw.DiscordToken,
		DiscordNotifyChannelID:        raw.DiscordNotifyChannelID,
		NotifyWebhookURL:              raw.NotifyWebhookURL,
		SessionDurationMin:            raw.SessionDurationMin,
		GracePeriodHours:              raw.GracePeriodHours,
		GraceWarningWindowHours:       raw.GraceWarningWindowHours,
		SweepInterval:                 raw.SweepInterval,
		WorkflowMaxAttempts:           raw.WorkflowMaxAttempts,
		WorkflowStepTimeout:           raw.WorkflowStepTimeout,
		ProvisionOrderFetchAttempts:   raw.ProvisionOrderFetchAttempts,
		MetricsEnabled:                raw.MetricsEnabled,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
