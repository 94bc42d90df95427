package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Env                           string
	HTTPAddr                      string
	DatabaseURL                   string
	FactsToken                    string
	GoogleCalendarCredentialsJSON string
	PaymentGatewayURL             string
	PaymentGatewayToken           string
	PaymentProvider               string
	DiscordToken                  string
	DiscordNotifyChannelID        string
	NotifyWebhookURL              string
	SessionDurationMin            int
	GracePeriodHours              int
	GraceWarningWindowHours       int
	SweepInterval                 time.Duration
	WorkflowMaxAttempts           int
	WorkflowStepTimeout           time.Duration
	ProvisionOrderFetchAttempts   int
	MetricsEnabled                bool
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if _, err := url.ParseRequestURI(c.PaymentGatewayURL); err != nil {
		return fmt.Errorf("PAYMENT_GATEWAY_URL is invalid: %w", err)
	}
	if c.DiscordToken != "" && c.DiscordNotifyChannelID == "" {
		return fmt.Errorf("DISCORD_NOTIFY_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	for _, p := range c.positiveFieldChecks() {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.SessionDurationMin > 24*60 {
		return fmt.Errorf("SESSION_DURATION_MIN must not exceed a day, got %d", c.SessionDurationMin)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.WorkflowStepTimeout <= 0 {
		return fmt.Errorf("WORKFLOW_STEP_TIMEOUT must be positive, got %s", c.WorkflowStepTimeout)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "FACTS_TOKEN", value: c.FactsToken},
		{name: "GOOGLE_CALENDAR_CREDENTIALS_JSON", value: c.GoogleCalendarCredentialsJSON},
		{name: "PAYMENT_GATEWAY_URL", value: c.PaymentGatewayURL},
		{name: "PAYMENT_PROVIDER", value: c.PaymentProvider},
	}
}

type positiveEnvField struct {
	name  string
	value int
}

func (c *Config) positiveFieldChecks() []positiveEnvField {
	return []positiveEnvField{
		{name: "SESSION_DURATION_MIN", value: c.SessionDurationMin},
		{name: "GRACE_PERIOD_HOURS", value: c.GracePeriodHours},
		{name: "GRACE_WARNING_WINDOW_HOURS", value: c.GraceWarningWindowHours},
		{name: "WORKFLOW_MAX_ATTEMPTS", value: c.WorkflowMaxAttempts},
		{name: "PROVISION_ORDER_FETCH_ATTEMPTS", value: c.ProvisionOrderFetchAttempts},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.SessionDurationMin) * time.Minute
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodHours) * time.Hour
}

func (c *Config) GraceWarningWindow() time.Duration {
	return time.Duration(c.GraceWarningWindowHours) * time.Hour
}
