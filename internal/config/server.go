package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ServerConfig is the backend service configuration, read from the environment.
type ServerConfig struct {
	Port        int
	DatabaseURL string

	LLMProvider string // gemini or openai
	LLMAPIKey   string // GEMINI_API_KEY or OPENAI_API_KEY, by provider
	LLMModel    string // optional model override for the chosen tier
	LLMTier     string // lite, standard or advanced

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	ClinicEmail  string
	ClinicBCC    string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	ClinicSMSTo      string

	AllowedOrigins []string
}

// LoadServerConfig reads the server configuration from environment variables.
// DATABASE_URL and an API key for the selected provider are required.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LLMProvider:      strings.ToLower(envOr("LLM_PROVIDER", "gemini")),
		LLMModel:         os.Getenv("LLM_MODEL"),
		LLMTier:          os.Getenv("LLM_MODEL_TIER"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:         os.Getenv("SMTP_FROM"),
		ClinicEmail:      os.Getenv("CLINIC_EMAIL"),
		ClinicBCC:        os.Getenv("CLINIC_BCC"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		ClinicSMSTo:      os.Getenv("CLINIC_SMS_TO"),
		AllowedOrigins:   splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.Port, err = envInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = envInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}

	switch cfg.LLMProvider {
	case "gemini":
		cfg.LLMAPIKey = os.Getenv("GEMINI_API_KEY")
	case "openai":
		cfg.LLMAPIKey = os.Getenv("OPENAI_API_KEY")
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER %q: must be gemini or openai", cfg.LLMProvider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *ServerConfig) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set")
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("an API key for provider %s is required", c.LLMProvider)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", c.Port)
	}
	return nil
}

// EmailEnabled reports whether SMTP notifications are configured.
func (c *ServerConfig) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && c.ClinicEmail != ""
}

// SMSEnabled reports whether Twilio alerts are configured.
func (c *ServerConfig) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != "" && c.ClinicSMSTo != ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
