package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mhartwell/siteworks/internal/blob"
	"github.com/mhartwell/siteworks/internal/distribute"
)

// Config is the ambient process configuration, assembled once from the
// environment and injected into the components at construction time.
type Config struct {
	Addr             string
	DBPath           string
	Production       bool
	Workers          int
	AnthropicAPIKey  string
	AnthropicModel   string
	Blob             blob.Config
	SMTP             distribute.SMTPConfig
	WebhookURL       string
	PlatformLogoPath string
}

func FromEnv() Config {
	production := boolEnv("PRODUCTION")
	return Config{
		Addr:            envDefault("SITEWORKS_ADDR", ":8080"),
		DBPath:          envDefault("SITEWORKS_DB", "siteworks.db"),
		Production:      production,
		Workers:         intEnv("PIPELINE_WORKERS", 2),
		AnthropicAPIKey: env("ANTHROPIC_API_KEY"),
		AnthropicModel:  env("ANTHROPIC_MODEL"),
		Blob: blob.Config{
			Endpoint:      env("STORAGE_ENDPOINT"),
			AccessKey:     env("STORAGE_ACCESS_KEY"),
			SecretKey:     env("STORAGE_SECRET_KEY"),
			Bucket:        envDefault("STORAGE_BUCKET", "siteworks"),
			UseSSL:        boolEnv("STORAGE_USE_SSL"),
			PublicBaseURL: env("STORAGE_PUBLIC_BASE_URL"),
			LocalRoot:     envDefault("STORAGE_LOCAL_ROOT", "storage"),
			Production:    production,
		},
		SMTP: distribute.SMTPConfig{
			Host:     env("SMTP_HOST"),
			Port:     intEnv("SMTP_PORT", 587),
			Username: env("SMTP_USERNAME"),
			Password: env("SMTP_PASSWORD"),
			From:     env("SMTP_FROM"),
		},
		WebhookURL:       env("REPORT_WEBHOOK_URL"),
		PlatformLogoPath: env("PLATFORM_LOGO_PATH"),
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envDefault(key, fallback string) string {
	if v := env(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	switch strings.ToLower(env(key)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func intEnv(key string, fallback int) int {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
