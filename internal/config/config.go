package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port           string
	BaseURL        string
	DataDir        string
	OutputDir      string
	TemplateDir    string
	MaxUploadBytes int64

	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string
	OpenAIAnalysisModel string
	OpenAITemperature   float64
	OpenAIMaxTokens     int64

	PandocBinary  string
	PandocEngine  string
	RenderTimeout time.Duration

	OverleafAPIURL    string
	OverleafAPIKey    string
	OverleafProjectID string
	OverleafTimeout   time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       string
	SMTPTimeout  time.Duration

	WebhookURL     string
	WebhookAPIKey  string
	WebhookTimeout time.Duration

	ShareSecret string
	ShareTTL    time.Duration
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.BaseURL = envOrDefault("BASE_URL", fmt.Sprintf("http://localhost:%s", cfg.Port))
	cfg.DataDir = envOrDefault("DATA_DIR", "data")
	cfg.TemplateDir = envOrDefault("TEMPLATE_DIR", "templates")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIAnalysisModel = envOrDefault("OPENAI_ANALYSIS_MODEL", "gpt-3.5-turbo")

	temperature, err := parseFloatEnv("OPENAI_TEMPERATURE", 0.3)
	if err != nil {
		return Config{}, fmt.Errorf("parse OPENAI_TEMPERATURE: %w", err)
	}
	cfg.OpenAITemperature = temperature

	maxTokens, err := parseIntEnv("OPENAI_MAX_TOKENS", 4000)
	if err != nil {
		return Config{}, fmt.Errorf("parse OPENAI_MAX_TOKENS: %w", err)
	}
	cfg.OpenAIMaxTokens = maxTokens

	cfg.PandocBinary = envOrDefault("PANDOC_BINARY", "pandoc")
	cfg.PandocEngine = envOrDefault("PANDOC_ENGINE", "xelatex")

	renderTimeoutSeconds, err := parseIntEnv("RENDER_TIMEOUT_SECONDS", 120)
	if err != nil {
		return Config{}, fmt.Errorf("parse RENDER_TIMEOUT_SECONDS: %w", err)
	}
	cfg.RenderTimeout = time.Duration(renderTimeoutSeconds) * time.Second

	cfg.OverleafAPIURL = envOrDefault("OVERLEAF_API_URL", "https://www.overleaf.com/api/v1")
	cfg.OverleafAPIKey = os.Getenv("OVERLEAF_API_KEY")
	cfg.OverleafProjectID = os.Getenv("OVERLEAF_PROJECT_ID")
	cfg.OverleafTimeout = 30 * time.Second

	cfg.SMTPHost = envOrDefault("SMTP_HOST", "smtp.gmail.com")
	cfg.SMTPPort = envOrDefault("SMTP_PORT", "587")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	cfg.SMTPTo = os.Getenv("SMTP_TO")

	smtpTimeoutSeconds, err := parseIntEnv("SMTP_TIMEOUT_SECONDS", 30)
	if err != nil {
		return Config{}, fmt.Errorf("parse SMTP_TIMEOUT_SECONDS: %w", err)
	}
	cfg.SMTPTimeout = time.Duration(smtpTimeoutSeconds) * time.Second

	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.WebhookAPIKey = os.Getenv("WEBHOOK_API_KEY")
	cfg.WebhookTimeout = 30 * time.Second

	cfg.ShareSecret = envOrDefault("SHARE_SECRET", "change-me")

	shareTTLSeconds, err := parseIntEnv("SHARE_TTL_SECONDS", 86400)
	if err != nil {
		return Config{}, fmt.Errorf("parse SHARE_TTL_SECONDS: %w", err)
	}
	cfg.ShareTTL = time.Duration(shareTTLSeconds) * time.Second

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 16)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	cfg.OutputDir = envOrDefault("OUTPUT_DIR", filepath.Join(cfg.DataDir, "output"))
	absOutputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve output dir: %w", err)
	}
	cfg.OutputDir = absOutputDir

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
