package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	VerifyToken string

	// WhatsApp Cloud API
	WhatsAppToken string
	PhoneNumberID string
	GraphVersion  string

	// Meta Conversions API. Empty PixelID or CAPIToken disables dispatch.
	PixelID   string
	CAPIToken string
	Currency  string

	// Storage. DatabaseURL selects postgres; empty falls back to sqlite at DBPath.
	DatabaseURL string
	DBPath      string

	// Optional redis dedup guard for webhook retries.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MediaDir      string
	PublicBaseURL string

	LogLevel         string
	MetricsNamespace string

	SessionWindow time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		VerifyToken:      getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:    getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:    getEnv("PHONE_NUMBER_ID", ""),
		GraphVersion:     getEnv("GRAPH_VERSION", "v19.0"),
		PixelID:          getEnv("META_PIXEL_ID", ""),
		CAPIToken:        getEnv("META_CAPI_TOKEN", ""),
		Currency:         getEnv("CONVERSION_CURRENCY", "MXN"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DBPath:           getEnv("DB_PATH", "./crm.db"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		MediaDir:         getEnv("MEDIA_DIR", "./media"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "whatsapp_crm"),
		SessionWindow:    24 * time.Hour,
	}

	if raw := getEnv("REDIS_DB", ""); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	if cfg.VerifyToken == "" {
		return nil, fmt.Errorf("VERIFY_TOKEN is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
