package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable and secret the server needs. Values are read
// from the environment once at startup; nothing in here is ever logged.
type Config struct {
	ListenAddr string

	// Store selection: "redis", "postgres" or "memory".
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	// RateLimitWindow is the minimum time between two accepted submissions
	// from the same derived identity. RecordTTL is how long a record stays
	// in the store and must be at least the window.
	RateLimitWindow time.Duration
	RecordTTL       time.Duration
	// RetentionPeriod bounds the active sweep; must exceed the window.
	RetentionPeriod time.Duration

	IdentitySalt    string
	TurnstileSecret string
	CaptchaDisabled bool

	// Relay selection: "telegram" or "smtp".
	Relay            string
	TelegramBotToken string
	TelegramChatID   string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPass         string
	SMTPSSL          bool
	SMTPTo           string
	SMTPFrom         string

	AdminCleanupSecret string
	AllowedOrigins     []string

	// TrustedProxies is the number of reverse proxies in front of this
	// service that append to X-Forwarded-For. Zero means the header is
	// ignored and the peer address is the client identity.
	TrustedProxies int

	DebugMode       bool
	DebugAllowedIPs []string

	// Local per-IP burst throttle, applied before any gate check.
	ThrottleRPS   float64
	ThrottleBurst int

	// Gate heuristics.
	MinFormDuration   time.Duration
	MinMouseMovements int
	MinKeyPresses     int
	MinFocusEvents    int
	MaxFieldLength    int
}

// Load populates a Config from the environment and validates the
// combinations that would otherwise fail at request time.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         env("LISTEN_ADDR", ":8080"),
		StoreBackend:       strings.ToLower(env("STORE_BACKEND", "redis")),
		RedisAddr:          env("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envInt("REDIS_DB", 0),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RateLimitWindow:    envDuration("RATE_LIMIT_WINDOW", 4*time.Hour),
		RecordTTL:          envDuration("RECORD_TTL", 24*time.Hour),
		RetentionPeriod:    envDuration("RETENTION_PERIOD", 32*24*time.Hour),
		IdentitySalt:       os.Getenv("IDENTITY_SALT"),
		TurnstileSecret:    os.Getenv("TURNSTILE_SECRET"),
		CaptchaDisabled:    envBool("CAPTCHA_DISABLED", false),
		Relay:              strings.ToLower(env("RELAY", "telegram")),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:     os.Getenv("TELEGRAM_CHAT_ID"),
		SMTPHost:           os.Getenv("SMTP_HOST"),
		SMTPPort:           envInt("SMTP_PORT", 587),
		SMTPUser:           os.Getenv("SMTP_USER"),
		SMTPPass:           os.Getenv("SMTP_PASS"),
		SMTPSSL:            envBool("SMTP_SSL", false),
		SMTPTo:             os.Getenv("SMTP_TO"),
		SMTPFrom:           os.Getenv("SMTP_FROM"),
		AdminCleanupSecret: os.Getenv("ADMIN_CLEANUP_SECRET"),
		AllowedOrigins:     splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		TrustedProxies:     envInt("TRUSTED_PROXIES", 0),
		DebugMode:          envBool("DEBUG_MODE", false),
		DebugAllowedIPs:    splitCSV(os.Getenv("DEBUG_ALLOWED_IPS")),
		ThrottleRPS:        envFloat("THROTTLE_RPS", 1),
		ThrottleBurst:      envInt("THROTTLE_BURST", 5),
		MinFormDuration:    time.Duration(envInt("MIN_FORM_DURATION_MS", 5000)) * time.Millisecond,
		MinMouseMovements:  envInt("MIN_MOUSE_MOVEMENTS", 10),
		MinKeyPresses:      envInt("MIN_KEY_PRESSES", 5),
		MinFocusEvents:     envInt("MIN_FOCUS_EVENTS", 2),
		MaxFieldLength:     envInt("MAX_FIELD_LENGTH", 5000),
	}

	if cfg.IdentitySalt == "" {
		return nil, fmt.Errorf("IDENTITY_SALT is required")
	}
	if cfg.AdminCleanupSecret == "" {
		return nil, fmt.Errorf("ADMIN_CLEANUP_SECRET is required")
	}
	if cfg.TurnstileSecret == "" && !cfg.CaptchaDisabled {
		return nil, fmt.Errorf("TURNSTILE_SECRET is required unless CAPTCHA_DISABLED=true")
	}
	if cfg.RecordTTL < cfg.RateLimitWindow {
		return nil, fmt.Errorf("RECORD_TTL (%s) must be at least RATE_LIMIT_WINDOW (%s)", cfg.RecordTTL, cfg.RateLimitWindow)
	}
	if cfg.RetentionPeriod <= cfg.RateLimitWindow {
		return nil, fmt.Errorf("RETENTION_PERIOD (%s) must exceed RATE_LIMIT_WINDOW (%s)", cfg.RetentionPeriod, cfg.RateLimitWindow)
	}
	switch cfg.StoreBackend {
	case "redis", "postgres", "memory":
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be redis, postgres or memory, got %q", cfg.StoreBackend)
	}
	switch cfg.Relay {
	case "telegram":
		if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required for RELAY=telegram")
		}
	case "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPTo == "" {
			return nil, fmt.Errorf("SMTP_HOST and SMTP_TO are required for RELAY=smtp")
		}
	default:
		return nil, fmt.Errorf("RELAY must be telegram or smtp, got %q", cfg.Relay)
	}
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for STORE_BACKEND=postgres")
	}

	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
