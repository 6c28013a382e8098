package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 登録先ストアの種別。
const (
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	SignupStore     string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseAnonKey string
	SignupTable     string

	// Signup form
	SuccessBannerTTL       time.Duration
	VisitorTTL             time.Duration
	VisitorCleanupInterval time.Duration
	LandingContentFile     string

	// Events
	AMQPURL              string
	SignupEventsExchange string

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 選択したストアに必要な環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.SignupStore = strings.ToLower(getEnvString("SIGNUP_STORE", StorePostgres))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SupabaseURL = os.Getenv("SUPABASE_URL")
	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")

	// Required fields
	var missing []string

	switch cfg.SignupStore {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreSupabase:
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
	default:
		return nil, fmt.Errorf("unsupported SIGNUP_STORE %q: must be %q or %q", cfg.SignupStore, StorePostgres, StoreSupabase)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SignupTable = getEnvString("SIGNUP_TABLE", "email_signups")
	cfg.SuccessBannerTTL = getEnvDuration("SUCCESS_BANNER_TTL", 3*time.Second)
	cfg.VisitorTTL = getEnvDuration("VISITOR_TTL", 30*time.Minute)
	cfg.VisitorCleanupInterval = getEnvDuration("VISITOR_CLEANUP_INTERVAL", 5*time.Minute)
	cfg.LandingContentFile = getEnvString("LANDING_CONTENT_FILE", "")
	cfg.AMQPURL = getEnvString("AMQP_URL", "")
	cfg.SignupEventsExchange = getEnvString("SIGNUP_EVENTS_EXCHANGE", "launchpage.events")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvDuration は時間文字列（"3s"）のほか、秒数の整数（"3"）も受け付ける。
// 0以下の値はデフォルト値として扱う。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		secs := getEnvInt(key, 0)
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return defaultVal
	}
	return d
}
