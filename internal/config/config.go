// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string
	DBConnectTimeout time.Duration

	// Server
	ServerPort string
	BaseURL    string
	LogLevel   string

	// Identity provider
	ClerkWebhookSecret string
	ClerkSecretKey     string
	ClerkAPIURL        string
	ClerkJWTKey        string

	// Payment provider
	StripeSecretKey       string
	StripeWebhookSecret   string
	CheckoutCurrency      string
	PaymentStrictMetadata bool

	// Page cache
	RedisURL     string
	PageCacheTTL time.Duration

	// Event input checks
	ImageCheckTimeout time.Duration

	// Rate Limit（分あたりのリクエスト数）
	RateLimitGeneral  int
	RateLimitCheckout int

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む。既に設定された環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
// 外部サービスの秘密情報は任意で、未設定の場合はそれを使う操作がConfigurationErrorで失敗する。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗しました: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBConnectTimeout = getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ClerkWebhookSecret = os.Getenv("CLERK_WEBHOOK_SECRET")
	cfg.ClerkSecretKey = os.Getenv("CLERK_SECRET_KEY")
	cfg.ClerkAPIURL = getEnvString("CLERK_API_URL", "https://api.clerk.com")
	cfg.ClerkJWTKey = os.Getenv("CLERK_JWT_KEY")
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.CheckoutCurrency = strings.ToLower(getEnvString("CHECKOUT_CURRENCY", "usd"))
	cfg.PaymentStrictMetadata = getEnvBool("PAYMENT_STRICT_METADATA", false)
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.PageCacheTTL = getEnvDuration("PAGE_CACHE_TTL", 60*time.Second)
	cfg.ImageCheckTimeout = getEnvDuration("IMAGE_CHECK_TIMEOUT", 5*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCheckout = getEnvInt("RATE_LIMIT_CHECKOUT", 10)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

// AllowedOrigins はCookie認証の状態変更リクエストで許可するオリジンを返す。
func (c *Config) AllowedOrigins() []string {
	origins := []string{c.BaseURL}
	if c.CORSAllowedOrigin != "" && c.CORSAllowedOrigin != c.BaseURL {
		origins = append(origins, c.CORSAllowedOrigin)
	}
	return origins
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
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
