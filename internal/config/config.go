// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/storefront/internal/logger"
)

// メール送信方式
const (
	MailTransportLog   = "log"
	MailTransportSMTP  = "smtp"
	MailTransportKafka = "kafka"
)

// メディア保存先
const (
	MediaBackendLocal = "local"
	MediaBackendS3    = "s3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	Env string

	// Database
	DatabaseURL string

	// Session
	SessionMaxAge time.Duration

	// Mail
	MailFrom      string
	MailTransport string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPTimeout   time.Duration
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaUsername string
	KafkaPassword string
	KafkaTLS      bool

	// Media
	MediaBackend       string
	MediaDir           string
	MediaBaseURL       string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	S3AccessKey        string
	S3SecretKey        string
	S3PublicURL        string
	ImageImportTimeout time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral  int
	RateLimitRegister int
	RateLimitVerify   int

	// Reaper
	ReaperInterval time.Duration

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
	BaseURL    string
	TrustProxy bool

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// ENVがprod以外の場合は、先にカレントディレクトリの.envを環境変数に読み込む（既存の値は上書きしない）。
// 必須環境変数が未設定の場合や、選択した送信方式・保存先の設定が不足している場合はエラーを返す。
func Load() (*Config, error) {
	if os.Getenv("ENV") != "prod" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{Env: getEnvString("ENV", "dev")}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.MailFrom = os.Getenv("MAIL_FROM")
	if cfg.MailFrom == "" {
		missing = append(missing, "MAIL_FROM")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 14*24*time.Hour)

	cfg.MailTransport = strings.ToLower(getEnvString("MAIL_TRANSPORT", MailTransportLog))
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPTimeout = getEnvDuration("SMTP_TIMEOUT", 10*time.Second)
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS")
	cfg.KafkaTopic = getEnvString("KAFKA_TOPIC", "storefront.mail")
	cfg.KafkaUsername = getEnvString("KAFKA_USERNAME", "")
	cfg.KafkaPassword = getEnvString("KAFKA_PASSWORD", "")
	cfg.KafkaTLS = getEnvBool("KAFKA_TLS", false)

	cfg.MediaBackend = strings.ToLower(getEnvString("MEDIA_BACKEND", MediaBackendLocal))
	cfg.MediaDir = getEnvString("MEDIA_DIR", "media")
	cfg.MediaBaseURL = getEnvString("MEDIA_BASE_URL", strings.TrimRight(cfg.BaseURL, "/")+"/media")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnvString("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvString("S3_SECRET_KEY", "")
	cfg.S3PublicURL = getEnvString("S3_PUBLIC_URL", "")
	cfg.ImageImportTimeout = getEnvDuration("IMAGE_IMPORT_TIMEOUT", 10*time.Second)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRegister = getEnvInt("RATE_LIMIT_REGISTER", 5)
	cfg.RateLimitVerify = getEnvInt("RATE_LIMIT_VERIFY", 10)

	cfg.ReaperInterval = getEnvDuration("REAPER_INTERVAL", 10*time.Minute)
	cfg.LogLevel = logger.ParseLevel(os.Getenv("LOG_LEVEL"))

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は選択された送信方式・保存先に必要な設定が揃っているかを確認する。
func (c *Config) validate() error {
	switch c.MailTransport {
	case MailTransportLog:
	case MailTransportSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_TRANSPORT=%s", MailTransportSMTP)
		}
	case MailTransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when MAIL_TRANSPORT=%s", MailTransportKafka)
		}
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.MailTransport)
	}

	switch c.MediaBackend {
	case MediaBackendLocal:
	case MediaBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when MEDIA_BACKEND=%s", MediaBackendS3)
		}
	default:
		return fmt.Errorf("unknown MEDIA_BACKEND %q", c.MediaBackend)
	}

	if c.RateLimitGeneral <= 0 || c.RateLimitRegister <= 0 || c.RateLimitVerify <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Env == "prod"
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

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
