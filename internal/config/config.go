// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// RunMode はアプリケーションの動作モードを表す。
// ログレベルと起動時のスキーマ自動マイグレーションの挙動に影響する。
const (
	RunModeDevelopment = "development"
	RunModeProduction  = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth（外部IdPのテナント情報）
	AuthIssuerURL string
	AuthAudience  string
	AuthJWKSURL   string
	AuthDevSecret string

	// SMTP（ウェルカムメール送信）
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string
	MailFromName string

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitAuth    int

	// Server
	ServerPort string
	RunMode    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（存在しなくてもエラーにしない）。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	// .envはローカル開発用。本番環境では環境変数を直接設定する。
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthIssuerURL = os.Getenv("AUTH_ISSUER_URL")
	if cfg.AuthIssuerURL == "" {
		missing = append(missing, "AUTH_ISSUER_URL")
	}

	cfg.AuthAudience = os.Getenv("AUTH_AUDIENCE")
	if cfg.AuthAudience == "" {
		missing = append(missing, "AUTH_AUDIENCE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AuthJWKSURL = getEnvString("AUTH_JWKS_URL", "")
	cfg.AuthDevSecret = getEnvString("AUTH_DEV_SECRET", "")
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.MailFrom = getEnvString("MAIL_FROM", "")
	cfg.MailFromName = getEnvString("MAIL_FROM_NAME", "PoliSync")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RunMode = getEnvString("RUN_MODE", RunModeProduction)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// IsDevelopment はdevelopmentモードで動作しているかどうかを返す。
func (c *Config) IsDevelopment() bool {
	return c.RunMode == RunModeDevelopment
}

// MailEnabled はSMTPによるメール送信が設定されているかどうかを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.MailFrom != ""
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
