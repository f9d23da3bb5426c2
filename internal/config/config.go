package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 監査ログの書き込みモード。
const (
	AuditModeSync  = "sync"
	AuditModeAsync = "async"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string
	DBConnectRetries int

	// Token
	JWTSecretBase64 string
	JWTExpiration   time.Duration

	// Lockout
	LockoutCooldown      time.Duration
	LockoutMaxFailures   int // 0の場合、このサービスはロックを設定しない
	LockoutFailureWindow time.Duration

	// Audit
	AuditBlockedAttempts bool
	AuditMode            string
	AuditQueueSize       int
	AttemptRetentionDays int // 0の場合は無期限保持
	CleanupInterval      time.Duration

	// Password
	BcryptCost int

	// Rate Limit
	RateLimitLogin int // req/min/IP

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// 署名鍵のデコード可否はここでは検証せず、TokenIssuerの生成時に検証する。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecretBase64 = strings.TrimSpace(os.Getenv("JWT_SECRET_BASE64"))
	if cfg.JWTSecretBase64 == "" {
		missing = append(missing, "JWT_SECRET_BASE64")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBConnectRetries = getEnvInt("DB_CONNECT_RETRIES", 5)
	cfg.JWTExpiration = getEnvDuration("JWT_EXPIRATION", time.Hour)
	if ms := getEnvInt64("JWT_EXPIRATION_MS", 0); ms > 0 {
		cfg.JWTExpiration = time.Duration(ms) * time.Millisecond
	}
	cfg.LockoutCooldown = getEnvDuration("LOCKOUT_COOLDOWN", 15*time.Minute)
	cfg.LockoutMaxFailures = getEnvInt("LOCKOUT_MAX_FAILURES", 5)
	cfg.LockoutFailureWindow = getEnvDuration("LOCKOUT_FAILURE_WINDOW", 15*time.Minute)
	cfg.AuditBlockedAttempts = getEnvBool("AUDIT_BLOCKED_ATTEMPTS", false)
	cfg.AuditMode = strings.ToLower(getEnvString("AUDIT_MODE", AuditModeSync))
	cfg.AuditQueueSize = getEnvInt("AUDIT_QUEUE_SIZE", 256)
	cfg.AttemptRetentionDays = getEnvInt("ATTEMPT_RETENTION_DAYS", 0)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	if cfg.AuditMode != AuditModeSync && cfg.AuditMode != AuditModeAsync {
		return nil, fmt.Errorf("invalid AUDIT_MODE %q: must be %q or %q", cfg.AuditMode, AuditModeSync, AuditModeAsync)
	}
	if cfg.JWTExpiration <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRATION must be positive, got %v", cfg.JWTExpiration)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive, got %v", cfg.CleanupInterval)
	}
	if cfg.LockoutMaxFailures < 0 {
		return nil, fmt.Errorf("LOCKOUT_MAX_FAILURES must not be negative, got %d", cfg.LockoutMaxFailures)
	}

	return cfg, nil
}

// PasswordCost は完全な設定を読み込まずにBCRYPT_COSTのみを返す。
// DB接続や署名鍵を必要としないCLIサブコマンド用。
func PasswordCost() int {
	return getEnvInt("BCRYPT_COST", 10)
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
