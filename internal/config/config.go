package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	StoreDriver string // postgres / memory
	DatabaseURL string // あればPOSTGRES_*より優先

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	JWTSecret string // JWT署名シークレット（必須）

	GoEnv       string // dev/prod
	LogFormat   string // json/text
	FrontendURL string // リダイレクト先（リセットリンク・OAuth）

	SessionTTL        time.Duration // パスワードログインのセッション
	OAuthSessionTTL   time.Duration // Googleログインのセッション
	InactivityTimeout time.Duration
	OTPTTL            time.Duration
	QuestionTokenTTL  time.Duration // 秘密の質問フローのリセットトークン
	EmailTokenTTL     time.Duration // メールリンクフローのリセットトークン
	OAuthCodeTTL      time.Duration // OAuth交換コード

	MaxLoginAttempts int
	LockoutDuration  time.Duration
	BcryptCost       int

	RateLimitMax    int
	RateLimitWindow time.Duration
	RedisURL        string // 空ならメモリ版のレートリミッター

	SweepInterval time.Duration // 期限切れトークン掃除の間隔

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	SMTPHost     string // 空ならログ出力のみ
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	CookieSecure bool
}

// Loadは環境変数から設定を組み立てる
func Load() (Config, error) {
	cfg := Config{
		Port:        getenv("PORT", "8080"),
		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", "postgres")),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       getenv("POSTGRES_DB", "salon"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv:       getenv("GO_ENV", "dev"),
		LogFormat:   getenv("LOG_FORMAT", "json"),
		FrontendURL: strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),

		RedisURL: os.Getenv("REDIS_URL"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getenv("MAIL_FROM", "no-reply@salon.local"),
	}

	var err error
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"POSTGRES_PORT", 5432, &cfg.PostgresPort},
		{"MAX_LOGIN_ATTEMPTS", 5, &cfg.MaxLoginAttempts},
		{"BCRYPT_COST", 10, &cfg.BcryptCost},
		{"RATE_LIMIT_MAX", 5, &cfg.RateLimitMax},
		{"SMTP_PORT", 587, &cfg.SMTPPort},
	}
	for _, it := range ints {
		if *it.dst, err = intEnv(it.key, it.def); err != nil {
			return Config{}, err
		}
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"SESSION_TTL", 24 * time.Hour, &cfg.SessionTTL},
		{"OAUTH_SESSION_TTL", 7 * 24 * time.Hour, &cfg.OAuthSessionTTL},
		{"INACTIVITY_TIMEOUT", 15 * time.Minute, &cfg.InactivityTimeout},
		{"OTP_TTL", 2 * time.Minute, &cfg.OTPTTL},
		{"QUESTION_TOKEN_TTL", 15 * time.Minute, &cfg.QuestionTokenTTL},
		{"EMAIL_TOKEN_TTL", 10 * time.Minute, &cfg.EmailTokenTTL},
		{"OAUTH_CODE_TTL", 5 * time.Minute, &cfg.OAuthCodeTTL},
		{"LOCKOUT_DURATION", 15 * time.Minute, &cfg.LockoutDuration},
		{"RATE_LIMIT_WINDOW", time.Minute, &cfg.RateLimitWindow},
		{"SWEEP_INTERVAL", 10 * time.Minute, &cfg.SweepInterval},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	cfg.CookieSecure = cfg.GoEnv == "prod"

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validateは必須チェック
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory: %q", c.StoreDriver)
	}
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be >= 1")
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be >= 1")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if c.GoogleClientID != "" && c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
	}
	return nil
}

// Googleログインが使えるか
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// ListenAddrは":8080"の形に揃える
func (c Config) ListenAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// DSNはgorm用の接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

// "15m" / "24h" 形式。数字だけなら秒として扱う
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
