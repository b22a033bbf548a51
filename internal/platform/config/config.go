package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Addr                 string        `mapstructure:"addr"`
	DatabaseURL          string        `mapstructure:"database_url"`
	JWTSecret            string        `mapstructure:"jwt_secret"`
	JWTTTL               time.Duration `mapstructure:"jwt_ttl"`
	DataEncryptionKey    string        `mapstructure:"data_encryption_key"`
	FrontendDir          string        `mapstructure:"frontend_dir"`
	Environment          string        `mapstructure:"environment"`
	AppBaseURL           string        `mapstructure:"app_base_url"`
	AllowedEmailDomain   string        `mapstructure:"allowed_email_domain"`
	AllowSelfSignup      bool          `mapstructure:"allow_self_signup"`
	SeedAdminEmail       string        `mapstructure:"seed_admin_email"`
	SeedAdminPassword    string        `mapstructure:"seed_admin_password"`
	SeedFile             string        `mapstructure:"seed_file"`
	EmailFrom            string        `mapstructure:"email_from"`
	EmailEnabled         bool          `mapstructure:"email_enabled"`
	SMTPHost             string        `mapstructure:"smtp_host"`
	SMTPPort             int           `mapstructure:"smtp_port"`
	SMTPUser             string        `mapstructure:"smtp_user"`
	SMTPPassword         string        `mapstructure:"smtp_password"`
	SMTPUseTLS           bool          `mapstructure:"smtp_use_tls"`
	MigrationsDir        string        `mapstructure:"migrations_dir"`
	RunMigrations        bool          `mapstructure:"run_migrations"`
	RunSeed              bool          `mapstructure:"run_seed"`
	MaxBodyBytes         int64         `mapstructure:"max_body_bytes"`
	RateLimitPerMinute   int           `mapstructure:"rate_limit_per_minute"`
	MagicLinkTTL         time.Duration `mapstructure:"magic_link_ttl"`
	PasswordResetTTL     time.Duration `mapstructure:"password_reset_ttl"`
	TokenRequestsPerHour int           `mapstructure:"token_requests_per_hour"`
	TokenCleanupSchedule string        `mapstructure:"token_cleanup_schedule"`
	RetentionSchedule    string        `mapstructure:"retention_schedule"`
	NotifyRetention      time.Duration `mapstructure:"notification_retention"`
	AuditRetention       time.Duration `mapstructure:"audit_retention"`
	JobRunRetention      time.Duration `mapstructure:"job_run_retention"`
	IdempotencyRetention time.Duration `mapstructure:"idempotency_retention"`
	MetricsEnabled       bool          `mapstructure:"metrics_enabled"`
	LogLevel             string        `mapstructure:"log_level"`
	LogFormat            string        `mapstructure:"log_format"`
}

func Default() Config {
	return Config{
		Addr:                 ":8080",
		JWTTTL:               7 * 24 * time.Hour,
		FrontendDir:          "",
		Environment:          "development",
		AppBaseURL:           "http://localhost:5173",
		AllowSelfSignup:      true,
		EmailFrom:            "no-reply@example.com",
		SMTPPort:             587,
		SMTPUseTLS:           true,
		MigrationsDir:        "migrations",
		RunMigrations:        true,
		RunSeed:              true,
		MaxBodyBytes:         1048576,
		RateLimitPerMinute:   60,
		MagicLinkTTL:         15 * time.Minute,
		PasswordResetTTL:     time.Hour,
		TokenRequestsPerHour: 3,
		TokenCleanupSchedule: "@hourly",
		RetentionSchedule:    "@daily",
		NotifyRetention:      90 * 24 * time.Hour,
		JobRunRetention:      30 * 24 * time.Hour,
		IdempotencyRetention: 24 * time.Hour,
		MetricsEnabled:       true,
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

// Load reads configuration from the environment only.
func Load() Config {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads an optional config file and then applies environment
// overrides on top of it. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
			dc.TagName = "mapstructure"
			dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			)
			dc.MatchName = func(mapKey, fieldName string) bool {
				return normalizeKey(mapKey) == normalizeKey(fieldName)
			}
		}); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getEnv("APP_ADDR", cfg.Addr)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTTTL = getEnvDuration("JWT_TTL", cfg.JWTTTL)
	cfg.DataEncryptionKey = getEnv("DATA_ENCRYPTION_KEY", cfg.DataEncryptionKey)
	cfg.FrontendDir = getEnv("FRONTEND_DIR", cfg.FrontendDir)
	cfg.Environment = getEnv("APP_ENV", cfg.Environment)
	cfg.AppBaseURL = getEnv("APP_BASE_URL", cfg.AppBaseURL)
	cfg.AllowedEmailDomain = getEnv("ALLOWED_EMAIL_DOMAIN", cfg.AllowedEmailDomain)
	cfg.AllowSelfSignup = getEnvBool("ALLOW_SELF_SIGNUP", cfg.AllowSelfSignup)
	cfg.SeedAdminEmail = getEnv("SEED_ADMIN_EMAIL", cfg.SeedAdminEmail)
	cfg.SeedAdminPassword = getEnv("SEED_ADMIN_PASSWORD", cfg.SeedAdminPassword)
	cfg.SeedFile = getEnv("SEED_FILE", cfg.SeedFile)
	cfg.EmailFrom = getEnv("EMAIL_FROM", cfg.EmailFrom)
	cfg.EmailEnabled = getEnvBool("EMAIL_ENABLED", cfg.EmailEnabled)
	cfg.SMTPHost = getEnv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = getEnvInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUser = getEnv("SMTP_USER", cfg.SMTPUser)
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPUseTLS = getEnvBool("SMTP_USE_TLS", cfg.SMTPUseTLS)
	cfg.MigrationsDir = getEnv("MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.RunMigrations = getEnvBool("RUN_MIGRATIONS", cfg.RunMigrations)
	cfg.RunSeed = getEnvBool("RUN_SEED", cfg.RunSeed)
	cfg.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(cfg.MaxBodyBytes)))
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.MagicLinkTTL = getEnvDuration("MAGIC_LINK_TTL", cfg.MagicLinkTTL)
	cfg.PasswordResetTTL = getEnvDuration("PASSWORD_RESET_TTL", cfg.PasswordResetTTL)
	cfg.TokenRequestsPerHour = getEnvInt("TOKEN_REQUESTS_PER_HOUR", cfg.TokenRequestsPerHour)
	cfg.TokenCleanupSchedule = getEnvRaw("TOKEN_CLEANUP_SCHEDULE", cfg.TokenCleanupSchedule)
	cfg.RetentionSchedule = getEnvRaw("RETENTION_SCHEDULE", cfg.RetentionSchedule)
	cfg.NotifyRetention = getEnvDuration("NOTIFICATION_RETENTION", cfg.NotifyRetention)
	cfg.AuditRetention = getEnvDuration("AUDIT_RETENTION", cfg.AuditRetention)
	cfg.JobRunRetention = getEnvDuration("JOB_RUN_RETENTION", cfg.JobRunRetention)
	cfg.IdempotencyRetention = getEnvDuration("IDEMPOTENCY_RETENTION", cfg.IdempotencyRetention)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvRaw lets an explicitly empty variable override the fallback.
func getEnvRaw(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.RunSeed && c.SeedAdminEmail != "" && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be set or RUN_SEED disabled in production")
		}
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.TokenRequestsPerHour <= 0 {
		return fmt.Errorf("TOKEN_REQUESTS_PER_HOUR must be positive")
	}
	if c.MagicLinkTTL <= 0 || c.PasswordResetTTL <= 0 {
		return fmt.Errorf("MAGIC_LINK_TTL and PASSWORD_RESET_TTL must be positive")
	}
	if c.NotifyRetention < 0 || c.AuditRetention < 0 || c.JobRunRetention < 0 || c.IdempotencyRetention < 0 {
		return fmt.Errorf("retention windows must not be negative")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}
