package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"donationdesk/internal/model"
	"donationdesk/internal/workflow"
)

// Config holds all runtime settings of the API server.
type Config struct {
	Port    string `mapstructure:"PORT"`
	GinMode string `mapstructure:"GIN_MODE"`

	DBHost        string `mapstructure:"DB_HOST"`
	DBPort        string `mapstructure:"DB_PORT"`
	DBUser        string `mapstructure:"DB_USER"`
	DBPassword    string `mapstructure:"DB_PASSWORD"`
	DBName        string `mapstructure:"DB_NAME"`
	DBSSLMode     string `mapstructure:"DB_SSLMODE"`
	DBAutoMigrate bool   `mapstructure:"DB_AUTO_MIGRATE"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	CORSOrigins   string `mapstructure:"CORS_ORIGINS"`
	CreatorRoles  string `mapstructure:"CREATOR_ROLES"`
	ApproverRoles string `mapstructure:"APPROVER_ROLES"`
	OverrideRoles string `mapstructure:"OVERRIDE_ROLES"`
	WSRoles       string `mapstructure:"WS_ROLES"`
	AdminRoles    string `mapstructure:"ADMIN_ROLES"`

	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	NotificationExchange    string `mapstructure:"NOTIFICATION_EXCHANGE"`
	NotificationRetryCron   string `mapstructure:"NOTIFICATION_RETRY_CRON"`
	NotificationMaxAttempts int    `mapstructure:"NOTIFICATION_MAX_ATTEMPTS"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"PORT", "GIN_MODE",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "DB_AUTO_MIGRATE",
	"JWT_SECRET", "JWT_TTL",
	"CORS_ORIGINS", "CREATOR_ROLES", "APPROVER_ROLES", "OVERRIDE_ROLES", "WS_ROLES", "ADMIN_ROLES",
	"RABBITMQ_URL", "NOTIFICATION_EXCHANGE", "NOTIFICATION_RETRY_CRON", "NOTIFICATION_MAX_ATTEMPTS",
	"LOG_LEVEL", "LOG_FORMAT",
}

// Load reads envFile (when present) into the process environment and then the
// environment into a Config. Missing files are not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("GIN_MODE", "debug")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "postgres")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_AUTO_MIGRATE", true)
	viper.SetDefault("JWT_TTL", "24h")
	viper.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	viper.SetDefault("APPROVER_ROLES", "super_admin,mission_authority")
	viper.SetDefault("OVERRIDE_ROLES", "super_admin")
	viper.SetDefault("CREATOR_ROLES", "super_admin,itc_admin,mission_authority,accounts_user")
	viper.SetDefault("WS_ROLES", "super_admin,itc_admin,mission_authority,accounts_user")
	viper.SetDefault("ADMIN_ROLES", "super_admin")
	viper.SetDefault("NOTIFICATION_EXCHANGE", "donor_notifications")
	viper.SetDefault("NOTIFICATION_RETRY_CRON", "@every 1m")
	viper.SetDefault("NOTIFICATION_MAX_ATTEMPTS", 5)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.AutomaticEnv()

	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.IsRelease() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set when GIN_MODE=release")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.NotificationMaxAttempts < 1 {
		return fmt.Errorf("NOTIFICATION_MAX_ATTEMPTS must be at least 1, got %d", c.NotificationMaxAttempts)
	}
	for _, list := range []struct {
		name  string
		roles []string
	}{
		{"CREATOR_ROLES", c.Creators()},
		{"APPROVER_ROLES", c.Approvers()},
		{"OVERRIDE_ROLES", c.Overrides()},
		{"WS_ROLES", c.WebsocketRoles()},
		{"ADMIN_ROLES", c.Admins()},
	} {
		for _, r := range list.roles {
			if !isRole(r) {
				return fmt.Errorf("%s: unknown role %q", list.name, r)
			}
		}
	}
	if len(c.Approvers()) == 0 {
		return fmt.Errorf("APPROVER_ROLES must name at least one role")
	}
	return nil
}

func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// DSN builds the postgres connection URL.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// JWTSigningKey returns the HMAC key. Outside release mode an unset secret falls
// back to a fixed development key.
func (c *Config) JWTSigningKey() []byte {
	if c.JWTSecret == "" {
		return []byte("dev-only-insecure-secret")
	}
	return []byte(c.JWTSecret)
}

func (c *Config) AllowedOrigins() []string { return splitList(c.CORSOrigins) }
func (c *Config) Creators() []string       { return splitList(c.CreatorRoles) }
func (c *Config) Approvers() []string      { return splitList(c.ApproverRoles) }
func (c *Config) Overrides() []string      { return splitList(c.OverrideRoles) }
func (c *Config) WebsocketRoles() []string { return splitList(c.WSRoles) }
func (c *Config) Admins() []string         { return splitList(c.AdminRoles) }

// RetrySchedule is the cron spec of the notification retry job, empty when set to "off".
func (c *Config) RetrySchedule() string {
	if strings.EqualFold(strings.TrimSpace(c.NotificationRetryCron), "off") {
		return ""
	}
	return strings.TrimSpace(c.NotificationRetryCron)
}

// Policy builds the workflow role policy from the configured role sets.
func (c *Config) Policy() workflow.Policy {
	return workflow.Policy{
		CreatorRoles:  c.Creators(),
		ApproverRoles: c.Approvers(),
		OverrideRoles: c.Overrides(),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isRole(r string) bool {
	for _, known := range model.AllRoles {
		if r == known {
			return true
		}
	}
	return false
}
