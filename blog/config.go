package blog

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type AdminConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config is built from defaults, then an optional YAML file, then the
// environment. Command-line flags are applied by the caller last.
type Config struct {
	Addr         string        `yaml:"addr"`
	SecretKey    string        `yaml:"secret_key"`
	DatabaseURL  string        `yaml:"database_url"`
	AdminID      int64         `yaml:"admin_id"`
	Admin        AdminConfig   `yaml:"admin"`
	Session      SessionConfig `yaml:"session"`
	Redis        RedisConfig   `yaml:"redis"`
	Mail         MailConfig    `yaml:"mail"`
	PasswordCost int           `yaml:"password_cost"`
	LogLevel     string        `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Addr: ":5002",
		Session: SessionConfig{
			Store:           SessionStorePostgres,
			Lifetime:        30 * 24 * time.Hour,
			CleanupInterval: 30 * time.Minute,
			CookieName:      defaultCookieName,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Mail: MailConfig{
			Host:    "smtp.gmail.com",
			Port:    defaultMailPort,
			Timeout: defaultMailTimeout,
		},
		PasswordCost: DefaultPasswordCost,
		LogLevel:     "info",
	}
}

// LoadConfig reads path (if not empty) over the defaults and then applies
// environment variables found through lookup, normally os.LookupEnv.
func LoadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	parse := func(key string, set func(string) error) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		if err := set(v); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "environment variable %s", key)
		}
	}
	duration := func(dst *time.Duration) func(string) error {
		return func(v string) (err error) {
			*dst, err = time.ParseDuration(v)
			return err
		}
	}
	integer := func(dst *int) func(string) error {
		return func(v string) (err error) {
			*dst, err = strconv.Atoi(v)
			return err
		}
	}

	str("ADDR", &c.Addr)
	str("APP_KEY", &c.SecretKey)
	str("DATABASE_URL", &c.DatabaseURL)
	parse("ADMIN_ID", func(v string) (err error) {
		c.AdminID, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	str("ADMIN_NAME", &c.Admin.Name)
	str("ADMIN_EMAIL", &c.Admin.Email)
	str("ADMIN_PASSWORD", &c.Admin.Password)
	str("SESSION_STORE", &c.Session.Store)
	parse("SESSION_LIFETIME", duration(&c.Session.Lifetime))
	parse("SESSION_CLEANUP_INTERVAL", duration(&c.Session.CleanupInterval))
	parse("SESSION_SECURE_COOKIE", func(v string) (err error) {
		c.Session.SecureCookie, err = strconv.ParseBool(v)
		return err
	})
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	parse("REDIS_DB", integer(&c.Redis.DB))
	str("MAIL_HOST", &c.Mail.Host)
	parse("MAIL_PORT", integer(&c.Mail.Port))
	str("EMAIL_ADDRESS", &c.Mail.Username)
	str("EMAIL_PASSWORD", &c.Mail.Password)
	str("CONTACT_RECIPIENT", &c.Mail.Recipient)
	parse("MAIL_TIMEOUT", duration(&c.Mail.Timeout))
	parse("PASSWORD_COST", integer(&c.PasswordCost))
	str("LOG_LEVEL", &c.LogLevel)
	return firstErr
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	switch {
	case c.SecretKey == "":
		return errors.New("a secret key is required (APP_KEY)")
	case c.DatabaseURL == "":
		return errors.New("a database URL is required (DATABASE_URL)")
	case c.AdminID == 0 && c.Admin.Email == "":
		return errors.New("an admin is required (ADMIN_ID or ADMIN_EMAIL)")
	case c.Admin.Email != "" && c.AdminID == 0 && c.Admin.Password == "":
		return errors.New("bootstrapping the admin needs ADMIN_PASSWORD")
	case c.Session.Lifetime <= 0:
		return errors.New("session lifetime must be positive")
	case c.Session.Store == SessionStorePostgres && c.Session.CleanupInterval <= 0:
		return errors.New("session cleanup interval must be positive")
	case c.PasswordCost != 0 && (c.PasswordCost < bcrypt.MinCost || c.PasswordCost > bcrypt.MaxCost):
		return errors.Errorf("password cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch c.Session.Store {
	case SessionStorePostgres, SessionStoreRedis, SessionStoreMemory:
	default:
		return errors.Errorf("unknown session store %q", c.Session.Store)
	}
	return nil
}

// MailEnabled reports whether an outbound account is configured.
func (c Config) MailEnabled() bool {
	return c.Mail.Username != "" && c.Mail.Password != ""
}
