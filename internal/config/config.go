package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DB         DBConfig        `json:"db" toml:"db"`
	WebEnabled bool            `json:"web_enabled" toml:"web_enabled"`
	WebPort    int             `json:"web_port" toml:"web_port"`
	LogLevel   string          `json:"log_level" toml:"log_level"`
	AuthSecret string          `json:"auth_secret,omitempty" toml:"auth_secret,omitempty"`
	RateLimit  RateLimitConfig `json:"rate_limit" toml:"rate_limit"`
	SMS        SMSConfig       `json:"sms" toml:"sms"`
}

type DBConfig struct {
	Driver       string `json:"driver" toml:"driver"`
	Path         string `json:"path,omitempty" toml:"path,omitempty"`
	DSN          string `json:"dsn,omitempty" toml:"dsn,omitempty"`
	MaxOpenConns int    `json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" toml:"max_idle_conns"`
	MaxIdleTime  string `json:"max_idle_time" toml:"max_idle_time"`
}

type RateLimitConfig struct {
	Enabled bool    `json:"enabled" toml:"enabled"`
	RPS     float64 `json:"rps" toml:"rps"`
	Burst   int     `json:"burst" toml:"burst"`
}

// SMSConfig describes the SMTP account used to reach an email-to-SMS gateway.
// Texts go to To@Gateway, e.g. 5551234567@txt.att.net.
type SMSConfig struct {
	SMTPHost     string `json:"smtp_host,omitempty" toml:"smtp_host,omitempty"`
	SMTPPort     int    `json:"smtp_port" toml:"smtp_port"`
	SMTPUsername string `json:"smtp_username,omitempty" toml:"smtp_username,omitempty"`
	SMTPPassword string `json:"smtp_password,omitempty" toml:"smtp_password,omitempty"`
	Sender       string `json:"sender,omitempty" toml:"sender,omitempty"`
	Gateway      string `json:"gateway,omitempty" toml:"gateway,omitempty"`
	To           string `json:"to,omitempty" toml:"to,omitempty"`
	PerMinute    int    `json:"per_minute" toml:"per_minute"`
}

func Default() Config {
	return Config{
		DB: DBConfig{
			Driver:       "sqlite",
			MaxOpenConns: 25,
			MaxIdleConns: 25,
			MaxIdleTime:  "15m",
		},
		WebPort:   8080,
		LogLevel:  "info",
		RateLimit: RateLimitConfig{RPS: 2, Burst: 4},
		SMS:       SMSConfig{SMTPPort: 587, PerMinute: 10},
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "taskboard", "config.json"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, err
	}

	if isTOML(path) {
		if err := toml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		return config, nil
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// ApplyEnv overrides fields from the environment. It runs after Save so that
// secrets passed this way never reach the config file.
func (c *Config) ApplyEnv() error {
	setString(&c.DB.Driver, "TASKBOARD_DB_DRIVER")
	setString(&c.DB.DSN, "TASKBOARD_DB_DSN")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.AuthSecret, "TASKBOARD_AUTH_SECRET")
	setString(&c.SMS.SMTPHost, "SMTP_HOST")
	setString(&c.SMS.SMTPUsername, "SMTP_USERNAME")
	setString(&c.SMS.SMTPPassword, "SMTP_PASSWORD")
	setString(&c.SMS.Sender, "SMTP_SENDER")
	setString(&c.SMS.Gateway, "SMS_GATEWAY")
	setString(&c.SMS.To, "SMS_TO")

	if value := os.Getenv("SMTP_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.SMS.SMTPPort = port
	}
	return nil
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" && c.DB.DSN == "" {
			return fmt.Errorf("db.path is required for sqlite")
		}
	case "postgres", "mysql":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for %s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}

	if _, err := c.DB.IdleTime(); err != nil {
		return err
	}
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return fmt.Errorf("invalid web_port %d", c.WebPort)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit needs positive rps and burst")
	}
	if c.SMS.Enabled() {
		if c.SMS.Gateway == "" || c.SMS.To == "" || c.SMS.Sender == "" {
			return fmt.Errorf("sms.gateway, sms.to and sms.sender are required with sms.smtp_host")
		}
	}
	return nil
}

// DataSource is the sqlite path or the configured DSN.
func (d DBConfig) DataSource() string {
	if d.DSN != "" {
		return d.DSN
	}
	return d.Path
}

func (d DBConfig) IdleTime() (time.Duration, error) {
	if strings.TrimSpace(d.MaxIdleTime) == "" {
		return 0, nil
	}
	value, err := time.ParseDuration(d.MaxIdleTime)
	if err != nil {
		return 0, fmt.Errorf("invalid db.max_idle_time %q: %w", d.MaxIdleTime, err)
	}
	return value, nil
}

func (s SMSConfig) Enabled() bool {
	return s.SMTPHost != ""
}

func (s SMSConfig) Recipient() string {
	return s.To + "@" + s.Gateway
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}
