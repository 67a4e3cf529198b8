package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeDev     = "dev"
	ModeRelease = "release"

	DriverMySQL  = "mysql"
	DriverMemory = "memory"

	DefaultPath = "config/config.yaml"
)

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // mysql | memory
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"user"`
	Password    string `yaml:"password"`
	DBName      string `yaml:"dbname"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	Certificate  Certs    `yaml:"certificate"`
}

// 貸出ポリシー（上限冊数・貸出期間・延滞料）
type PolicyConfig struct {
	MaxActiveItems     int           `yaml:"max_active_items"`
	MaxLoanDays        int           `yaml:"max_loan_days"`
	DailyPenaltyRate   string        `yaml:"daily_penalty_rate"` // "1.00"
	ReservationTimeout time.Duration `yaml:"reservation_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type NotifyConfig struct {
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int           `yaml:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	Workers     int           `yaml:"workers"`
}

type RemindersConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	WindowDays int           `yaml:"window_days"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Version   string          `yaml:"version"`
	Mode      string          `yaml:"mode"`
	Server    ServerConfig    `yaml:"server"`
	DB        DatabaseConfig  `yaml:"database"`
	Policy    PolicyConfig    `yaml:"policy"`
	Auth      AuthConfig      `yaml:"auth"`
	Notify    NotifyConfig    `yaml:"notify"`
	Reminders RemindersConfig `yaml:"reminders"`
	Log       LogConfig       `yaml:"log"`
}

// Load は .env → YAML → 環境変数の順に読み込み、既定値を埋めて検証する。
func Load(path string) (*Config, error) {
	// .env は無くてもよい
	_ = godotenv.Load()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// 秘密情報は環境変数を優先
func (c *Config) applyEnv() {
	if v := os.Getenv("LIBRARY_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("LIBRARY_DB_DRIVER"); v != "" {
		c.DB.Driver = v
	}
	if v := os.Getenv("LIBRARY_DB_HOST"); v != "" {
		c.DB.Host = v
	}
	if v := os.Getenv("LIBRARY_DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("LIBRARY_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDev
	}
	c.Mode = strings.ToLower(c.Mode)
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = DriverMySQL
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.Policy.MaxActiveItems == 0 {
		c.Policy.MaxActiveItems = 3
	}
	if c.Policy.MaxLoanDays == 0 {
		c.Policy.MaxLoanDays = 30
	}
	if c.Policy.DailyPenaltyRate == "" {
		c.Policy.DailyPenaltyRate = "1.00"
	}
	if c.Policy.ReservationTimeout == 0 {
		c.Policy.ReservationTimeout = 2 * time.Second
	}
	if c.Notify.Interval == 0 {
		c.Notify.Interval = 5 * time.Second
	}
	if c.Notify.BatchSize == 0 {
		c.Notify.BatchSize = 100
	}
	if c.Notify.MaxAttempts == 0 {
		c.Notify.MaxAttempts = 5
	}
	if c.Notify.Workers == 0 {
		c.Notify.Workers = 4
	}
	if c.Reminders.Interval == 0 {
		c.Reminders.Interval = 24 * time.Hour
	}
	if c.Reminders.WindowDays == 0 {
		c.Reminders.WindowDays = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		return fmt.Errorf("invalid mode %q (dev|release)", c.Mode)
	}
	switch c.DB.Driver {
	case DriverMySQL:
		if c.DB.Host == "" || c.DB.DBName == "" {
			return fmt.Errorf("database.host and database.dbname are required for mysql")
		}
	case DriverMemory:
		if c.Mode == ModeRelease {
			return fmt.Errorf("memory driver is not allowed in release mode")
		}
	default:
		return fmt.Errorf("invalid database.driver %q (mysql|memory)", c.DB.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or LIBRARY_JWT_SECRET)")
	}
	if c.Policy.MaxActiveItems < 1 || c.Policy.MaxLoanDays < 1 {
		return fmt.Errorf("policy.max_active_items and policy.max_loan_days must be >= 1")
	}
	if c.Reminders.WindowDays < 0 {
		return fmt.Errorf("reminders.window_days must be >= 0")
	}
	return nil
}
