package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CHAT"

type HTTP struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type GRPC struct {
	Addr string `yaml:"addr" validate:"required"`
}

type Logging struct {
	Env       string `yaml:"env" validate:"omitempty,oneof=dev stage prod"`
	Service   string `yaml:"service"`
	Version   string `yaml:"version"`
	Backend   string `yaml:"backend" validate:"omitempty,oneof=std zap"`
	Level     string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug"`
}

type Store struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres badger"`
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns" validate:"gte=0"`
	MinConns          int32         `yaml:"minConns" validate:"gte=0"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	Migrate           bool          `yaml:"migrate"`
}

type Badger struct {
	Path string `yaml:"path"`
}

type Redis struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

type Auth struct {
	PublicKeyPath string        `yaml:"publicKeyPath" validate:"required"`
	Issuer        string        `yaml:"issuer" validate:"required"`
	Audience      string        `yaml:"audience"`
	EmailClaim    string        `yaml:"emailClaim"`
	ClockSkew     time.Duration `yaml:"clockSkew" validate:"gte=0,lte=1m"`
}

type RateLimit struct {
	Messages int           `yaml:"messages" validate:"gte=0"`
	Window   time.Duration `yaml:"window" validate:"gte=0"`
}

type Chat struct {
	MaxBodyLength  int           `yaml:"maxBodyLength" validate:"gt=0"`
	StoreTimeout   time.Duration `yaml:"storeTimeout" validate:"gt=0"`
	SendBuffer     int           `yaml:"sendBuffer" validate:"gt=0"`
	PingEvery      time.Duration `yaml:"pingEvery" validate:"gt=0"`
	MaxFrameBytes  int64         `yaml:"maxFrameBytes" validate:"gt=0"`
	HistoryLimit   int           `yaml:"historyLimit" validate:"gt=0,lte=100"`
	RateLimit      RateLimit     `yaml:"rateLimit"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Store    Store    `yaml:"store"`
	Postgres Postgres `yaml:"postgres"`
	Badger   Badger   `yaml:"badger"`
	Redis    Redis    `yaml:"redis"`
	Auth     Auth     `yaml:"auth"`
	Chat     Chat     `yaml:"chat"`
}

// LoadConfig reads the YAML file at CONFIG_PATH (./config/config.yaml by default),
// applies CHAT_* environment overrides, fills defaults and validates the result.
// A .env file in the working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}
	if c.Auth.EmailClaim == "" {
		c.Auth.EmailClaim = "email"
	}
	if c.Chat.MaxBodyLength == 0 {
		c.Chat.MaxBodyLength = 4000
	}
	if c.Chat.StoreTimeout == 0 {
		c.Chat.StoreTimeout = 5 * time.Second
	}
	if c.Chat.SendBuffer == 0 {
		c.Chat.SendBuffer = 64
	}
	if c.Chat.PingEvery == 0 {
		c.Chat.PingEvery = 15 * time.Second
	}
	if c.Chat.MaxFrameBytes == 0 {
		c.Chat.MaxFrameBytes = 1 << 16
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = 50
	}
	if c.Chat.RateLimit.Window == 0 {
		c.Chat.RateLimit.Window = time.Minute
	}
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for store.driver=postgres")
		}
	case "badger":
		if c.Badger.Path == "" {
			return errors.New("badger.path is required for store.driver=badger")
		}
	}
	if c.Chat.RateLimit.Messages > 0 && c.Redis.URL == "" {
		return errors.New("redis.url is required when chat.rateLimit.messages > 0")
	}
	return nil
}
