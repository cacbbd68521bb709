package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrConfigNotLoaded = errors.New("config not loaded")
)

type Environment string

const (
	Production  Environment = "prod"
	Development Environment = "dev"
)

func (e *Environment) SetValue(s string) error {
	*e = Environment(s)
	if *e != Production && *e != Development {
		return configNotLoadedErr(`only "prod" and "dev" environments are allowed`)
	}
	return nil
}

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMongo    Driver = "mongo"
	DriverMemory   Driver = "memory"
)

type Config struct {
	App struct {
		Env      Environment `yaml:"env" env:"ENV" env-required:""`
		Timezone string      `yaml:"timezone" env:"TIMEZONE" env-default:"UTC"`
	} `yaml:"app" env-prefix:"APP_" env-required:""`

	Server struct {
		Host string `yaml:"host" env:"HOST" env-default:"localhost"`
		Port int    `yaml:"port" env:"PORT" env-default:"8080"`
	} `yaml:"server" env-prefix:"SERVER_"`

	DB struct {
		Driver Driver `yaml:"driver" env:"DRIVER" env-default:"postgres"`
		DSN    string `yaml:"dsn" env:"DSN"`
	} `yaml:"db" env-prefix:"DB_"`

	Search struct {
		Driver   Driver `yaml:"driver" env:"DRIVER" env-default:"mongo"`
		URI      string `yaml:"uri" env:"URI"`
		Database string `yaml:"database" env:"DATABASE" env-default:"courses"`
	} `yaml:"search" env-prefix:"SEARCH_"`

	JWT struct {
		AccessTokenTTL time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"2h"`
		Secret         string        `yaml:"secret" env:"SECRET" env-required:""`
	} `yaml:"jwt" env-prefix:"JWT_" env-required:""`

	Timeouts struct {
		Store  time.Duration `yaml:"store" env:"STORE" env-default:"5s"`
		Index  time.Duration `yaml:"index" env:"INDEX" env-default:"3s"`
		Lookup time.Duration `yaml:"lookup" env:"LOOKUP" env-default:"2s"`
		Notify time.Duration `yaml:"notify" env:"NOTIFY" env-default:"5s"`
	} `yaml:"timeouts" env-prefix:"TIMEOUT_"`

	Notifications struct {
		Enabled    bool    `yaml:"enabled" env:"ENABLED" env-default:"false"`
		WebhookURL string  `yaml:"webhook_url" env:"WEBHOOK_URL"`
		Rate       float64 `yaml:"rate" env:"RATE" env-default:"10"`
		Burst      int     `yaml:"burst" env:"BURST" env-default:"5"`
		Workers    int     `yaml:"workers" env:"WORKERS" env-default:"2"`
		QueueSize  int     `yaml:"queue_size" env:"QUEUE_SIZE" env-default:"256"`
	} `yaml:"notifications" env-prefix:"NOTIFY_"`

	Rollover struct {
		Interval time.Duration `yaml:"interval" env:"INTERVAL" env-default:"1h"`
	} `yaml:"rollover" env-prefix:"ROLLOVER_"`
}

// Location is the time zone that decides what "today" is.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, configNotLoadedErr("invalid timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

func (c *Config) validate() error {
	if err := c.App.Env.SetValue(string(c.App.Env)); err != nil {
		return err
	}

	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return configNotLoadedErr("db.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return configNotLoadedErr("unknown db driver %q", c.DB.Driver)
	}

	switch c.Search.Driver {
	case DriverMongo:
		if c.Search.URI == "" {
			return configNotLoadedErr("search.uri is required for the mongo driver")
		}
	case DriverMemory:
	default:
		return configNotLoadedErr("unknown search driver %q", c.Search.Driver)
	}

	if c.Notifications.Workers < 1 || c.Notifications.QueueSize < 1 {
		return configNotLoadedErr("notifications.workers and notifications.queue_size must be positive")
	}
	if c.Rollover.Interval <= 0 {
		return configNotLoadedErr("rollover.interval must be positive")
	}
	_, err := c.Location()
	return err
}

func Load(filePath string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(filePath, cfg); err != nil {
		return nil, configNotLoadedErr("config not loaded: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad(filePath string) *Config {
	cfg, err := Load(filePath)
	if err != nil {
		panic(err)
	}
	return cfg
}

func configNotLoadedErr(format string, args ...any) error {
	return errors.Join(fmt.Errorf(format, args...), ErrConfigNotLoaded)
}
