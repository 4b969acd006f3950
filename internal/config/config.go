package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Network  NetworkConfig  `toml:"network"`
	Auth     AuthConfig     `toml:"auth"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Name       string `toml:"name"`
	Port       int    `toml:"port"`
	Env        string `toml:"env"` // "production" or "development"
	ClientDist string `toml:"client_dist"`
	MapPath    string `toml:"map_path"`
	DataDir    string `toml:"data_dir"` // item/job yaml tables
	StartTime  int64  // set at boot, not from config
}

type DatabaseConfig struct {
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type NetworkConfig struct {
	InQueueSize   int           `toml:"in_queue_size"`  // scheduler command channel
	OutQueueSize  int           `toml:"out_queue_size"` // per-connection send queue
	MaxCmdPerTick int           `toml:"max_cmd_per_tick"`
	WriteTimeout  time.Duration `toml:"write_timeout"`
	ReadTimeout   time.Duration `toml:"read_timeout"`
}

type AuthConfig struct {
	RegistrationToken string `toml:"registration_token"`
	TokenSecret       string `toml:"token_secret"` // 32-byte hex; random per boot when empty
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads the TOML config at path, then applies environment overrides.
// A missing file is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnv(cfg)
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// applyEnv maps the process environment onto the config. Environment wins
// over the file so container deployments need no TOML at all.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REGISTRATION_TOKEN"); v != "" {
		cfg.Auth.RegistrationToken = v
	}
	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := os.Getenv("CLIENT_DIST"); v != "" {
		cfg.Server.ClientDist = v
	}
	if v := os.Getenv("OPENCITY_ENV"); v != "" {
		cfg.Server.Env = v
	} else if v := os.Getenv("NODE_ENV"); v != "" {
		cfg.Server.Env = v
	}
	if v := os.Getenv("MAP_PATH"); v != "" {
		cfg.Server.MapPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Production reports whether the server runs with production timings
// (train interval applies; spawns are not immediate).
func (c *Config) Production() bool {
	return c.Server.Env == "production"
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:       "Opencity",
			Port:       8080,
			Env:        "development",
			ClientDist: "client/dist",
			MapPath:    "data/map.yaml",
			DataDir:    "data",
		},
		Database: DatabaseConfig{
			Path:        "opencity.db",
			BusyTimeout: 5 * time.Second,
		},
		Network: NetworkConfig{
			InQueueSize:   1024,
			OutQueueSize:  256,
			MaxCmdPerTick: 64,
			WriteTimeout:  10 * time.Second,
			ReadTimeout:   120 * time.Second,
		},
		Auth: AuthConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
