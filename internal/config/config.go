package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/postwave/postwave/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Reddit    RedditConfig    `yaml:"reddit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Sync      SyncConfig      `yaml:"sync"`
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	Host       string `yaml:"host"`
	Mode       string `yaml:"mode"`
	TOTPSecret string `yaml:"totp_secret"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type RedditConfig struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	UserAgent      string `yaml:"user_agent"`
	BaseURL        string `yaml:"base_url"`
	TokenURL       string `yaml:"token_url"`
	RequestTimeout string `yaml:"request_timeout"`
}

type SchedulerConfig struct {
	PollInterval string `yaml:"poll_interval"`
	Enabled      bool   `yaml:"enabled"`
}

type RateLimitConfig struct {
	WindowSeconds     int `yaml:"window_seconds"`
	RequestsPerWindow int `yaml:"requests_per_window"`
	NearLimitPercent  int `yaml:"near_limit_percent"`
}

type SyncConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Interval     string `yaml:"interval"`
	FetchLimit   int    `yaml:"fetch_limit"`
	InsertBatch  int    `yaml:"insert_batch"`
	AccountDelay string `yaml:"account_delay"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5380
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Reddit.BaseURL == "" {
		cfg.Reddit.BaseURL = "https://oauth.reddit.com"
	}
	if cfg.Reddit.TokenURL == "" {
		cfg.Reddit.TokenURL = "https://www.reddit.com/api/v1/access_token"
	}
	if cfg.Reddit.UserAgent == "" {
		cfg.Reddit.UserAgent = "postwave/0.1 (campaign scheduler)"
	}
	if cfg.Reddit.RequestTimeout == "" {
		cfg.Reddit.RequestTimeout = "120s"
	}
	if cfg.Scheduler.PollInterval == "" {
		cfg.Scheduler.PollInterval = "60s"
	}
	if !cfg.Scheduler.Enabled {
		cfg.Scheduler.Enabled = true
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.RateLimit.RequestsPerWindow == 0 {
		cfg.RateLimit.RequestsPerWindow = 60
	}
	if cfg.RateLimit.NearLimitPercent == 0 {
		cfg.RateLimit.NearLimitPercent = 80
	}
	if cfg.Sync.Interval == "" {
		cfg.Sync.Interval = "1h"
	}
	if cfg.Sync.FetchLimit == 0 {
		cfg.Sync.FetchLimit = 50
	}
	if cfg.Sync.InsertBatch == 0 {
		cfg.Sync.InsertBatch = 10
	}
	if cfg.Sync.AccountDelay == "" {
		cfg.Sync.AccountDelay = "2s"
	}

	return cfg, nil
}
