package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigFileUnreadable       = errors.New("config file unreadable")
	ErrConfigFileUnmarshallable   = errors.New("config file unmarshallable")
	ErrStoreDirMissing            = errors.New("storeDir is required")
	ErrRemoteEndpointMissing      = errors.New("remote endpoint is required")
	ErrSessionTokenMissing        = errors.New("session token is required")
	ErrNegativeInterval           = errors.New("probe intervals must be positive")
	ErrSendLimiterBurstOutOfRange = errors.New("send limiter burst must be positive when a limit is set")
)

type Remote struct {
	Endpoint   string `yaml:"endpoint"`
	SkipVerify bool   `yaml:"skipVerify"`
}

type Session struct {
	Token string `yaml:"token"`
}

type Probes struct {
	Connectivity time.Duration `yaml:"connectivity"`
	Session      time.Duration `yaml:"session"`
	Drain        time.Duration `yaml:"drain"`
}

type RateLimiterConfig struct {
	Limit float64 `yaml:"limit"` // Sends per second
	Burst int     `yaml:"burst"` // Burst size
}

type Config struct {
	StoreDir    string            `yaml:"storeDir"`
	Remote      Remote            `yaml:"remote"`
	Session     Session           `yaml:"session"`
	Probes      Probes            `yaml:"probes"`
	DrainBatch  int               `yaml:"drainBatch"`
	SendLimiter RateLimiterConfig `yaml:"sendLimiter"`
}

func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, ErrConfigFileUnreadable
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, ErrConfigFileUnmarshallable
	}

	// Basic validation
	if cfg.StoreDir == "" {
		return nil, ErrStoreDirMissing
	}
	if cfg.Remote.Endpoint == "" {
		return nil, ErrRemoteEndpointMissing
	}
	if cfg.Session.Token == "" {
		return nil, ErrSessionTokenMissing
	}
	if cfg.Probes.Connectivity < 0 || cfg.Probes.Session < 0 || cfg.Probes.Drain < 0 {
		return nil, ErrNegativeInterval
	}
	if cfg.SendLimiter.Limit > 0 && cfg.SendLimiter.Burst <= 0 {
		return nil, ErrSendLimiterBurstOutOfRange
	}

	return &cfg, nil
}
