package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// BackendConfig describes how to reach the billing platform backend.
type BackendConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
	UserAgent   string
}

// SessionConfig holds the idle-timeout policy for an authenticated session.
type SessionConfig struct {
	IdleTimeout   time.Duration
	WarningLead   time.Duration
	CheckInterval time.Duration
	TouchThrottle time.Duration
}

// PresenceConfig holds the heartbeat cadence.
type PresenceConfig struct {
	Interval    time.Duration
	GuardWindow time.Duration
}

// StorageConfig says where persisted session state lives.
type StorageConfig struct {
	DataFolder string
}

type AppConfig struct {
	Environment string
	AppName     string
	Backend     BackendConfig
	Session     SessionConfig
	Presence    PresenceConfig
	Storage     StorageConfig
}

// Load reads configuration from an optional config file and SESSIONCLIENT_*
// environment variables, falling back to defaults for anything unset.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SESSIONCLIENT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("appname", "Session Client")

	v.SetDefault("backend.baseurl", "http://localhost:8080")
	v.SetDefault("backend.httptimeout", "15s")
	v.SetDefault("backend.useragent", "paystream-admin-console")

	v.SetDefault("session.idletimeout", "30m")
	v.SetDefault("session.warninglead", "2m")
	v.SetDefault("session.checkinterval", "60s")
	v.SetDefault("session.touchthrottle", "1s")

	v.SetDefault("presence.interval", "60s")
	v.SetDefault("presence.guardwindow", "5s")

	v.SetDefault("storage.datafolder", "./data")
}
