package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Server         ServerConfig         `mapstructure:"server"`
	Log            LogConfig            `mapstructure:"log"`
	DB             DBConfig             `mapstructure:"db"`
	Cron           CronConfig           `mapstructure:"cron"`
	Gamma          GammaConfig          `mapstructure:"gamma"`
	ResolutionSync ResolutionSyncConfig `mapstructure:"resolution_sync"`
	Engine         EngineConfig         `mapstructure:"engine"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// AuthToken gates /api/ routes behind a static bearer token when set.
	AuthToken string `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ResolutionSync string `mapstructure:"resolution_sync"`
	Attribution    string `mapstructure:"attribution"`
}

type GammaConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
}

type ResolutionSyncConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	PageLimit   int           `mapstructure:"page_limit"`
	MaxPages    int           `mapstructure:"max_pages"`
	Overlap     time.Duration `mapstructure:"overlap"`
	InitialFrom string        `mapstructure:"initial_from"`
}

type EngineConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	WindowDays     int           `mapstructure:"window_days"`
	WorkerCount    int           `mapstructure:"worker_count"`
	MinTradeCost   string        `mapstructure:"min_trade_cost"`
	ReadBatchSize  int           `mapstructure:"read_batch_size"`
	WriteBatchSize int           `mapstructure:"write_batch_size"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
}

type MetricsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	WindowDays int  `mapstructure:"window_days"`
	BatchSize  int  `mapstructure:"batch_size"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ATTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.resolution_sync", "@every 15m")
	v.SetDefault("cron.attribution", "@every 6h")
	v.SetDefault("gamma.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("gamma.timeout", "15s")
	v.SetDefault("gamma.rate_per_sec", 4.0)
	v.SetDefault("gamma.burst", 8)
	v.SetDefault("resolution_sync.enabled", true)
	v.SetDefault("resolution_sync.page_limit", 200)
	v.SetDefault("resolution_sync.max_pages", 10)
	v.SetDefault("resolution_sync.overlap", "1h")
	v.SetDefault("resolution_sync.initial_from", "")
	v.SetDefault("engine.enabled", false)
	v.SetDefault("engine.window_days", 30)
	v.SetDefault("engine.worker_count", 8)
	v.SetDefault("engine.min_trade_cost", "0.01")
	v.SetDefault("engine.read_batch_size", 5000)
	v.SetDefault("engine.write_batch_size", 500)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("engine.retry_base", "500ms")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.window_days", 90)
	v.SetDefault("metrics.batch_size", 5000)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
