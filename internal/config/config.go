package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	Market MarketConfig `mapstructure:"market"`
	Agents AgentsConfig `mapstructure:"agents"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
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
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DailyFaucet     string `mapstructure:"daily_faucet"`
	ModelRun        string `mapstructure:"model_run"`
	IngestSync      string `mapstructure:"ingest_sync"`
	CurationRewards string `mapstructure:"curation_rewards"`
}

type MarketConfig struct {
	StartingChips       int64 `mapstructure:"starting_chips"`
	DailyChips          int64 `mapstructure:"daily_chips"`
	CurationMinAgeHours int   `mapstructure:"curation_min_age_hours"`
}

type AgentsConfig struct {
	ConfigPath string `mapstructure:"config_path"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TCM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "market.db")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.daily_faucet", "0 5 0 * * *")
	v.SetDefault("cron.model_run", "0 15 * * * *")
	v.SetDefault("cron.ingest_sync", "0 0 * * * *")
	v.SetDefault("cron.curation_rewards", "0 30 * * * *")
	v.SetDefault("market.starting_chips", 100)
	v.SetDefault("market.daily_chips", 10)
	v.SetDefault("market.curation_min_age_hours", 24)
	v.SetDefault("agents.config_path", "config/model_agents.yaml")

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
