package agent

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidConfig   = errors.New("invalid model agent config")
)

// Config describes one model agent. Strategy names resolve against the
// registry at load time, so a typo fails configuration, not the hourly run.
type Config struct {
	ID              string  `mapstructure:"id"`
	Provider        string  `mapstructure:"provider"`
	ModelName       string  `mapstructure:"model_name"`
	Enabled         bool    `mapstructure:"enabled"`
	StrategyProfile string  `mapstructure:"strategy_profile"`
	MaxDailyPicks   int     `mapstructure:"max_daily_picks"`
	Temperature     float64 `mapstructure:"temperature"`
	Strategy        string  `mapstructure:"strategy"`
}

type configFile struct {
	Models []map[string]any `mapstructure:"models"`
}

// LoadConfigs reads the model agent YAML file. A missing file means no
// agents are configured and is not an error.
func LoadConfigs(path string) ([]Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read model agent config %s: %w", path, err)
	}

	var file configFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("parse model agent config %s: %w", path, err)
	}

	configs := make([]Config, 0, len(file.Models))
	for idx, raw := range file.Models {
		cfg, err := decodeConfig(raw)
		if err != nil {
			return nil, fmt.Errorf("model agent config %s entry %d: %w", path, idx, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func decodeConfig(raw map[string]any) (Config, error) {
	item := viper.New()
	for key, value := range raw {
		item.Set(key, value)
	}
	item.SetDefault("enabled", true)
	item.SetDefault("strategy_profile", "default")
	item.SetDefault("max_daily_picks", models.MaxPicksPerCycle)
	item.SetDefault("temperature", 0.2)
	item.SetDefault("strategy", StrategyDefault)

	var cfg Config
	if err := item.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	if cfg.ID == "" || cfg.Provider == "" || cfg.ModelName == "" {
		return fmt.Errorf("id, provider, and model_name are required: %w", ErrInvalidConfig)
	}
	if cfg.MaxDailyPicks < 0 {
		return fmt.Errorf("max_daily_picks must be non-negative: %w", ErrInvalidConfig)
	}
	if _, err := newStrategy(cfg.Strategy); err != nil {
		return err
	}
	return nil
}
