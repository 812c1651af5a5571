package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	DB      DBConfig      `mapstructure:"db"`
	Billing BillingConfig `mapstructure:"billing"`
	Signal  SignalConfig  `mapstructure:"signal"`
}

type DBConfig struct {
	Path     string `mapstructure:"path"`
	MaxConns int    `mapstructure:"max_conns"`
}

type BillingConfig struct {
	// Interval is the settlement cadence; one minute is billed per tick.
	Interval time.Duration `mapstructure:"interval"`
	// ReaderSharePct of each charge is credited to the reader, floored;
	// the platform retains the remainder.
	ReaderSharePct int64 `mapstructure:"reader_share_pct"`
	// PauseGrace is how long a PAUSED session waits for a reconnect before
	// it is finalized as cancelled. Zero disables forced finalization.
	PauseGrace time.Duration `mapstructure:"pause_grace"`
}

type SignalConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("db.path", "./oracle.db")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("billing.interval", "60s")
	v.SetDefault("billing.reader_share_pct", 70)
	v.SetDefault("billing.pause_grace", "2m")
	v.SetDefault("signal.rate_limit", 60)
	v.SetDefault("signal.rate_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Billing.ReaderSharePct < 0 || cfg.Billing.ReaderSharePct > 100 {
		return nil, fmt.Errorf("billing.reader_share_pct out of range: %d", cfg.Billing.ReaderSharePct)
	}
	return &cfg, nil
}
