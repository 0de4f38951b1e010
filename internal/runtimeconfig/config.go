// Package runtimeconfig loads fluxio's own ambient runtime knobs using
// viper. It never configures pipeline topology — topology is assembled in
// code via pkg/task, not from a file (spec.md's non-goal on dynamic
// topology changes applies here too).
package runtimeconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/fluxio/internal/obslog"
)

// Config is the root of fluxio's ambient configuration.
type Config struct {
	// ChannelGrowChunk is the initial queue capacity new pkg/pchan channels
	// are allocated with; queues still grow past it.
	ChannelGrowChunk int `mapstructure:"channel_grow_chunk"`

	// MonitorInterval is how often pkg/monitor samples registered tasks.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`

	Log obslog.Config `mapstructure:"log"`
}

// Default returns the configuration fluxio runs with when no file or
// environment overrides are present.
func Default() Config {
	return Config{
		ChannelGrowChunk: 256,
		MonitorInterval:  time.Second,
		Log:              obslog.DefaultConfig(),
	}
}

// Load reads configuration from path (if non-empty) and from FLUXIO_*
// environment variables, layered over Default().
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("fluxio")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("channel_grow_chunk", cfg.ChannelGrowChunk)
	v.SetDefault("monitor_interval", cfg.MonitorInterval)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
