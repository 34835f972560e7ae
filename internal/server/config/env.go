package config

import (
	"github.com/caarlos0/env/v11"
)

// parseEnv overlays TASKKEEPER_* variables onto config. Unset variables
// leave the current value untouched; malformed values panic, like the other
// sources.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
