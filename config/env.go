package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// ParseEnv overlays ISOLATOR_* environment variables onto cfg. Unset variables leave the
// existing values alone.
func ParseEnv(cfg *Config) error {
	if cfg.LogFile == nil {
		var lf LogFileConfig
		if err := env.Parse(&lf); err != nil {
			return errors.Wrap(err, "parse env")
		}
		if lf.Path != "" {
			cfg.LogFile = &lf
		}
	}
	if err := env.Parse(cfg); err != nil {
		return errors.Wrap(err, "parse env")
	}
	return nil
}
