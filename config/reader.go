package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"github.com/isolatorcalc/isolator/logging"
)

// Read reads a config from the given file. ${VAR} references in the file are expanded from the
// environment before decoding.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := Config{
		ConfigFilePath: originalPath,
	}
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}
	return processConfig(&cfg, logger)
}

// Default returns the config used when no file is given: defaults plus environment overrides.
func Default(logger logging.Logger) (*Config, error) {
	return processConfig(&Config{}, logger)
}

func processConfig(cfg *Config, logger logging.Logger) (*Config, error) {
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Ensure(); err != nil {
		return nil, errors.Wrap(err, "failed to process Config")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Debug("no jwt secret configured; every caller is anonymous")
	}
	if cfg.Billing.WebhookSecret == "" {
		logger.Debug("no webhook secret configured; payment webhook is disabled")
	}
	if cfg.Billing.StripeSecretKey == "" {
		logger.Debug("no stripe secret key configured; checkout is disabled")
	}
	return cfg, nil
}
