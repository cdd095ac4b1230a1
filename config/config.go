// Package config defines the structures to configure the isolator service.
package config

import (
	"net"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/isolatorcalc/isolator/logging"
	"github.com/isolatorcalc/isolator/modal"
)

const (
	defaultBindAddress        = "localhost:8080"
	defaultShutdownTimeout    = 10 * time.Second
	defaultFreeCalculations   = 3
	defaultRequestsPerMinute  = 60
	defaultRequestBurst       = 10
	defaultSQLitePath         = "isolator.db"
	defaultWebhookTolerance   = 5 * time.Minute
	defaultCheckoutSuccessURL = "http://localhost:8080/?success=true"
	defaultCheckoutCancelURL  = "http://localhost:8080/?canceled=true"
	defaultLogFileMaxSizeMB   = 100
	defaultLogFileMaxBackups  = 3
)

// Config describes how to run the isolator service.
type Config struct {
	ConfigFilePath string `json:"-"`

	Debug     bool                          `json:"debug,omitempty" env:"ISOLATOR_DEBUG"`
	LogConfig []logging.LoggerPatternConfig `json:"log,omitempty"`
	LogFile   *LogFileConfig                `json:"log_file,omitempty"`

	Network NetworkConfig `json:"network"`
	Auth    AuthConfig    `json:"auth"`
	Usage   UsageConfig   `json:"usage"`
	Storage StorageConfig `json:"storage"`
	Billing BillingConfig `json:"billing"`
	Solver  SolverConfig  `json:"solver"`
}

// LogFileConfig enables a rotated log file in addition to stdout.
type LogFileConfig struct {
	Path       string `json:"path" env:"ISOLATOR_LOG_FILE"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// NetworkConfig describes the HTTP listener.
type NetworkConfig struct {
	BindAddress     string   `json:"bind_address,omitempty" env:"ISOLATOR_BIND_ADDRESS"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty" env:"ISOLATOR_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout string   `json:"shutdown_timeout,omitempty" env:"ISOLATOR_SHUTDOWN_TIMEOUT"`

	shutdownTimeout time.Duration
}

// ShutdownWait is how long in-flight requests get to finish on shutdown. It is only valid after Validate.
func (nc NetworkConfig) ShutdownWait() time.Duration {
	return nc.shutdownTimeout
}

// AuthConfig holds the secret used to verify bearer tokens. With no secret every caller is anonymous.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret,omitempty" env:"ISOLATOR_JWT_SECRET"`
}

// UsageConfig describes the free tier and per-client request rate.
type UsageConfig struct {
	FreeCalculations  int     `json:"free_calculations,omitempty" env:"ISOLATOR_FREE_CALCULATIONS"`
	RequestsPerMinute float64 `json:"requests_per_minute,omitempty" env:"ISOLATOR_REQUESTS_PER_MINUTE"`
	RequestBurst      int     `json:"request_burst,omitempty" env:"ISOLATOR_REQUEST_BURST"`
}

// StorageConfig locates the payments database.
type StorageConfig struct {
	SQLitePath string `json:"sqlite_path,omitempty" env:"ISOLATOR_SQLITE_PATH"`
}

// BillingConfig holds the Stripe credentials. Without a secret key checkout is disabled, and
// without a webhook secret the webhook is disabled.
type BillingConfig struct {
	StripeSecretKey  string        `json:"stripe_secret_key,omitempty" env:"ISOLATOR_STRIPE_SECRET_KEY"`
	WebhookSecret    string        `json:"webhook_secret,omitempty" env:"ISOLATOR_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `json:"-"`

	// SuccessURL and CancelURL are where Stripe sends the customer after checkout.
	SuccessURL string `json:"success_url,omitempty" env:"ISOLATOR_CHECKOUT_SUCCESS_URL"`
	CancelURL  string `json:"cancel_url,omitempty" env:"ISOLATOR_CHECKOUT_CANCEL_URL"`
}

// SolverConfig selects the assembly model used by the API.
type SolverConfig struct {
	Model string `json:"model,omitempty" env:"ISOLATOR_SOLVER_MODEL"`
}

// ModalModel returns the parsed model. It is only valid after Ensure.
func (sc SolverConfig) ModalModel() modal.Model {
	m, err := modal.ModelFromString(sc.Model)
	if err != nil {
		return modal.ModelReference
	}
	return m
}

// Ensure fills in defaults and validates the config.
func (c *Config) Ensure() error {
	if err := c.Network.Validate("network"); err != nil {
		return err
	}
	if err := c.Usage.Validate("usage"); err != nil {
		return err
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = defaultSQLitePath
	}
	if err := c.Billing.Validate("billing"); err != nil {
		return err
	}
	if _, err := modal.ModelFromString(c.Solver.Model); err != nil {
		return newConfigValidationError("solver", err)
	}
	if c.LogFile != nil {
		if err := c.LogFile.Validate("log_file"); err != nil {
			return err
		}
	}
	for idx, lpc := range c.LogConfig {
		if !logging.ValidatePattern(lpc.Pattern) {
			return newConfigValidationError("log", errors.Errorf("pattern %d %q is malformed", idx, lpc.Pattern))
		}
		if _, err := logging.LevelFromString(lpc.Level); err != nil {
			return newConfigValidationError("log", err)
		}
	}
	return nil
}

// Validate fills in defaults and ensures all parts of the config are valid.
func (nc *NetworkConfig) Validate(path string) error {
	if nc.BindAddress == "" {
		nc.BindAddress = defaultBindAddress
	}
	if _, _, err := net.SplitHostPort(nc.BindAddress); err != nil {
		return newConfigValidationError(path, errors.Wrap(err, "invalid bind_address"))
	}
	nc.shutdownTimeout = defaultShutdownTimeout
	if nc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(nc.ShutdownTimeout)
		if err != nil {
			return newConfigValidationError(path, errors.Wrap(err, "invalid shutdown_timeout"))
		}
		if d > 0 {
			nc.shutdownTimeout = d
		}
	}
	return nil
}

// Validate fills in defaults and ensures the limits are usable.
func (uc *UsageConfig) Validate(path string) error {
	if uc.FreeCalculations < 0 {
		return newConfigValidationError(path, errors.New("free_calculations cannot be negative"))
	}
	if uc.FreeCalculations == 0 {
		uc.FreeCalculations = defaultFreeCalculations
	}
	if uc.RequestsPerMinute < 0 || uc.RequestBurst < 0 {
		return newConfigValidationError(path, errors.New("request limits cannot be negative"))
	}
	if uc.RequestsPerMinute == 0 {
		uc.RequestsPerMinute = defaultRequestsPerMinute
	}
	if uc.RequestBurst == 0 {
		uc.RequestBurst = defaultRequestBurst
	}
	return nil
}

// Validate fills in defaults and ensures the checkout return URLs are absolute.
func (bc *BillingConfig) Validate(path string) error {
	if bc.WebhookTolerance == 0 {
		bc.WebhookTolerance = defaultWebhookTolerance
	}
	if bc.SuccessURL == "" {
		bc.SuccessURL = defaultCheckoutSuccessURL
	}
	if bc.CancelURL == "" {
		bc.CancelURL = defaultCheckoutCancelURL
	}
	for _, field := range []struct{ name, raw string }{
		{"success_url", bc.SuccessURL},
		{"cancel_url", bc.CancelURL},
	} {
		if u, err := url.Parse(field.raw); err != nil || !u.IsAbs() {
			return newConfigValidationError(path, errors.Errorf("%s %q must be an absolute URL", field.name, field.raw))
		}
	}
	return nil
}

// Validate fills in defaults and ensures a path is set.
func (lc *LogFileConfig) Validate(path string) error {
	if lc.Path == "" {
		return newConfigValidationFieldRequiredError(path, "path")
	}
	if lc.MaxSizeMB == 0 {
		lc.MaxSizeMB = defaultLogFileMaxSizeMB
	}
	if lc.MaxBackups == 0 {
		lc.MaxBackups = defaultLogFileMaxBackups
	}
	return nil
}

func newConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

func newConfigValidationFieldRequiredError(path, field string) error {
	return newConfigValidationError(path, errors.Errorf("%q is required", field))
}
