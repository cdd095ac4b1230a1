package cli

import (
	"context"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/isolatorcalc/isolator/config"
	"github.com/isolatorcalc/isolator/logging"
	"github.com/isolatorcalc/isolator/subscription"
	"github.com/isolatorcalc/isolator/usage"
	"github.com/isolatorcalc/isolator/web"
)

// ServeAction is the corresponding Action for 'serve'.
func ServeAction(c *cli.Context) error {
	logger := logging.NewLogger("isolator")
	logging.ReplaceGlobal(logger)
	config.InitLoggingSettings(logger, c.Bool(debugFlag))

	var (
		cfg *config.Config
		err error
	)
	if path := c.String(configFlag); path != "" {
		cfg, err = config.Read(path, logger)
	} else {
		cfg, err = config.Default(logger)
	}
	if err != nil {
		return err
	}
	return RunServer(c.Context, cfg, logger)
}

// RunServer runs the web service for cfg until ctx is done, reloading the config file when it changes.
func RunServer(ctx context.Context, cfg *config.Config, logger logging.Logger) (err error) {
	defer func() {
		err = multierr.Combine(err, logger.Sync())
	}()

	if cfg.LogFile != nil {
		fileAppender := logging.NewFileAppender(cfg.LogFile.Path, cfg.LogFile.MaxSizeMB, cfg.LogFile.MaxBackups)
		logger.AddAppender(fileAppender)
		defer func() {
			err = multierr.Combine(err, fileAppender.Close())
		}()
	}
	if err := config.ApplyLogConfig(cfg); err != nil {
		return err
	}

	store, err := subscription.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, store.Close())
	}()

	limiter := usage.NewMemoryLimiter(cfg.Usage.FreeCalculations)
	options := web.OptionsFromConfig(cfg, limiter)
	options.Subscriptions = store
	options.Payments = store

	svc := web.New(options, logger.Sublogger("web"))
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	// watch for and apply changes to the config file
	watcher, err := config.NewWatcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, watcher.Close())
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case newCfg := <-watcher.Config():
			if err := config.ApplyLogConfig(newCfg); err != nil {
				logger.Errorw("error applying log config", "error", err)
			}
			limiter.SetLimit(newCfg.Usage.FreeCalculations)
			if newCfg.Network.BindAddress != cfg.Network.BindAddress {
				logger.Warnw("bind address changes require a restart", "address", newCfg.Network.BindAddress)
			}
			logger.Infow("config reloaded", "free_calculations", newCfg.Usage.FreeCalculations, "debug", newCfg.Debug)
		}
	}
}
