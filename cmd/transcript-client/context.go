// cmd/transcript-client/context.go
package main

import (
	"context"

	"github.com/spf13/cobra"

	"transcript-client/internal/app"
	"transcript-client/internal/common/config"
	"transcript-client/internal/common/logger"
)

// commandContext builds the App once per invocation, after flags are parsed.
type commandContext struct {
	configFlag *string
	app        *app.App
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	if c.configFlag != nil && *c.configFlag != "" {
		return config.LoadFromFile(*c.configFlag)
	}
	return config.Load()
}

func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewStructured(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// withApp builds the App before fn runs and releases it afterwards.
func (c *commandContext) withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := c.ensureApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := c.close(); err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, args, a)
	}
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
