package main

import (
	"context"
	"strings"
	"sync"

	"github.com/RealZimboGuy/newsflow/internal/config"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the settings file, if one was given, and installs the
// logger at the configured level.
func (c *commandContext) ensureConfig() error {
	c.configOnce.Do(func() {
		if c.configFlag != nil {
			if path := strings.TrimSpace(*c.configFlag); path != "" {
				if err := config.LoadFile(path); err != nil {
					c.configErr = err
					return
				}
			}
		}
		newsflow.SetupLogger(newsflow.ParseLevel(config.GetSystemSettingString(config.LOG_LEVEL)))
	})
	return c.configErr
}

func (c *commandContext) withApp(ctx context.Context, fn func(*newsflow.App) error) error {
	app, err := newsflow.Open(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
