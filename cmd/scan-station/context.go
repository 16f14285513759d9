package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/BearBump/PassportDesk/config"
)

type commandContext struct {
	configFlag *string
	verbose    *bool
	factories  stationFactories

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool, f stationFactories) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
		factories:  f,
	}
}

// ensureConfig loads --config, then $configPath. Without either the station
// runs on defaults.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = strings.TrimSpace(os.Getenv("configPath"))
		}
		if path == "" {
			c.config = &config.Config{}
			return
		}
		c.config, c.configErr = config.LoadConfig(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if c.verbose != nil && *c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
