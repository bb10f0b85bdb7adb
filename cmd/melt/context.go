package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"melt/internal/config"
	"melt/internal/logging"
	"melt/internal/queue"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, verboseFlag: verboseFlag}
}

func (c *commandContext) verbose() bool {
	return c.verboseFlag != nil && *c.verboseFlag
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) openStore() (*queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	return store, nil
}

// newLogger builds the configured logger. Quiet mode keeps warnings and
// errors on the console so progress output stays readable.
func (c *commandContext) newLogger(quiet bool) (*slog.Logger, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if c.verbose() {
		level = "debug"
		quiet = false
	} else if quiet && parseQuietLevel(level) {
		level = "warn"
	}

	logFile, err := logging.OpenLogFile(filepath.Join(cfg.Paths.LogDir, "melt.log"))
	if err != nil {
		return nil, nil, err
	}
	var writer io.Writer = logFile
	if !quiet {
		writer = io.MultiWriter(os.Stderr, logFile)
	}

	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		Writer: writer,
	})
	if err != nil {
		_ = logFile.Close()
		return nil, nil, err
	}
	cleanup := func() { _ = logFile.Close() }
	return logger, cleanup, nil
}

// parseQuietLevel reports whether the configured level is verbose enough that
// quiet mode should raise it.
func parseQuietLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info":
		return true
	default:
		return false
	}
}

func (c *commandContext) lockPath() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Paths.LogDir, "melt.lock"), nil
}
