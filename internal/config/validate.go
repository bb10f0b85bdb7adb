package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateArtwork(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.StagingDir == c.Paths.LibraryDir {
		return errors.New("paths.staging_dir and paths.library_dir must differ")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if c.Conversion.Workers < -1 {
		return errors.New("conversion.workers must be -1, 0, or a positive count")
	}
	for _, ext := range c.Conversion.AudioExtensions {
		if ext == ".ncm" {
			return errors.New("conversion.audio_extensions must not list .ncm; containers are always converted")
		}
	}
	return nil
}

func (c *Config) validateArtwork() error {
	if !c.Artwork.Download {
		return nil
	}
	if c.Artwork.RequestTimeout <= 0 {
		return errors.New("artwork.request_timeout must be positive when artwork.download is true")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
