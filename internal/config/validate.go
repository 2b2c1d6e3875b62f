package config

import (
	"path/filepath"
	"strings"

	"slowmo/internal/pathutil"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	if c.Paths.InputDir == "" {
		return fieldError("paths.input_dir", "must be set")
	}
	if c.Paths.OutputDir == "" {
		return fieldError("paths.output_dir", "must be set")
	}
	if c.Paths.StateDir == "" {
		return fieldError("paths.state_dir", "must be set")
	}
	if pathutil.IsWithin(c.Paths.InputDir, c.Paths.OutputDir) {
		return fieldError("paths.output_dir", "must not be inside paths.input_dir (%s)", c.Paths.InputDir)
	}
	if c.Paths.ProcessedDir != "" && filepath.Clean(c.Paths.ProcessedDir) == filepath.Clean(c.Paths.InputDir) {
		return fieldError("paths.processed_dir", "must differ from paths.input_dir")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.TimeStretch <= 0 {
		return fieldError("processing.time_stretch", "must be positive (percent), got %v", c.Processing.TimeStretch)
	}
	if c.Processing.CheckIntervalMS <= 0 {
		return fieldError("processing.check_interval_ms", "must be positive")
	}
	if strings.ContainsAny(c.Processing.Marker, `/\`) {
		return fieldError("processing.marker", "must not contain path separators")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.MaxAttempts < 1 {
		return fieldError("engine.max_attempts", "must be >= 1")
	}
	if c.Engine.RenderTimeout < 0 {
		return fieldError("engine.render_timeout", "must be >= 0 (seconds, 0 = unbounded)")
	}
	if c.Engine.CRF < 0 || c.Engine.CRF > 51 {
		return fieldError("engine.crf", "must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fieldError("logging.level", "unsupported value %q", c.Logging.Level)
	}
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return fieldError("notifications.request_timeout", "must be >= 0 seconds")
	}
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fieldError("notifications.ntfy_topic", "must be an http(s) URL, got %q", topic)
	}
	return nil
}
