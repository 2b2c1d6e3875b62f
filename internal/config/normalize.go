package config

import (
	"path/filepath"
	"strings"

	"slowmo/internal/pathutil"
	"slowmo/internal/platform"
)

func currentPlatform() string {
	return platform.OS()
}

func (c *Config) normalize(goos string) error {
	c.applyPlatformPaths(goos)
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeEngine()
	c.normalizeLogging()
	c.normalizeNotifications()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

// applyPlatformPaths overlays the table matching goos onto the top-level
// paths. The tables are then dropped; nothing downstream reads them.
func (c *Config) applyPlatformPaths(goos string) {
	var set *PathSet
	switch goos {
	case "windows":
		set = c.Paths.Windows
	case "darwin":
		set = c.Paths.Darwin
	case "linux":
		set = c.Paths.Linux
	}
	if set != nil {
		overlay(&c.Paths.InputDir, set.InputDir)
		overlay(&c.Paths.OutputDir, set.OutputDir)
		overlay(&c.Paths.ProcessedDir, set.ProcessedDir)
		overlay(&c.Paths.LogDir, set.LogDir)
		overlay(&c.Paths.StateDir, set.StateDir)
	}
	c.Paths.Windows, c.Paths.Darwin, c.Paths.Linux = nil, nil, nil
}

func overlay(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.input_dir", &c.Paths.InputDir},
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.processed_dir", &c.Paths.ProcessedDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"processing.template_path", &c.Processing.TemplatePath},
	}
	for _, field := range fields {
		expanded, err := expandPath(pathutil.Normalize(*field.value))
		if err != nil {
			return &Error{Field: field.key, Reason: "cannot resolve path", Err: err}
		}
		*field.value = expanded
	}
	if c.Paths.LogDir == "" && c.Paths.OutputDir != "" {
		c.Paths.LogDir = filepath.Join(filepath.Dir(c.Paths.OutputDir), "logs")
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	c.Processing.Marker = strings.TrimSpace(c.Processing.Marker)
	if c.Processing.Marker == "" {
		c.Processing.Marker = defaultMarker
	}
}

func (c *Config) normalizeEngine() {
	c.Engine.FFmpegBinary = strings.TrimSpace(c.Engine.FFmpegBinary)
	if c.Engine.FFmpegBinary == "" {
		c.Engine.FFmpegBinary = defaultFFmpegBinary
	}
	c.Engine.FFprobeBinary = strings.TrimSpace(c.Engine.FFprobeBinary)
	if c.Engine.FFprobeBinary == "" {
		c.Engine.FFprobeBinary = defaultFFprobeBinary
	}
	c.Engine.VideoCodec = strings.TrimSpace(c.Engine.VideoCodec)
	if c.Engine.VideoCodec == "" {
		c.Engine.VideoCodec = defaultVideoCodec
	}
	c.Engine.Preset = strings.TrimSpace(c.Engine.Preset)
	if c.Engine.Preset == "" {
		c.Engine.Preset = defaultPreset
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}
