package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvConfigPath overrides the config file location when no explicit path is given.
const EnvConfigPath = "SLOWMO_CONFIG"

// PathSet is one platform's directory table. Empty fields leave the
// top-level value in place.
type PathSet struct {
	InputDir     string `toml:"input_dir"`
	OutputDir    string `toml:"output_dir"`
	ProcessedDir string `toml:"processed_dir"`
	LogDir       string `toml:"log_dir"`
	StateDir     string `toml:"state_dir"`
}

// Paths contains directory configuration.
type Paths struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	// ProcessedDir is optional; when empty, marked sources stay in InputDir.
	ProcessedDir string `toml:"processed_dir"`
	// LogDir defaults to a logs directory beside OutputDir.
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`

	Windows *PathSet `toml:"windows"`
	Darwin  *PathSet `toml:"darwin"`
	Linux   *PathSet `toml:"linux"`
}

// Processing contains the render parameters and polling cadence.
type Processing struct {
	// TimeStretch is a percentage: 300 makes the result three times as long.
	TimeStretch     float64 `toml:"time_stretch"`
	ApplyBulletTime bool    `toml:"apply_bullet_time"`
	CheckIntervalMS int     `toml:"check_interval_ms"`
	TemplatePath    string  `toml:"template_path"`
	Marker          string  `toml:"marker"`
}

// Engine contains settings for the ffmpeg render backend.
type Engine struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	// MaxAttempts bounds engine failures per file per run.
	MaxAttempts int `toml:"max_attempts"`
	// RenderTimeout in seconds; 0 leaves a render unbounded.
	RenderTimeout int    `toml:"render_timeout"`
	VideoCodec    string `toml:"video_codec"`
	CRF           int    `toml:"crf"`
	Preset        string `toml:"preset"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics contains the Prometheus endpoint settings.
type Metrics struct {
	// Bind is a host:port for /metrics; empty disables the endpoint.
	Bind string `toml:"bind"`
}

// Notifications configures ntfy push alerts.
type Notifications struct {
	// NtfyTopic is the full topic URL; empty disables notifications.
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	// NotifyRenders also announces every successful render, not only alerts.
	NotifyRenders bool `toml:"notify_renders"`
}

// Config encapsulates all configuration values for slowmo.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Processing    Processing    `toml:"processing"`
	Engine        Engine        `toml:"engine"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/slowmo/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := decode(file, &cfg); err != nil {
			return nil, resolvedPath, true, err
		}
	}

	if err := cfg.normalize(currentPlatform()); err != nil {
		return nil, resolvedPath, exists, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, resolvedPath, exists, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decode(file *os.File, cfg *Config) error {
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(cfg)
	if err == nil {
		return nil
	}
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) && len(strict.Errors) > 0 {
		return &Error{
			Field:  strings.Join(strict.Errors[0].Key(), "."),
			Reason: "unknown key",
			Err:    err,
		}
	}
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return &Error{Reason: fmt.Sprintf("parse %s at line %d column %d", file.Name(), row, col), Err: err}
	}
	return &Error{Reason: "parse " + file.Name(), Err: err}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("slowmo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// RequiredDirectories lists the directories the daemon works in, in the
// order an operator would create them. The processed directory is included
// only when configured.
func (c *Config) RequiredDirectories() []string {
	dirs := []string{c.Paths.InputDir, c.Paths.OutputDir}
	if c.Paths.ProcessedDir != "" {
		dirs = append(dirs, c.Paths.ProcessedDir)
	}
	return append(dirs, c.Paths.LogDir, c.Paths.StateDir)
}

// MissingDirectories returns the RequiredDirectories that do not exist yet.
func (c *Config) MissingDirectories() []string {
	var missing []string
	for _, dir := range c.RequiredDirectories() {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, dir)
		}
	}
	return missing
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range c.RequiredDirectories() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CheckInterval returns the poll interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Processing.CheckIntervalMS) * time.Millisecond
}

// RenderTimeout returns the per-render bound, or 0 when unbounded.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Engine.RenderTimeout) * time.Second
}

// HistoryPath is the render journal database inside the state directory.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// NotifyTimeout bounds one ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// LockPath is the single-instance lock file inside the state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "slowmo.lock")
}

// PIDPath holds the running daemon's process id while it owns the lock.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "slowmo.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
