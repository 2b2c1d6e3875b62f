package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"slowmo/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv(config.EnvConfigPath, "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, "slowmo", "input"); cfg.Paths.InputDir != want {
		t.Fatalf("unexpected input dir: got %q want %q", cfg.Paths.InputDir, want)
	}
	if want := filepath.Join(tempHome, "slowmo", "logs"); cfg.Paths.LogDir != want {
		t.Fatalf("expected log dir beside output, got %q want %q", cfg.Paths.LogDir, want)
	}
	if cfg.Paths.ProcessedDir != "" {
		t.Fatalf("expected processed dir unset by default, got %q", cfg.Paths.ProcessedDir)
	}
	if cfg.Processing.TimeStretch != 300 {
		t.Fatalf("unexpected time stretch: %v", cfg.Processing.TimeStretch)
	}
	if !cfg.Processing.ApplyBulletTime {
		t.Fatal("expected bullet time enabled by default")
	}
	if cfg.CheckInterval().Milliseconds() != 2000 {
		t.Fatalf("unexpected check interval: %v", cfg.CheckInterval())
	}
	if cfg.Processing.Marker != "_processed" {
		t.Fatalf("unexpected marker: %q", cfg.Processing.Marker)
	}
	if cfg.Engine.MaxAttempts != 3 || cfg.RenderTimeout() != 0 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.HistoryPath() != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.HistoryPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "slowmo.toml")

	type payload struct {
		Paths struct {
			InputDir     string `toml:"input_dir"`
			OutputDir    string `toml:"output_dir"`
			ProcessedDir string `toml:"processed_dir"`
		} `toml:"paths"`
		Processing struct {
			TimeStretch     float64 `toml:"time_stretch"`
			ApplyBulletTime bool    `toml:"apply_bullet_time"`
		} `toml:"processing"`
		Engine struct {
			RenderTimeout int `toml:"render_timeout"`
		} `toml:"engine"`
	}
	custom := payload{}
	custom.Paths.InputDir = filepath.Join(tempDir, "in")
	custom.Paths.OutputDir = filepath.Join(tempDir, "out")
	custom.Paths.ProcessedDir = filepath.Join(tempDir, "done")
	custom.Processing.TimeStretch = 150
	custom.Processing.ApplyBulletTime = false
	custom.Engine.RenderTimeout = 600
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.ProcessedDir != filepath.Join(tempDir, "done") {
		t.Fatalf("unexpected processed dir: %q", cfg.Paths.ProcessedDir)
	}
	if cfg.Paths.LogDir != filepath.Join(tempDir, "logs") {
		t.Fatalf("unexpected derived log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Processing.TimeStretch != 150 || cfg.Processing.ApplyBulletTime {
		t.Fatalf("processing overrides not applied: %+v", cfg.Processing)
	}
	if cfg.RenderTimeout().Seconds() != 600 {
		t.Fatalf("unexpected render timeout: %v", cfg.RenderTimeout())
	}
}

func TestLoadHonoursEnvConfigPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "env.toml")
	content := "[processing]\ntime_stretch = 200\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvConfigPath, configPath)
	t.Setenv("HOME", tempDir)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected env config path, got %q (exists=%v)", resolved, exists)
	}
	if cfg.Processing.TimeStretch != 200 {
		t.Fatalf("expected time stretch from env config, got %v", cfg.Processing.TimeStretch)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "bad.toml")
	content := "[processing]\ntime_strech = 200\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, _, err := config.Load(configPath)
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %T: %v", err, err)
	}
	if cfgErr.Field != "processing.time_strech" {
		t.Fatalf("unexpected field %q", cfgErr.Field)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(configPath, []byte("[paths\ninput_dir = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := config.Load(configPath)
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %T: %v", err, err)
	}
	if !strings.Contains(cfgErr.Error(), "line") {
		t.Fatalf("expected position in error, got %q", cfgErr.Error())
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	t.Setenv("HOME", t.TempDir())

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if runtime.GOOS != "windows" && !strings.Contains(cfg.Paths.ProcessedDir, "processed") {
		t.Fatalf("expected processed dir in sample, got %q", cfg.Paths.ProcessedDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"zero stretch", func(c *config.Config) { c.Processing.TimeStretch = 0 }, "processing.time_stretch"},
		{"zero interval", func(c *config.Config) { c.Processing.CheckIntervalMS = 0 }, "processing.check_interval_ms"},
		{"marker separator", func(c *config.Config) { c.Processing.Marker = "a/b" }, "processing.marker"},
		{"zero attempts", func(c *config.Config) { c.Engine.MaxAttempts = 0 }, "engine.max_attempts"},
		{"negative timeout", func(c *config.Config) { c.Engine.RenderTimeout = -1 }, "engine.render_timeout"},
		{"crf range", func(c *config.Config) { c.Engine.CRF = 60 }, "engine.crf"},
		{"log level", func(c *config.Config) { c.Logging.Level = "chatty" }, "logging.level"},
		{"ntfy topic scheme", func(c *config.Config) { c.Notifications.NtfyTopic = "ntfy.sh/x" }, "notifications.ntfy_topic"},
		{"notify timeout", func(c *config.Config) { c.Notifications.RequestTimeout = -1 }, "notifications.request_timeout"},
		{"output inside input", func(c *config.Config) {
			c.Paths.InputDir = "/srv/in"
			c.Paths.OutputDir = "/srv/in/out"
		}, "paths.output_dir"},
		{"processed equals input", func(c *config.Config) {
			c.Paths.InputDir = "/srv/in"
			c.Paths.ProcessedDir = "/srv/in/"
		}, "paths.processed_dir"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			var cfgErr *config.Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *config.Error, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("field = %q, want %q", cfgErr.Field, tc.field)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestMissingAndEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InputDir = filepath.Join(base, "in")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")

	if got := len(cfg.MissingDirectories()); got != 4 {
		t.Fatalf("expected 4 missing directories, got %d", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if missing := cfg.MissingDirectories(); len(missing) != 0 {
		t.Fatalf("expected none missing, got %v", missing)
	}
}
