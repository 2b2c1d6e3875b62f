// Package testsupport builds throwaway configurations, clips and journals for
// package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"slowmo/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose working directories live under a fresh
// temp directory. Directories are not created unless WithDirectories is
// given.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InputDir = filepath.Join(base, "in")
	cfgVal.Paths.OutputDir = filepath.Join(base, "out")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Processing.CheckIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithProcessedDir enables relocation into <base>/processed.
func WithProcessedDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.ProcessedDir = filepath.Join(b.baseDir, "processed")
	}
}

// WithDirectories creates every required directory.
func WithDirectories() ConfigOption {
	return func(b *configBuilder) {
		if err := b.cfg.EnsureDirectories(); err != nil {
			b.t.Fatalf("ensure directories: %v", err)
		}
	}
}

// WithStubbedBinaries writes stub executables for ffmpeg and ffprobe (or the
// provided names) and points the engine config at them.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
			switch name {
			case "ffmpeg":
				b.cfg.Engine.FFmpegBinary = target
			case "ffprobe":
				b.cfg.Engine.FFprobeBinary = target
			}
		}
	}
}

// WithMissingEngine points the engine at binaries that do not exist.
func WithMissingEngine() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.FFmpegBinary = filepath.Join(b.baseDir, "missing", "ffmpeg")
		b.cfg.Engine.FFprobeBinary = filepath.Join(b.baseDir, "missing", "ffprobe")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WriteConfigFile renders cfg's paths and engine binaries as TOML at path so
// config.Load reproduces them.
func WriteConfigFile(t testing.TB, path string, cfg *config.Config) {
	t.Helper()
	content := "[paths]\n" +
		"input_dir = " + quote(cfg.Paths.InputDir) + "\n" +
		"output_dir = " + quote(cfg.Paths.OutputDir) + "\n" +
		"log_dir = " + quote(cfg.Paths.LogDir) + "\n" +
		"state_dir = " + quote(cfg.Paths.StateDir) + "\n"
	if cfg.Paths.ProcessedDir != "" {
		content += "processed_dir = " + quote(cfg.Paths.ProcessedDir) + "\n"
	}
	content += "\n[engine]\n" +
		"ffmpeg_binary = " + quote(cfg.Engine.FFmpegBinary) + "\n" +
		"ffprobe_binary = " + quote(cfg.Engine.FFprobeBinary) + "\n"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// quote produces a TOML literal string, which takes backslashes verbatim.
func quote(value string) string {
	return "'" + value + "'"
}
