package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slowmo/internal/config"
	"slowmo/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	if len(opts) == 0 {
		opts = []testsupport.ConfigOption{testsupport.WithMissingEngine()}
	}
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("SLOWMO_CONFIG", "")

	env := &cliTestEnv{cfg: cfg, configPath: filepath.Join(base, "slowmo.toml")}
	testsupport.WriteConfigFile(t, env.configPath, cfg)
	return env
}

func (e *cliTestEnv) createDirectories(t *testing.T) {
	t.Helper()
	if err := e.cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
}

func (e *cliTestEnv) writeInput(t *testing.T, name string, age time.Duration) {
	t.Helper()
	testsupport.WriteClip(t, e.cfg.Paths.InputDir, name, age)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
