package preflight

import (
	"fmt"
	"os"

	"slowmo/internal/config"
	"slowmo/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := checkAccess(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the engine binaries for the given config. Both
// the daemon and the CLI status command use it.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	ffprobe := deps.ResolveFFprobe(cfg.Engine.FFmpegBinary, cfg.Engine.FFprobeBinary)
	return deps.CheckBinaries(deps.EngineRequirements(cfg.Engine.FFmpegBinary, ffprobe.Command))
}
