package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveFFprobe reports the ffprobe binary to pair with ffmpegCommand.
//
// Static ffmpeg bundles ship ffprobe in the same directory, often outside
// PATH. When ffprobeCommand is the bare default name and ffmpegCommand points
// at such a bundle, the sibling binary wins; otherwise ffprobeCommand is
// resolved from PATH.
func ResolveFFprobe(ffmpegCommand, ffprobeCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Reads footage dimensions, frame rate and duration",
	}
	probe := strings.TrimSpace(ffprobeCommand)
	if probe == "" {
		probe = "ffprobe"
	}

	if probe == "ffprobe" {
		if ffmpeg := strings.TrimSpace(ffmpegCommand); ffmpeg != "" {
			if resolved, err := exec.LookPath(ffmpeg); err == nil {
				candidate := siblingBinary(resolved, "ffprobe")
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					return result
				}
			}
		}
	}

	if resolved, err := exec.LookPath(probe); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	result.Command = probe
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", probe)
	return result
}

func siblingBinary(path, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(path), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
