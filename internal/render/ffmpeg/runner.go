package ffmpeg

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its captured output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec. The process is killed when ctx ends.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// tail returns the last lines of stderr output, bounded in size, for use as
// a failure detail.
func tail(output []byte, lines int) string {
	var kept []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) > lines {
		kept = kept[len(kept)-lines:]
	}
	joined := strings.Join(kept, " | ")
	const limit = 512
	if len(joined) > limit {
		joined = "..." + joined[len(joined)-limit:]
	}
	return joined
}
