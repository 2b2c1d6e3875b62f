package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const maxLineBytes = 1024 * 1024

// Last returns up to limit trailing lines of path and the offset of its end.
// A missing file yields no lines and offset 0.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	ring := make([]string, limit)
	count, idx := 0, 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// FollowOptions configures Follow.
type FollowOptions struct {
	// Offset is where reading starts in the file path currently resolves to.
	Offset int64
	// Poll is the interval between reads; defaults to 250ms.
	Poll time.Duration
	// Match filters lines when set.
	Match func(line string) bool
}

// Follow emits complete lines appended to path until ctx is done. When path
// starts resolving to a different file, or the file shrinks, reading restarts
// at offset 0. A partial trailing line is held back until its newline lands.
func Follow(ctx context.Context, path string, opts FollowOptions, emit func(line string)) error {
	poll := opts.Poll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	offset := opts.Offset
	current, _ := os.Stat(path)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		info, err := os.Stat(path)
		switch {
		case err == nil:
			if current != nil && !os.SameFile(current, info) {
				offset = 0
			}
			if info.Size() < offset {
				offset = 0
			}
			current = info
			lines, next, err := readForward(path, offset)
			if err != nil {
				return err
			}
			offset = next
			for _, line := range lines {
				if opts.Match == nil || opts.Match(line) {
					emit(line)
				}
			}
		case errors.Is(err, os.ErrNotExist):
			current = nil
			offset = 0
		default:
			return fmt.Errorf("stat log file: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// readForward returns the complete lines after offset and the offset just
// past the last newline consumed.
func readForward(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, offset, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		chunk, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, offset, nil
			}
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(chunk))
		lines = append(lines, trimNewline(chunk))
	}
}

func trimNewline(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
