// Package scanner classifies the contents of the input directory into fresh
// render candidates and files that were already rendered but still need to be
// relocated.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"slowmo/internal/media"
	"slowmo/internal/pathutil"
)

// Handled reports whether an identity has already been taken by the monitor.
type Handled interface {
	IsHandled(identity string) bool
}

// Result holds one scan's classification.
type Result struct {
	Candidates           []media.SourceFile
	MarkedButUnrelocated []media.SourceFile
	// Skipped counts entries that could not be inspected this pass.
	Skipped int
}

// Scan lists inputDir without mutating it or the ledger. Files whose name
// carries marker are reported as MarkedButUnrelocated regardless of
// extension; other video files not yet handled are candidates, oldest
// modification time first.
func Scan(inputDir, marker string, handled Handled) (Result, error) {
	var result Result
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return result, fmt.Errorf("read input directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(inputDir, name)
		info, err := fileInfo(entry, path)
		if err != nil {
			// Removed between ReadDir and Info, or a dangling link; the next
			// tick sees the truth.
			result.Skipped++
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		file, err := media.FromInfo(path, info)
		if err != nil {
			result.Skipped++
			continue
		}

		if pathutil.HasMarker(name, marker) {
			result.MarkedButUnrelocated = append(result.MarkedButUnrelocated, file)
			continue
		}
		if !media.IsVideoName(name) {
			continue
		}
		if handled != nil && handled.IsHandled(file.Identity) {
			continue
		}
		result.Candidates = append(result.Candidates, file)
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.Before(b.ModTime)
		}
		return a.Name < b.Name
	})
	sort.SliceStable(result.MarkedButUnrelocated, func(i, j int) bool {
		return result.MarkedButUnrelocated[i].Name < result.MarkedButUnrelocated[j].Name
	})
	return result, nil
}

// fileInfo follows symbolic links so a linked clip is treated like the file
// it points at. Other entries use the cached directory info.
func fileInfo(entry os.DirEntry, path string) (os.FileInfo, error) {
	if entry.Type()&os.ModeSymlink != 0 {
		return os.Stat(path)
	}
	return entry.Info()
}
