// Package media holds the value types shared by the scanner, the render
// orchestrator, and the lifecycle manager.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"slowmo/internal/pathutil"
)

// VideoExtensions lists the recognized source extensions (lowercase, with dot).
var VideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".m4v"}

// SourceFile identifies one file under watch.
type SourceFile struct {
	Path     string
	Name     string
	Ext      string
	Identity string
	Size     int64
	ModTime  time.Time
}

// Base returns the file name without its extension.
func (f SourceFile) Base() string {
	return strings.TrimSuffix(f.Name, f.Ext)
}

// NewSourceFile stats path and builds a SourceFile for it.
func NewSourceFile(path string) (SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return SourceFile{}, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return SourceFile{}, fmt.Errorf("source %q is a directory", path)
	}
	return FromInfo(path, info)
}

// FromInfo builds a SourceFile from an already obtained FileInfo.
func FromInfo(path string, info os.FileInfo) (SourceFile, error) {
	identity, err := pathutil.Identity(path)
	if err != nil {
		return SourceFile{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return SourceFile{}, fmt.Errorf("resolve source path: %w", err)
	}
	name := filepath.Base(abs)
	return SourceFile{
		Path:     abs,
		Name:     name,
		Ext:      filepath.Ext(name),
		Identity: identity,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}

// IsVideoName reports whether name ends in a recognized video extension.
func IsVideoName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range VideoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
