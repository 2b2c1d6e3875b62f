package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"slowmo/internal/fileutil"
	"slowmo/internal/platform"
)

// FS is the set of filesystem operations the lifecycle manager performs.
// Tests substitute implementations that fail selected calls.
type FS interface {
	Rename(oldPath, newPath string) error
	Copy(src, dst string) error
	Remove(path string) error
	MkdirAll(dir string) error
	Exists(path string) (bool, error)
}

// OSFS is the production FS. Removal goes through the platform's force
// remove so read-only attributes do not block deletion.
type OSFS struct {
	Platform platform.Capabilities
}

// NewOSFS returns an OSFS backed by caps, or the host default when nil.
func NewOSFS(caps platform.Capabilities) OSFS {
	if caps == nil {
		caps = platform.Default()
	}
	return OSFS{Platform: caps}
}

func (f OSFS) Rename(oldPath, newPath string) error {
	if exists, err := f.Exists(newPath); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("rename %s: %w", newPath, fileutil.ErrDestinationExists)
	}
	return os.Rename(oldPath, newPath)
}

func (OSFS) Copy(src, dst string) error {
	return fileutil.CopyFileVerified(src, dst)
}

func (f OSFS) Remove(path string) error {
	return f.Platform.ForceRemove(path)
}

func (OSFS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func (OSFS) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// uniquePath returns dir/name, or dir/"stem (n)ext" for the first n that does
// not exist yet.
func uniquePath(fsys FS, dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	exists, err := fsys.Exists(candidate)
	if err != nil || !exists {
		return candidate, err
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i < 1000; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		exists, err = fsys.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}
