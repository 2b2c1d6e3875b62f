//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type native struct{}

func (native) Name() string { return "unix" }

// ClearReadOnly grants the owner write permission when it is missing.
func (native) ClearReadOnly(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	mode := uint32(st.Mode) & 0o7777
	if mode&unix.S_IWUSR != 0 {
		return nil
	}
	if err := unix.Chmod(path, mode|unix.S_IWUSR); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// ForceRemove removes path. Removal on unix depends on the parent directory,
// so a failure here is reported as-is after one retry with write access
// restored on the file.
func (n native) ForceRemove(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return err
	}
	_ = n.ClearReadOnly(path)
	return os.Remove(path)
}
