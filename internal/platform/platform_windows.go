//go:build windows

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

type native struct{}

func (native) Name() string { return "windows" }

// ClearReadOnly drops FILE_ATTRIBUTE_READONLY, the equivalent of attrib -R.
func (native) ClearReadOnly(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return fmt.Errorf("encode path %s: %w", path, err)
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return fmt.Errorf("get attributes %s: %w", path, err)
	}
	if attrs&windows.FILE_ATTRIBUTE_READONLY == 0 {
		return nil
	}
	if err := windows.SetFileAttributes(p, attrs&^windows.FILE_ATTRIBUTE_READONLY); err != nil {
		return fmt.Errorf("set attributes %s: %w", path, err)
	}
	return nil
}

// ForceRemove clears the read-only attribute before deleting, like del /F.
func (n native) ForceRemove(path string) error {
	if err := n.ClearReadOnly(path); err != nil && !errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
		return err
	}
	return os.Remove(path)
}
