//go:build !unix && !windows

package platform

import "os"

type native struct{}

func (native) Name() string { return "generic" }

func (native) ClearReadOnly(string) error { return nil }

func (native) ForceRemove(path string) error { return os.Remove(path) }
