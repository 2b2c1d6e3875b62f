//go:build !unix

package preflight

import "os"

// checkAccess creates and removes a probe file; access(2) has no portable
// equivalent for directory ACLs.
func checkAccess(path string) error {
	probe, err := os.CreateTemp(path, ".slowmo-access-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
