package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize rewrites separators to match the form of the path itself:
// drive-letter and UNC paths use backslashes, everything else forward slashes.
func Normalize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if isWindowsForm(value) {
		return strings.ReplaceAll(value, "/", `\`)
	}
	return filepath.Clean(strings.ReplaceAll(value, `\`, "/"))
}

func isWindowsForm(value string) bool {
	if strings.HasPrefix(value, `\\`) {
		return true
	}
	return len(value) >= 2 && value[1] == ':' && isDriveLetter(value[0])
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Join joins base and name, tolerating empty parts and trailing separators.
func Join(base, name string) string {
	switch {
	case base == "":
		return name
	case name == "":
		return base
	}
	return filepath.Join(strings.TrimRight(base, `/\`), name)
}

// Identity returns the dedup key for path: absolute, cleaned, symlinks
// resolved where possible, and NFC-normalized so decomposed names reported by
// some filesystems collapse onto one key.
func Identity(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("identity: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("identity %q: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	} else if dirResolved, derr := filepath.EvalSymlinks(filepath.Dir(abs)); derr == nil {
		// The file itself may already be gone (renamed away); keep the
		// directory resolution so old and new identities stay comparable.
		abs = filepath.Join(dirResolved, filepath.Base(abs))
	}
	return norm.NFC.String(filepath.Clean(abs)), nil
}

// WithMarker inserts marker immediately before the final extension of name.
func WithMarker(name, marker string) string {
	ext := filepath.Ext(name)
	if ext == name {
		ext = ""
	}
	return strings.TrimSuffix(name, ext) + marker + ext
}

// HasMarker reports whether name already carries marker (case-insensitive).
func HasMarker(name, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(marker))
}

// IsWithin reports whether path is dir itself or lives beneath it.
func IsWithin(dir, path string) bool {
	if dir == "" || path == "" {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
