package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrDestinationExists is returned when a copy target is already present.
var ErrDestinationExists = errors.New("destination already exists")

// CopyFile streams src into a newly created dst, keeping the source
// permission bits. It never overwrites: an existing dst yields
// ErrDestinationExists. A partially written dst is removed on failure.
func CopyFile(src, dst string) error {
	_, err := copyNew(src, dst, false)
	return err
}

// CopyFileVerified behaves like CopyFile and additionally checks the written
// bytes against the source with SHA-256 and size. dst is removed on mismatch.
func CopyFileVerified(src, dst string) error {
	_, err := copyNew(src, dst, true)
	return err
}

func copyNew(src, dst string, verify bool) (written int64, err error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("source %q is not a regular file", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	// Owner write is forced so a read-only source does not produce a copy
	// the lifecycle manager can no longer rename or delete.
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm()|0o200)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
		return 0, fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	srcHash := sha256.New()
	dstHash := sha256.New()
	var reader io.Reader = in
	var writer io.Writer = out
	if verify {
		reader = io.TeeReader(in, srcHash)
		writer = io.MultiWriter(out, dstHash)
	}

	written, err = io.Copy(writer, reader)
	if err != nil {
		return written, fmt.Errorf("copy data: %w", err)
	}
	if err = out.Sync(); err != nil {
		return written, fmt.Errorf("sync destination: %w", err)
	}
	if err = out.Close(); err != nil {
		return written, fmt.Errorf("close destination: %w", err)
	}
	if written != info.Size() {
		err = fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
		return written, err
	}
	if verify && !bytes.Equal(srcHash.Sum(nil), dstHash.Sum(nil)) {
		err = errors.New("copy hash mismatch: file corrupted during copy")
		return written, err
	}
	return written, nil
}
