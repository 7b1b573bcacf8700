package syncrouter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBackend copies artifacts to another path on the same
// filesystem, for routes whose destination is just a second local
// root (e.g. a NAS mount), grounded on the teacher's LocalStorage
// temp-file copy pattern.
type LocalBackend struct{}

// NewLocalBackend constructs a LocalBackend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// Send copies localPath to destPath, creating destPath's parent
// directory as needed.
func (b *LocalBackend) Send(_ context.Context, localPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("syncrouter: local: mkdir dest: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("syncrouter: local: open source: %w", err)
	}
	defer src.Close()

	tmp := destPath + ".partial"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("syncrouter: local: create dest: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncrouter: local: copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("syncrouter: local: close dest: %w", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return fmt.Errorf("syncrouter: local: finalize: %w", err)
	}
	return nil
}
