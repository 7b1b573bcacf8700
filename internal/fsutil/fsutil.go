// Package fsutil provides the filesystem primitives every other
// component builds on: atomic directory publish, cross-device-safe
// moves, platform-aware name sanitization, and scoped working
// directories with guaranteed cleanup (§4.3).
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"
)

// PublishAtomic makes the contents of tmpDir visible at finalDir in
// one atomic step: rename tmpDir to finalDir, falling back to a
// copy+fsync+rename+remove sequence when the two paths live on
// different devices (§4.3). Callers must only have written to tmpDir;
// finalDir must not already exist.
func PublishAtomic(tmpDir, finalDir string) error {
	if _, err := os.Stat(finalDir); err == nil {
		return fmt.Errorf("fsutil: publish_atomic: %s already exists", finalDir)
	}

	if err := os.MkdirAll(filepath.Dir(finalDir), 0o750); err != nil {
		return fmt.Errorf("fsutil: publish_atomic: create parent: %w", err)
	}

	err := os.Rename(tmpDir, finalDir)
	if err == nil {
		return syncParent(finalDir)
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("fsutil: publish_atomic: rename %s -> %s: %w", tmpDir, finalDir, err)
	}

	// Cross-device: copy the whole tree to a staging directory beside
	// finalDir, fsync it, rename into place, then remove the source.
	staging := finalDir + ".xdev"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("fsutil: publish_atomic: clear staging: %w", err)
	}
	if err := copyTree(tmpDir, staging); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("fsutil: publish_atomic: cross-device copy: %w", err)
	}
	if err := os.Rename(staging, finalDir); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("fsutil: publish_atomic: staging rename: %w", err)
	}
	if err := syncParent(finalDir); err != nil {
		return err
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("fsutil: publish_atomic: remove source: %w", err)
	}
	return nil
}

func syncParent(path string) error {
	dir, err := os.Open(filepath.Dir(path)) // #nosec G304 - path is our own working/output root
	if err != nil {
		return nil // best effort; not all platforms support directory fsync
	}
	defer func() { _ = dir.Close() }()
	_ = dir.Sync()
	return nil
}

// SafeMove renames src to dst, falling back to copy-then-unlink on
// EXDEV-class failures (§4.3).
func SafeMove(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("fsutil: safe_move: create parent: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("fsutil: safe_move: %s -> %s: %w", src, dst, err)
	}

	if err := copyFileDurable(src, dst); err != nil {
		return fmt.Errorf("fsutil: safe_move: cross-device copy: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("fsutil: safe_move: remove source: %w", err)
	}
	return nil
}

// copyFileDurable copies src to dst using renameio's pending-file
// machinery, so the destination is either fully written or absent.
func copyFileDurable(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is a path this process already owns
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	pending, err := renameio.NewPendingFile(dst)
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, in); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}

func copyTree(srcRoot, dstRoot string) error {
	return filepath.Walk(srcRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstRoot, rel)

		if info.IsDir() {
			return os.MkdirAll(dst, 0o750)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return err
		}
		return copyFileDurable(path, dst)
	})
}

// windowsForbidden matches the characters forbidden by typical
// non-POSIX (Windows/FAT/NTFS-class) filesystems.
var windowsForbidden = "<>:\"/\\|?*\x00"

// SanitizeName makes name safe as a single path component, per §4.3:
// it removes path separators and NUL everywhere, and on non-POSIX
// platforms additionally replaces filesystem-forbidden characters with
// "_". It never collapses whitespace or changes case.
func SanitizeName(name string) string {
	replaceRest := runtime.GOOS == "windows"

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == '/' || r == 0 || (replaceRest && r == '\\') {
			continue // path separators and NUL are stripped, on every platform
		}
		if replaceRest && strings.ContainsRune(windowsForbidden, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ScopedWorkdir is a working directory created under root for one job,
// removed automatically on Close unless Retain was called (§4.3).
type ScopedWorkdir struct {
	Path   string
	retain bool
}

// NewScopedWorkdir creates root/jobID, guaranteeing cleanup unless the
// caller marks it for retention (e.g. for post-mortem inspection after
// a failed job).
func NewScopedWorkdir(root, jobID string) (*ScopedWorkdir, error) {
	path := filepath.Join(root, jobID)
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("fsutil: scoped_workdir: %w", err)
	}
	return &ScopedWorkdir{Path: path}, nil
}

// Retain marks the working directory to survive Close, for post-mortem
// inspection of a failed job.
func (w *ScopedWorkdir) Retain() {
	w.retain = true
}

// Close removes the working directory unless Retain was called.
func (w *ScopedWorkdir) Close() error {
	if w.retain {
		return nil
	}
	return os.RemoveAll(w.Path)
}
