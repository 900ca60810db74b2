// Package store implements the artifact store: the filesystem layout of
// five sibling roots (uploads/, tmp/, outputs/, meta/, locks/) plus atomic
// text writes and best-effort secure delete.
package store

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"sttstudio/internal/config"
	"sttstudio/pkg/logger"
)

// Store owns the five filesystem roots and the primitives every other
// package uses to read and write through them.
type Store struct {
	cfg *config.Config
}

// New creates a Store and ensures all five roots exist.
func New(cfg *config.Config) (*Store, error) {
	s := &Store{cfg: cfg}
	for _, dir := range []string{cfg.UploadsDir(), cfg.TmpDir(), cfg.OutputsDir(), cfg.MetaDir(), cfg.LocksDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact root %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) UploadDir(jobID string) string    { return filepath.Join(s.cfg.UploadsDir(), jobID) }
func (s *Store) TmpDir(jobID string) string        { return filepath.Join(s.cfg.TmpDir(), jobID) }
func (s *Store) SegmentsDir(jobID string) string   { return filepath.Join(s.TmpDir(jobID), "segments") }
func (s *Store) NormalizedWav(jobID string) string { return filepath.Join(s.TmpDir(jobID), "normalized.wav") }
func (s *Store) OutputPath(jobID string) string    { return filepath.Join(s.cfg.OutputsDir(), jobID+".srt") }
func (s *Store) MetaPath(jobID string) string      { return filepath.Join(s.cfg.MetaDir(), jobID+".json") }
func (s *Store) LockPath(jobID string) string      { return filepath.Join(s.cfg.LocksDir(), jobID+".lock") }

// AtomicWriteText writes text to <path>.tmp, fsyncs, then renames over path.
// A crash mid-write leaves the previous snapshot intact.
func AtomicWriteText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure parent dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync tmp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close tmp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// SafeUnlink removes a file, ignoring a not-exist error.
func SafeUnlink(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Debug("unlink failed", "path", path, "error", err)
	}
}

const secureDeleteMaxBytes = 256 * 1024 * 1024
const secureDeleteChunk = 1024 * 1024

// SecureDeleteFile best-effort overwrites a regular file <= 256MB with
// `passes` alternating random/zero passes before unlinking it. Physical
// erasure is not guaranteed on SSDs or copy-on-write filesystems; this is
// cheap obfuscation, not a forensics guarantee.
func SecureDeleteFile(path string, passes int) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		SafeUnlink(path)
		return
	}
	if passes > 0 && info.Size() > 0 && info.Size() <= secureDeleteMaxBytes {
		if err := overwritePasses(path, info.Size(), passes); err != nil {
			logger.Debug("secure overwrite failed, unlinking anyway", "path", path, "error", err)
		}
	}
	SafeUnlink(path)
}

func overwritePasses(path string, size int64, passes int) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := 0; i < passes; i++ {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		remaining := size
		zero := i%2 != 0
		for remaining > 0 {
			n := int64(secureDeleteChunk)
			if n > remaining {
				n = remaining
			}
			chunk := make([]byte, n)
			if !zero {
				if _, err := rand.Read(chunk); err != nil {
					return err
				}
			}
			if _, err := f.Write(chunk); err != nil {
				return err
			}
			remaining -= n
		}
		if err := f.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// SecureRemoveTree deletes every regular file under dir with SecureDeleteFile
// before removing the directory tree itself.
func SecureRemoveTree(dir string, passes int) {
	if _, err := os.Stat(dir); err != nil {
		return
	}
	_ = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		SecureDeleteFile(p, passes)
		return nil
	})
	if err := os.RemoveAll(dir); err != nil {
		logger.Debug("rmtree failed", "dir", dir, "error", err)
	}
}
