package embedcache

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/embedcache/blobstore"
	"github.com/hupe1980/embedcache/internal/fs"
)

// archiveChunkSize is the unit of IO accounting while streaming.
const archiveChunkSize = 256 * 1024

// Archive streams the record log to a blob store under name, so another
// process (typically a fresh serverless container) can Restore it before
// opening. The store is locked for the duration, the file is synced
// first, and streaming honors the WithIOLimit throttle.
//
// The uploaded file carries no index snapshot while the store is open;
// a restore pays one log replay on its first open.
func (s *Store) Archive(ctx context.Context, bs blobstore.BlobStore, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if err := s.log.Sync(); err != nil {
		return fmt.Errorf("failed to sync record log: %w", err)
	}

	n, err := s.streamOut(ctx, bs, name)
	s.logger.LogArchive(ctx, "upload", name, n, err)
	return err
}

func (s *Store) streamOut(ctx context.Context, bs blobstore.BlobStore, name string) (int64, error) {
	f, err := s.fsys.OpenFile(s.log.Path(), os.O_RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to open record log for archive: %w", err)
	}
	defer f.Close()

	w, err := bs.Create(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive blob: %w", err)
	}

	var total int64
	buf := make([]byte, archiveChunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if err := s.rc.AcquireIO(ctx, n); err != nil {
				_ = w.Close()
				return total, err
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				_ = w.Close()
				return total, fmt.Errorf("failed to write archive blob: %w", werr)
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = w.Close()
			return total, fmt.Errorf("failed to read record log: %w", rerr)
		}
	}

	if err := w.Close(); err != nil {
		return total, fmt.Errorf("failed to finalize archive blob: %w", err)
	}
	return total, nil
}

// Restore materializes an archived cache file at path, to be opened with
// Open afterwards. It refuses to overwrite an existing file: a local
// cache is assumed fresher than any archive. A missing archive surfaces
// as blobstore.ErrNotFound.
func Restore(ctx context.Context, bs blobstore.BlobStore, name, path string, fsys fs.FileSystem) error {
	if fsys == nil {
		fsys = fs.Default
	}

	if _, err := fsys.Stat(path); err == nil {
		return fmt.Errorf("restore target already exists: %s", path)
	}

	b, err := bs.Open(ctx, name)
	if err != nil {
		return err
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return fmt.Errorf("failed to read archive blob: %w", err)
	}
	defer rc.Close()

	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create restore target: %w", err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = fsys.Remove(path)
		return fmt.Errorf("failed to restore cache file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync restored cache file: %w", err)
	}
	return f.Close()
}
