package reclog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/embedcache/internal/fs"
)

// Log is an append-only record log over a single file.
//
// Log performs no internal locking; the owning store serializes access.
type Log struct {
	file      fs.File
	fsys      fs.FileSystem
	path      string
	hdr       *header
	dimension int

	// dataEnd is the append position: the end of the record region.
	// A snapshot section, when present, starts here.
	dataEnd     int64
	snapshotEnd int64 // file size at open; 0 when no snapshot section
	closed      bool
}

// Open opens or creates the record log at path with the given vector
// dimension. An existing file must carry the same dimension or Open fails
// with a *StoredDimensionError.
func Open(fsys fs.FileSystem, path string, dimension int) (*Log, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}

	_, err := fsys.Stat(path)
	switch {
	case err == nil:
		return openExisting(fsys, path, dimension)
	case errors.Is(err, os.ErrNotExist):
		return create(fsys, path, dimension)
	default:
		return nil, fmt.Errorf("failed to stat record log: %w", err)
	}
}

func create(fsys fs.FileSystem, path string, dimension int) (*Log, error) {
	file, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create record log: %w", err)
	}

	hdr := newHeader(uint32(dimension))
	if _, err := file.WriteAt(hdr.encode(), 0); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	return &Log{
		file:      file,
		fsys:      fsys,
		path:      path,
		hdr:       hdr,
		dimension: dimension,
		dataEnd:   HeaderSize,
	}, nil
}

func openExisting(fsys fs.FileSystem, path string, dimension int) (*Log, error) {
	file, err := fsys.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open record log: %w", err)
	}

	buf := make([]byte, HeaderSize)
	if _, err := file.ReadAt(buf, 0); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	hdr, err := decodeHeader(buf)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if int(hdr.Dimension) != dimension {
		_ = file.Close()
		return nil, &StoredDimensionError{Requested: dimension, Stored: int(hdr.Dimension)}
	}

	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat record log: %w", err)
	}
	size := st.Size()

	l := &Log{
		file:      file,
		fsys:      fsys,
		path:      path,
		hdr:       hdr,
		dimension: dimension,
		dataEnd:   size,
	}

	// IndexOffset marks a snapshot section written by a clean close. An
	// offset outside the file is stale; ignore it and treat everything
	// after the header as record data.
	if off := int64(hdr.IndexOffset); off >= HeaderSize && off <= size {
		l.dataEnd = off
		l.snapshotEnd = size
	}

	return l, nil
}

// Dimension returns the fixed vector dimension of the log.
func (l *Log) Dimension() int { return l.dimension }

// Path returns the file path of the log.
func (l *Log) Path() string { return l.path }

// DataEnd returns the end offset of the record region (the append position).
func (l *Log) DataEnd() int64 { return l.dataEnd }

// HasSnapshot reports whether the file carries an index snapshot section.
func (l *Log) HasSnapshot() bool { return l.snapshotEnd > 0 }

// FileSize returns the current size of the log file in bytes.
func (l *Log) FileSize() (int64, error) {
	if l.closed {
		return 0, ErrClosed
	}
	st, err := l.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat record log: %w", err)
	}
	return st.Size(), nil
}

// Append serializes (key, vector) and appends it to the record region,
// returning the byte offset at which the record begins. On an IO error no
// in-memory state changes; the partially written bytes, if any, sit beyond
// dataEnd and are overwritten by the next append.
func (l *Log) Append(key []byte, vector []float32) (int64, error) {
	if l.closed {
		return 0, ErrClosed
	}
	if len(vector) != l.dimension {
		return 0, fmt.Errorf("vector length %d does not match dimension %d", len(vector), l.dimension)
	}

	buf := encodeRecord(key, vector)
	off := l.dataEnd
	if _, err := l.file.WriteAt(buf, off); err != nil {
		return 0, fmt.Errorf("failed to append record: %w", err)
	}

	l.dataEnd = off + int64(len(buf))
	return off, nil
}

// ReadAt decodes the record beginning at offset.
func (l *Log) ReadAt(offset int64) (key []byte, vector []float32, err error) {
	if l.closed {
		return nil, nil, ErrClosed
	}
	if offset < HeaderSize || offset+recordPrefixSize > l.dataEnd {
		return nil, nil, &CorruptError{Offset: offset, Reason: "offset outside record region"}
	}

	var prefix [recordPrefixSize]byte
	if _, err := l.file.ReadAt(prefix[:], offset); err != nil {
		return nil, nil, fmt.Errorf("failed to read record prefix: %w", err)
	}

	keyLen := binary.LittleEndian.Uint32(prefix[:])
	total := recordSize(int(keyLen), l.dimension)
	if offset+total > l.dataEnd {
		return nil, nil, &CorruptError{Offset: offset, Reason: "declared length exceeds record region"}
	}

	body := make([]byte, total-recordPrefixSize)
	if _, err := l.file.ReadAt(body, offset+recordPrefixSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read record body: %w", err)
	}

	return body[:keyLen:keyLen], decodeVector(body[keyLen:], l.dimension), nil
}

// Scan replays every decodable record in log order, calling fn for each.
// It returns the offset scanning stopped at: equal to DataEnd after a full
// replay, or the start of the first record whose declared length runs past
// the record region (a truncated trailing record, typically left by a
// crash mid-append). The key and vector slices passed to fn are only valid
// for the duration of the call.
func (l *Log) Scan(fn func(offset int64, key []byte, vector []float32) error) (int64, error) {
	if l.closed {
		return 0, ErrClosed
	}

	r := bufio.NewReaderSize(io.NewSectionReader(l.file, HeaderSize, l.dataEnd-HeaderSize), 64<<10)
	off := int64(HeaderSize)
	var prefix [recordPrefixSize]byte

	for off+recordPrefixSize <= l.dataEnd {
		if _, err := io.ReadFull(r, prefix[:]); err != nil {
			return off, fmt.Errorf("failed to read record prefix at %d: %w", off, err)
		}

		keyLen := binary.LittleEndian.Uint32(prefix[:])
		total := recordSize(int(keyLen), l.dimension)
		if off+total > l.dataEnd {
			return off, nil
		}

		body := make([]byte, total-recordPrefixSize)
		if _, err := io.ReadFull(r, body); err != nil {
			return off, fmt.Errorf("failed to read record body at %d: %w", off, err)
		}

		if err := fn(off, body[:keyLen:keyLen], decodeVector(body[keyLen:], l.dimension)); err != nil {
			return off, err
		}
		off += total
	}

	return off, nil
}

// TruncateTo discards everything at and beyond offset, shrinking the
// record region. Used to drop a truncated trailing record after a crash.
func (l *Log) TruncateTo(offset int64) error {
	if l.closed {
		return ErrClosed
	}
	if offset < HeaderSize || offset > l.dataEnd {
		return fmt.Errorf("truncate offset %d outside record region", offset)
	}

	if err := l.file.Truncate(offset); err != nil {
		return fmt.Errorf("failed to truncate record log: %w", err)
	}
	l.dataEnd = offset
	l.snapshotEnd = 0
	return nil
}

// MarkDirty drops any snapshot section and zeroes the header's index
// offset on disk, so a crash before the next clean close forces a replay.
func (l *Log) MarkDirty() error {
	if l.closed {
		return ErrClosed
	}

	if err := l.file.Truncate(l.dataEnd); err != nil {
		return fmt.Errorf("failed to drop snapshot section: %w", err)
	}
	l.snapshotEnd = 0

	l.hdr.IndexOffset = 0
	l.hdr.RecordCount = 0
	if _, err := l.file.WriteAt(l.hdr.encode(), 0); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (l *Log) Sync() error {
	if l.closed {
		return ErrClosed
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync record log: %w", err)
	}
	return nil
}

// Close releases the file handle. The caller is responsible for writing a
// snapshot first if a clean close is intended.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close record log: %w", err)
	}
	return nil
}
