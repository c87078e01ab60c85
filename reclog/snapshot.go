package reclog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the scheme for the index snapshot payload.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// IndexEntry is one persisted index pair: 64-bit key hash to the log
// offset of the key's newest record.
type IndexEntry struct {
	Hash   uint64
	Offset int64
}

// IndexEntrySize is the in-memory and on-disk footprint of one entry.
const IndexEntrySize = 16

const (
	snapshotMagic      = 0x45495830 // "EIX0"
	snapshotHeaderSize = 28
	snapshotCRCSize    = 4
)

// Snapshot section layout, appended at the tail of the file:
//
//	[4 magic][1 scheme][3 reserved][4 dimension][8 entry count]
//	[8 payload length][payload][4 CRC32(payload)]
//
// The payload is entry count × 16-byte (hash, offset) little-endian pairs,
// stored raw or compressed per the scheme byte. The CRC covers the stored
// payload bytes.

func encodeSnapshotEntries(entries []IndexEntry) []byte {
	raw := make([]byte, len(entries)*IndexEntrySize)
	for i, e := range entries {
		binary.LittleEndian.PutUint64(raw[i*IndexEntrySize:], e.Hash)
		binary.LittleEndian.PutUint64(raw[i*IndexEntrySize+8:], uint64(e.Offset))
	}
	return raw
}

func decodeSnapshotEntries(raw []byte) []IndexEntry {
	entries := make([]IndexEntry, len(raw)/IndexEntrySize)
	for i := range entries {
		entries[i] = IndexEntry{
			Hash:   binary.LittleEndian.Uint64(raw[i*IndexEntrySize:]),
			Offset: int64(binary.LittleEndian.Uint64(raw[i*IndexEntrySize+8:])),
		}
	}
	return entries
}

func compressPayload(raw []byte, scheme Compression) ([]byte, Compression, error) {
	switch scheme {
	case CompressionNone:
		return raw, CompressionNone, nil

	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		payload := enc.EncodeAll(raw, nil)
		_ = enc.Close()
		return payload, CompressionZstd, nil

	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to lz4-compress snapshot: %w", err)
		}
		if n == 0 {
			// Incompressible; store raw.
			return raw, CompressionNone, nil
		}
		return buf[:n], CompressionLZ4, nil

	default:
		return nil, 0, fmt.Errorf("unsupported snapshot compression: %s", scheme)
	}
}

func decompressPayload(payload []byte, scheme Compression, rawLen int) ([]byte, error) {
	switch scheme {
	case CompressionNone:
		if len(payload) != rawLen {
			return nil, fmt.Errorf("payload length %d does not match entry count", len(payload))
		}
		return payload, nil

	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()

		raw, err := dec.DecodeAll(payload, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("failed to zstd-decompress snapshot: %w", err)
		}
		if len(raw) != rawLen {
			return nil, fmt.Errorf("decompressed size mismatch: %d != %d", len(raw), rawLen)
		}
		return raw, nil

	case CompressionLZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to lz4-decompress snapshot: %w", err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("decompressed size mismatch: %d != %d", n, rawLen)
		}
		return raw, nil

	default:
		return nil, fmt.Errorf("unsupported snapshot compression: %s", scheme)
	}
}

// WriteSnapshot appends the index snapshot section after the record
// region, points the header's IndexOffset at it, and syncs. This is the
// clean-close marker: a file with a valid snapshot section needs no replay
// on the next open.
func (l *Log) WriteSnapshot(entries []IndexEntry, scheme Compression) error {
	if l.closed {
		return ErrClosed
	}

	raw := encodeSnapshotEntries(entries)
	payload, scheme, err := compressPayload(raw, scheme)
	if err != nil {
		return err
	}

	section := make([]byte, snapshotHeaderSize+len(payload)+snapshotCRCSize)
	binary.LittleEndian.PutUint32(section[0:4], snapshotMagic)
	section[4] = byte(scheme)
	binary.LittleEndian.PutUint32(section[8:12], uint32(l.dimension))
	binary.LittleEndian.PutUint64(section[12:20], uint64(len(entries)))
	binary.LittleEndian.PutUint64(section[20:28], uint64(len(payload)))
	copy(section[snapshotHeaderSize:], payload)
	crc := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(section[snapshotHeaderSize+len(payload):], crc)

	off := l.dataEnd
	if _, err := l.file.WriteAt(section, off); err != nil {
		return fmt.Errorf("failed to write snapshot section: %w", err)
	}
	if err := l.file.Truncate(off + int64(len(section))); err != nil {
		return fmt.Errorf("failed to trim snapshot tail: %w", err)
	}

	l.hdr.IndexOffset = uint64(off)
	l.hdr.RecordCount = uint64(len(entries))
	if _, err := l.file.WriteAt(l.hdr.encode(), 0); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	l.snapshotEnd = off + int64(len(section))
	return l.Sync()
}

// LoadSnapshot reads and validates the snapshot section. Every failure is
// returned as a *SnapshotError; the caller falls back to a full replay.
func (l *Log) LoadSnapshot() ([]IndexEntry, error) {
	if l.closed {
		return nil, ErrClosed
	}
	if l.snapshotEnd == 0 {
		return nil, &SnapshotError{Reason: "no snapshot section"}
	}

	sectionLen := l.snapshotEnd - l.dataEnd
	if sectionLen < snapshotHeaderSize+snapshotCRCSize {
		return nil, &SnapshotError{Reason: "section too short"}
	}

	section := make([]byte, sectionLen)
	if _, err := l.file.ReadAt(section, l.dataEnd); err != nil {
		return nil, &SnapshotError{Reason: "failed to read section", cause: err}
	}

	if binary.LittleEndian.Uint32(section[0:4]) != snapshotMagic {
		return nil, &SnapshotError{Reason: "bad magic"}
	}
	scheme := Compression(section[4])
	dim := binary.LittleEndian.Uint32(section[8:12])
	count := binary.LittleEndian.Uint64(section[12:20])
	payloadLen := binary.LittleEndian.Uint64(section[20:28])

	if int(dim) != l.dimension {
		return nil, &SnapshotError{Reason: fmt.Sprintf("dimension %d does not match log dimension %d", dim, l.dimension)}
	}
	if count != l.hdr.RecordCount {
		return nil, &SnapshotError{Reason: "entry count disagrees with header"}
	}
	if snapshotHeaderSize+int64(payloadLen)+snapshotCRCSize != sectionLen {
		return nil, &SnapshotError{Reason: "payload length disagrees with section size"}
	}

	payload := section[snapshotHeaderSize : snapshotHeaderSize+payloadLen]
	crc := binary.LittleEndian.Uint32(section[snapshotHeaderSize+payloadLen:])
	if crc32.ChecksumIEEE(payload) != crc {
		return nil, &SnapshotError{Reason: "checksum mismatch"}
	}

	raw, err := decompressPayload(payload, scheme, int(count)*IndexEntrySize)
	if err != nil {
		return nil, &SnapshotError{Reason: "bad payload", cause: err}
	}

	return decodeSnapshotEntries(raw), nil
}
