package reclog

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Magic identifies embedcache record log files (ASCII "EMC0").
	Magic = 0x454D4330
	// Version is the current file format version.
	Version = 1
	// HeaderSize is the fixed length of the file header in bytes.
	HeaderSize = 64
)

// header is the fixed 64-byte header at the start of every log file.
//
// IndexOffset doubles as the clean-shutdown marker: zero means no usable
// snapshot (dirty), non-zero points at the index snapshot section.
type header struct {
	Magic       uint32
	Version     uint32
	Dimension   uint32
	Flags       uint32
	RecordCount uint64
	IndexOffset uint64
	// Remaining bytes up to HeaderSize are reserved.
}

func (h *header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dimension)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	binary.LittleEndian.PutUint64(buf[16:24], h.RecordCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.IndexOffset)
	return buf
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("short header: %d bytes: %w", len(buf), io.ErrUnexpectedEOF)
	}

	h := &header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		Dimension:   binary.LittleEndian.Uint32(buf[8:12]),
		Flags:       binary.LittleEndian.Uint32(buf[12:16]),
		RecordCount: binary.LittleEndian.Uint64(buf[16:24]),
		IndexOffset: binary.LittleEndian.Uint64(buf[24:32]),
	}

	if h.Magic != Magic {
		return nil, ErrInvalidMagic
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version)
	}

	return h, nil
}

func newHeader(dimension uint32) *header {
	return &header{
		Magic:     Magic,
		Version:   Version,
		Dimension: dimension,
	}
}
