// Package wal implements the WAL header, frame header, and Fibonacci-
// weighted rolling checksum used by SQLite's write-ahead log.
package wal

import (
	"encoding/binary"

	"github.com/mpeterson-oss/sqlitefmt/internal/corrupt"
)

const (
	// HeaderSize is the byte length of the WAL header.
	HeaderSize = 32

	// FrameHeaderSize is the byte length of a single frame's header,
	// preceding its page-sized data.
	FrameHeaderSize = 24

	// MagicLittleEndian selects a native-little-endian checksum input;
	// MagicBigEndian selects native-big-endian. The LSB of either is what
	// actually carries the selection (see Header.NativeEndian).
	MagicLittleEndian uint32 = 0x377f0682
	MagicBigEndian    uint32 = 0x377f0683

	// FileFormat is the only file-format version this layer understands.
	FileFormat uint32 = 3007000
)

// Header is the decoded 32-byte WAL header.
type Header struct {
	Magic         uint32
	FileFormat    uint32
	PageSize      uint32
	CheckpointSeq uint32
	Salt1         uint32
	Salt2         uint32
	Checksum1     uint32
	Checksum2     uint32
}

// hostIsBigEndian reports the byte order the running process's integers are
// laid out in, used only to pick the WAL checksum's word interpretation.
func hostIsBigEndian() bool {
	var probe uint16 = 0x0102
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], probe)
	return b[0] == 0x01
}

// NativeEndian reports whether a frame chained from this header should have
// its checksum input words read verbatim (no byte swap) rather than
// byte-swapped first: a word is native-endian iff the WAL magic's LSB
// matches whether the running host is big-endian (spec §4.5). C SQLite
// reads each 4-byte group directly into a native uint32_t register, so the
// interpretation depends on the host's actual byte order, not just the file
// format.
func (h Header) NativeEndian() bool {
	magicIsBigEndian := h.Magic&1 == 1
	return magicIsBigEndian == hostIsBigEndian()
}

// DecodeHeader parses a 32-byte WAL header. All fields are big-endian on
// disk regardless of the checksum endianness the magic selects.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, corrupt.New("wal header: need %d bytes, have %d", HeaderSize, len(buf))
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != MagicLittleEndian && magic != MagicBigEndian {
		return nil, corrupt.New("wal header: bad magic 0x%08x", magic)
	}
	h := &Header{
		Magic:         magic,
		FileFormat:    binary.BigEndian.Uint32(buf[4:8]),
		PageSize:      binary.BigEndian.Uint32(buf[8:12]),
		CheckpointSeq: binary.BigEndian.Uint32(buf[12:16]),
		Salt1:         binary.BigEndian.Uint32(buf[16:20]),
		Salt2:         binary.BigEndian.Uint32(buf[20:24]),
		Checksum1:     binary.BigEndian.Uint32(buf[24:28]),
		Checksum2:     binary.BigEndian.Uint32(buf[28:32]),
	}
	return h, nil
}

// EncodeHeader writes h into the first 32 bytes of dst.
func EncodeHeader(dst []byte, h *Header) error {
	if len(dst) < HeaderSize {
		return corrupt.New("wal header: destination buffer too small (%d bytes)", len(dst))
	}
	binary.BigEndian.PutUint32(dst[0:4], h.Magic)
	binary.BigEndian.PutUint32(dst[4:8], h.FileFormat)
	binary.BigEndian.PutUint32(dst[8:12], h.PageSize)
	binary.BigEndian.PutUint32(dst[12:16], h.CheckpointSeq)
	binary.BigEndian.PutUint32(dst[16:20], h.Salt1)
	binary.BigEndian.PutUint32(dst[20:24], h.Salt2)
	binary.BigEndian.PutUint32(dst[24:28], h.Checksum1)
	binary.BigEndian.PutUint32(dst[28:32], h.Checksum2)
	return nil
}

// FrameHeader is the decoded 24-byte header preceding a frame's page data.
type FrameHeader struct {
	PageNumber        uint32
	DBSizeAfterCommit uint32 // 0 except on a commit frame
	Salt1             uint32
	Salt2             uint32
	Checksum1         uint32
	Checksum2         uint32
}

// DecodeFrameHeader parses a 24-byte frame header.
func DecodeFrameHeader(buf []byte) (*FrameHeader, error) {
	if len(buf) < FrameHeaderSize {
		return nil, corrupt.New("wal frame header: need %d bytes, have %d", FrameHeaderSize, len(buf))
	}
	return &FrameHeader{
		PageNumber:        binary.BigEndian.Uint32(buf[0:4]),
		DBSizeAfterCommit: binary.BigEndian.Uint32(buf[4:8]),
		Salt1:             binary.BigEndian.Uint32(buf[8:12]),
		Salt2:             binary.BigEndian.Uint32(buf[12:16]),
		Checksum1:         binary.BigEndian.Uint32(buf[16:20]),
		Checksum2:         binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}

// EncodeFrameHeader writes fh into the first 24 bytes of dst.
func EncodeFrameHeader(dst []byte, fh *FrameHeader) error {
	if len(dst) < FrameHeaderSize {
		return corrupt.New("wal frame header: destination buffer too small (%d bytes)", len(dst))
	}
	binary.BigEndian.PutUint32(dst[0:4], fh.PageNumber)
	binary.BigEndian.PutUint32(dst[4:8], fh.DBSizeAfterCommit)
	binary.BigEndian.PutUint32(dst[8:12], fh.Salt1)
	binary.BigEndian.PutUint32(dst[12:16], fh.Salt2)
	binary.BigEndian.PutUint32(dst[16:20], fh.Checksum1)
	binary.BigEndian.PutUint32(dst[20:24], fh.Checksum2)
	return nil
}
