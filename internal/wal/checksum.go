package wal

import (
	"encoding/binary"

	"github.com/mpeterson-oss/sqlitefmt/internal/corrupt"
)

// Checksum is the two-word state of the rolling checksum.
type Checksum struct {
	S0, S1 uint32
}

// Accumulate folds buf (whose length must be a multiple of 8) into c,
// returning the updated state. Words are read in pairs (a,b); each word is
// reinterpreted in native byte order when nativeEndian is true, or
// byte-swapped when false, per spec §4.5. The checksum itself — s0 and s1 —
// is always plain 32-bit wrapping arithmetic regardless of that choice; only
// how the input bytes are grouped into u32 words changes.
func (c Checksum) Accumulate(buf []byte, nativeEndian bool) (Checksum, error) {
	if len(buf)%8 != 0 {
		return Checksum{}, corrupt.New("wal checksum: input length %d not a multiple of 8", len(buf))
	}
	s0, s1 := c.S0, c.S1
	for i := 0; i < len(buf); i += 8 {
		a := wordAt(buf, i, nativeEndian)
		b := wordAt(buf, i+4, nativeEndian)
		s0 += a + s1
		s1 += b + s0
	}
	return Checksum{S0: s0, S1: s1}, nil
}

// wordAt reinterprets 4 raw bytes as a uint32. When nativeEndian is true it
// matches how a C implementation would memcpy the bytes into a native
// uint32_t register; when false, the bytes are read in the opposite order.
func wordAt(buf []byte, off int, nativeEndian bool) uint32 {
	native := hostIsBigEndian()
	if nativeEndian == native {
		return binary.BigEndian.Uint32(buf[off : off+4])
	}
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

// WriteFrame computes the checksum for one WAL frame given the cumulative
// checksum through the previous frame (or the WAL header's own checksum for
// the first frame), fills in fh's Salt/Checksum fields, and returns the
// checksum the next frame must chain from.
//
// fh.PageNumber and fh.DBSizeAfterCommit must already be set by the caller;
// Salt1/Salt2 are copied from hdr.
func WriteFrame(hdr *Header, fh *FrameHeader, pageData []byte, prior Checksum) (Checksum, error) {
	fh.Salt1 = hdr.Salt1
	fh.Salt2 = hdr.Salt2

	var first8 [8]byte
	binary.BigEndian.PutUint32(first8[0:4], fh.PageNumber)
	binary.BigEndian.PutUint32(first8[4:8], fh.DBSizeAfterCommit)

	native := hdr.NativeEndian()
	afterHeader, err := prior.Accumulate(first8[:], native)
	if err != nil {
		return Checksum{}, err
	}
	final, err := afterHeader.Accumulate(pageData, native)
	if err != nil {
		return Checksum{}, err
	}
	fh.Checksum1 = final.S0
	fh.Checksum2 = final.S1
	return final, nil
}
