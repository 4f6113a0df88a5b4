package wal_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeterson-oss/sqlitefmt/internal/wal"
)

func sampleHeader() *wal.Header {
	return &wal.Header{
		Magic:         wal.MagicLittleEndian,
		FileFormat:    wal.FileFormat,
		PageSize:      4096,
		CheckpointSeq: 1,
		Salt1:         0xAABBCCDD,
		Salt2:         0x11223344,
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := sampleHeader()
	h.Checksum1 = 1
	h.Checksum2 = 2
	buf := make([]byte, wal.HeaderSize)
	require.NoError(t, wal.EncodeHeader(buf, h))

	got, err := wal.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, wal.HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], 0xDEADBEEF)
	_, err := wal.DecodeHeader(buf)
	require.Error(t, err)
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	fh := &wal.FrameHeader{
		PageNumber:        7,
		DBSizeAfterCommit: 100,
		Salt1:             1,
		Salt2:             2,
		Checksum1:         3,
		Checksum2:         4,
	}
	buf := make([]byte, wal.FrameHeaderSize)
	require.NoError(t, wal.EncodeFrameHeader(buf, fh))
	got, err := wal.DecodeFrameHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, fh, got)
}

// Property 11: checksum of an empty buffer returns the input pair unchanged.
func TestChecksumEmptyBufferUnchanged(t *testing.T) {
	c := wal.Checksum{S0: 5, S1: 9}
	got, err := c.Accumulate(nil, true)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

// Property 13: chained accumulation over split buffers equals accumulation
// over the concatenation.
func TestChecksumChains(t *testing.T) {
	a := make([]byte, 16)
	b := make([]byte, 24)
	for i := range a {
		a[i] = byte(i + 1)
	}
	for i := range b {
		b[i] = byte(200 - i)
	}
	start := wal.Checksum{S0: 1, S1: 2}

	whole, err := start.Accumulate(append(append([]byte{}, a...), b...), true)
	require.NoError(t, err)

	afterA, err := start.Accumulate(a, true)
	require.NoError(t, err)
	afterB, err := afterA.Accumulate(b, true)
	require.NoError(t, err)

	assert.Equal(t, whole, afterB)
}

func TestChecksumRejectsNonMultipleOf8(t *testing.T) {
	_, err := (wal.Checksum{}).Accumulate(make([]byte, 5), true)
	require.Error(t, err)
}

// Property 12: the BE-magic and LE-magic paths differ iff some word isn't a
// byte-palindrome.
func TestChecksumEndiannessDiffersUnlessPalindrome(t *testing.T) {
	palindrome := []byte{0x11, 0x22, 0x22, 0x11, 0x33, 0x44, 0x44, 0x33}
	c0, err := (wal.Checksum{}).Accumulate(palindrome, true)
	require.NoError(t, err)
	c1, err := (wal.Checksum{}).Accumulate(palindrome, false)
	require.NoError(t, err)
	assert.Equal(t, c0, c1)

	notPalindrome := []byte{0x11, 0x22, 0x33, 0x44, 0x00, 0x00, 0x00, 0x01}
	d0, err := (wal.Checksum{}).Accumulate(notPalindrome, true)
	require.NoError(t, err)
	d1, err := (wal.Checksum{}).Accumulate(notPalindrome, false)
	require.NoError(t, err)
	assert.NotEqual(t, d0, d1)
}

func TestWriteFrameChainsAcrossFrames(t *testing.T) {
	h := sampleHeader()
	h.Checksum1, h.Checksum2 = 10, 20

	fh1 := &wal.FrameHeader{PageNumber: 1, DBSizeAfterCommit: 0}
	page1 := make([]byte, 4096)
	c1, err := wal.WriteFrame(h, fh1, page1, wal.Checksum{S0: h.Checksum1, S1: h.Checksum2})
	require.NoError(t, err)
	assert.Equal(t, fh1.Checksum1, c1.S0)
	assert.Equal(t, fh1.Checksum2, c1.S1)
	assert.Equal(t, h.Salt1, fh1.Salt1)
	assert.Equal(t, h.Salt2, fh1.Salt2)

	fh2 := &wal.FrameHeader{PageNumber: 2, DBSizeAfterCommit: 5}
	page2 := make([]byte, 4096)
	c2, err := wal.WriteFrame(h, fh2, page2, c1)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}
