// Package page implements SQLite's page format: the 100-byte database file
// header, the B-tree page header, the cell pointer array, the four B-tree
// cell variants, overflow-page chains, and freeblock accounting.
package page

import (
	"encoding/binary"

	"github.com/mpeterson-oss/sqlitefmt/internal/corrupt"
	"github.com/mpeterson-oss/sqlitefmt/internal/serialtype"
)

const (
	// DatabaseHeaderSize is the number of bytes the database header
	// occupies at the front of page 1.
	DatabaseHeaderSize = 100

	// DatabaseHeaderMagic is the 16-byte literal every well-formed
	// database file begins with.
	DatabaseHeaderMagic = "SQLite format 3\x00"

	MaxEmbeddedPayloadFraction = 64
	MinEmbeddedPayloadFraction = 32
	LeafPayloadFraction        = 32

	// DefaultCacheSizePages is the process-wide default page cache size
	// when the header's default_page_cache_size field reads 0 on disk:
	// -2000 means "2 MiB of memory" rather than a page count.
	DefaultCacheSizePages int32 = -2000

	// MinEffectiveCachePages is the floor applied to the effective cache
	// size, whether the header gives it as a page count or in kibibytes.
	MinEffectiveCachePages = 10
)

// TextEncoding mirrors the database header's text_encoding field.
type TextEncoding = serialtype.TextEncoding

// DatabaseHeader is the decoded 100-byte prefix of page 1.
type DatabaseHeader struct {
	PageSize                  uint32 // already normalized: on-disk 1 means 65536
	WriteVersion              uint8
	ReadVersion               uint8
	ReservedSpace             uint8
	ChangeCounter             uint32
	DatabaseSizeInPages       uint32
	FreelistTrunkPage         uint32
	FreelistPages             uint32
	SchemaCookie              uint32
	SchemaFormat              uint32
	DefaultPageCacheSize      int32
	VacuumModeLargestRoot     uint32
	TextEncoding              TextEncoding
	UserVersion               uint32
	IncrementalVacuum         uint32
	ApplicationID             uint32
	ReservedForExpansion      [20]byte
	VersionValidFor           uint32
	VersionNumber             uint32
}

// EffectiveCachePages interprets DefaultPageCacheSize per spec §4.4: zero on
// disk means the process default (-2000 KiB); negative means that many
// KiB of cache rather than a page count, floored at MinEffectiveCachePages.
func (h *DatabaseHeader) EffectiveCachePages() int32 {
	n := h.DefaultPageCacheSize
	if n == 0 {
		n = DefaultCacheSizePages
	}
	if n >= 0 {
		if n < MinEffectiveCachePages {
			return MinEffectiveCachePages
		}
		return n
	}
	kib := -n
	pages := int32(int64(kib) * 1024 / int64(h.PageSize))
	if pages < MinEffectiveCachePages {
		return MinEffectiveCachePages
	}
	return pages
}

// DecodeDatabaseHeader parses the first 100 bytes of a database file.
func DecodeDatabaseHeader(buf []byte) (*DatabaseHeader, error) {
	if len(buf) < DatabaseHeaderSize {
		return nil, corrupt.New("database header: need %d bytes, have %d", DatabaseHeaderSize, len(buf))
	}
	if string(buf[0:16]) != DatabaseHeaderMagic {
		return nil, corrupt.New("database header: bad magic %q", buf[0:16])
	}
	h := &DatabaseHeader{}

	pageSize := binary.BigEndian.Uint16(buf[16:18])
	if pageSize == 1 {
		h.PageSize = 65536
	} else {
		h.PageSize = uint32(pageSize)
	}
	h.WriteVersion = buf[18]
	h.ReadVersion = buf[19]
	h.ReservedSpace = buf[20]

	if buf[21] != MaxEmbeddedPayloadFraction {
		return nil, corrupt.New("database header: max_embed_frac must be %d, got %d", MaxEmbeddedPayloadFraction, buf[21])
	}
	if buf[22] != MinEmbeddedPayloadFraction {
		return nil, corrupt.New("database header: min_embed_frac must be %d, got %d", MinEmbeddedPayloadFraction, buf[22])
	}
	if buf[23] != LeafPayloadFraction {
		return nil, corrupt.New("database header: min_leaf_frac must be %d, got %d", LeafPayloadFraction, buf[23])
	}

	h.ChangeCounter = binary.BigEndian.Uint32(buf[24:28])
	h.DatabaseSizeInPages = binary.BigEndian.Uint32(buf[28:32])
	h.FreelistTrunkPage = binary.BigEndian.Uint32(buf[32:36])
	h.FreelistPages = binary.BigEndian.Uint32(buf[36:40])
	h.SchemaCookie = binary.BigEndian.Uint32(buf[40:44])
	h.SchemaFormat = binary.BigEndian.Uint32(buf[44:48])
	h.DefaultPageCacheSize = int32(binary.BigEndian.Uint32(buf[48:52]))
	h.VacuumModeLargestRoot = binary.BigEndian.Uint32(buf[52:56])

	enc := binary.BigEndian.Uint32(buf[56:60])
	if enc < 1 || enc > 3 {
		return nil, corrupt.New("database header: text_encoding must be 1..3, got %d", enc)
	}
	h.TextEncoding = TextEncoding(enc)

	h.UserVersion = binary.BigEndian.Uint32(buf[60:64])
	h.IncrementalVacuum = binary.BigEndian.Uint32(buf[64:68])
	h.ApplicationID = binary.BigEndian.Uint32(buf[68:72])
	copy(h.ReservedForExpansion[:], buf[72:92])
	h.VersionValidFor = binary.BigEndian.Uint32(buf[92:96])
	h.VersionNumber = binary.BigEndian.Uint32(buf[96:100])
	return h, nil
}

// EncodeDatabaseHeader writes h into the first 100 bytes of dst. dst must be
// at least 100 bytes; only the first 100 are touched, so callers that need
// to preserve the B-tree header sharing page 1 must read the page first
// (see WriteDatabaseHeaderInPlace).
func EncodeDatabaseHeader(dst []byte, h *DatabaseHeader) error {
	if len(dst) < DatabaseHeaderSize {
		return corrupt.New("database header: destination buffer too small (%d bytes)", len(dst))
	}
	copy(dst[0:16], DatabaseHeaderMagic)

	pageSize := uint16(h.PageSize)
	if h.PageSize == 65536 {
		pageSize = 1
	}
	binary.BigEndian.PutUint16(dst[16:18], pageSize)
	dst[18] = h.WriteVersion
	dst[19] = h.ReadVersion
	dst[20] = h.ReservedSpace
	dst[21] = MaxEmbeddedPayloadFraction
	dst[22] = MinEmbeddedPayloadFraction
	dst[23] = LeafPayloadFraction
	binary.BigEndian.PutUint32(dst[24:28], h.ChangeCounter)
	binary.BigEndian.PutUint32(dst[28:32], h.DatabaseSizeInPages)
	binary.BigEndian.PutUint32(dst[32:36], h.FreelistTrunkPage)
	binary.BigEndian.PutUint32(dst[36:40], h.FreelistPages)
	binary.BigEndian.PutUint32(dst[40:44], h.SchemaCookie)
	binary.BigEndian.PutUint32(dst[44:48], h.SchemaFormat)
	binary.BigEndian.PutUint32(dst[48:52], uint32(h.DefaultPageCacheSize))
	binary.BigEndian.PutUint32(dst[52:56], h.VacuumModeLargestRoot)
	binary.BigEndian.PutUint32(dst[56:60], uint32(h.TextEncoding))
	binary.BigEndian.PutUint32(dst[60:64], h.UserVersion)
	binary.BigEndian.PutUint32(dst[64:68], h.IncrementalVacuum)
	binary.BigEndian.PutUint32(dst[68:72], h.ApplicationID)
	copy(dst[72:92], h.ReservedForExpansion[:])
	binary.BigEndian.PutUint32(dst[92:96], h.VersionValidFor)
	binary.BigEndian.PutUint32(dst[96:100], h.VersionNumber)
	return nil
}

// WriteDatabaseHeaderInPlace overwrites the first 100 bytes of a full page-1
// buffer (which must already hold the rest of the page, i.e. the B-tree
// header starting at offset 100) with the encoding of h. This mirrors
// spec §4.4's write rule: the database header can never be written alone,
// only as a patch over a page that was read in full first.
func WriteDatabaseHeaderInPlace(page1 []byte, h *DatabaseHeader) error {
	if len(page1) < DatabaseHeaderSize {
		return corrupt.New("page 1 buffer too small to carry database header (%d bytes)", len(page1))
	}
	return EncodeDatabaseHeader(page1[:DatabaseHeaderSize], h)
}
