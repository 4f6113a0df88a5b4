package page

import (
	"encoding/binary"

	"github.com/mpeterson-oss/sqlitefmt/internal/corrupt"
	"github.com/mpeterson-oss/sqlitefmt/internal/varint"
)

// PageType tags the four B-tree page shapes.
type PageType uint8

const (
	TypeIndexInterior PageType = 2
	TypeTableInterior PageType = 5
	TypeIndexLeaf     PageType = 10
	TypeTableLeaf     PageType = 13
)

// IsInterior reports whether t carries a rightmost-child pointer.
func (t PageType) IsInterior() bool {
	return t == TypeIndexInterior || t == TypeTableInterior
}

// IsTable reports whether t belongs to a table (rowid-keyed) B-tree.
func (t PageType) IsTable() bool {
	return t == TypeTableInterior || t == TypeTableLeaf
}

func (t PageType) valid() bool {
	switch t {
	case TypeIndexInterior, TypeTableInterior, TypeIndexLeaf, TypeTableLeaf:
		return true
	}
	return false
}

// HeaderSize returns 12 for interior pages (rightmost-child pointer
// included) or 8 for leaf pages.
func (t PageType) HeaderSize() int {
	if t.IsInterior() {
		return 12
	}
	return 8
}

// BTreeHeader is the 8- or 12-byte header immediately following any
// database-header prefix.
type BTreeHeader struct {
	PageType        PageType
	FirstFreeblock  uint16
	CellCount       uint16
	CellContentArea int // normalized: on-disk 0 means 65536
	FragFreeBytes   uint8
	RightmostChild  uint32 // only meaningful when PageType.IsInterior()
}

// Page is a decoded B-tree page: the full page buffer plus the parsed
// header. Base is the byte offset within Buf where the B-tree header
// starts — 100 for page 1 (after the database header prefix), 0 otherwise.
// Cell pointer array entries and CellContentArea are always offsets from
// the start of Buf (page-absolute), matching how SQLite lays file bytes
// out, regardless of Base.
type Page struct {
	Buf    []byte
	Base   int
	Header BTreeHeader
}

// DecodePage parses the B-tree header from buf; cell pointer array entries
// are read on demand by CellOffset. base is 100 for page 1, 0 for every
// other page.
func DecodePage(buf []byte, base int) (*Page, error) {
	if len(buf) < base+8 {
		return nil, corrupt.New("page: buffer too small for header (%d bytes, base %d)", len(buf), base)
	}
	h := BTreeHeader{}
	h.PageType = PageType(buf[base])
	if !h.PageType.valid() {
		return nil, corrupt.New("page: invalid page type tag %d", buf[base])
	}
	h.FirstFreeblock = binary.BigEndian.Uint16(buf[base+1 : base+3])
	h.CellCount = binary.BigEndian.Uint16(buf[base+3 : base+5])
	cca := binary.BigEndian.Uint16(buf[base+5 : base+7])
	if cca == 0 {
		h.CellContentArea = 65536
	} else {
		h.CellContentArea = int(cca)
	}
	h.FragFreeBytes = buf[base+7]
	if h.PageType.IsInterior() {
		if len(buf) < base+12 {
			return nil, corrupt.New("page: buffer too small for interior header")
		}
		h.RightmostChild = binary.BigEndian.Uint32(buf[base+8 : base+12])
	}
	return &Page{Buf: buf, Base: base, Header: h}, nil
}

// HeaderEnd returns the byte offset (page-absolute) just past the B-tree
// header.
func (p *Page) HeaderEnd() int {
	return p.Base + p.Header.PageType.HeaderSize()
}

// CellPointerArrayOffset returns the page-absolute offset of the cell
// pointer array, immediately following the B-tree header.
func (p *Page) CellPointerArrayOffset() int {
	return p.HeaderEnd()
}

// CellPointerArraySize is the byte length of the cell pointer array.
func (p *Page) CellPointerArraySize() int {
	return 2 * int(p.Header.CellCount)
}

// CellOffset returns the page-absolute byte offset of the i'th cell, read
// from the cell pointer array.
func (p *Page) CellOffset(i int) (int, error) {
	if i < 0 || i >= int(p.Header.CellCount) {
		return 0, corrupt.New("page: cell index %d out of range (count %d)", i, p.Header.CellCount)
	}
	off := p.CellPointerArrayOffset() + 2*i
	if off+2 > len(p.Buf) {
		return 0, corrupt.New("page: cell pointer array runs past buffer")
	}
	return int(binary.BigEndian.Uint16(p.Buf[off : off+2])), nil
}

// UnallocatedRegion returns the page-absolute [start, end) range between
// the end of the cell pointer array and the start of the cell content area.
func (p *Page) UnallocatedRegion() (int, int) {
	return p.CellPointerArrayOffset() + p.CellPointerArraySize(), p.Header.CellContentArea
}

// Freeblock is one link in the cell-content-area freeblock chain.
type Freeblock struct {
	Offset int // page-absolute
	Size   int
	Next   int // page-absolute offset of the next freeblock, 0 if none
}

// Freeblocks walks the freeblock chain starting at the header's
// first_freeblock field, validating that blocks are sorted by offset and
// non-overlapping.
func (p *Page) Freeblocks() ([]Freeblock, error) {
	var blocks []Freeblock
	off := int(p.Header.FirstFreeblock)
	prevEnd := -1
	for off != 0 {
		if off+4 > len(p.Buf) {
			return nil, corrupt.New("page: freeblock at %d runs past buffer", off)
		}
		if off <= prevEnd {
			return nil, corrupt.New("page: freeblock chain out of order or overlapping at %d", off)
		}
		next := int(binary.BigEndian.Uint16(p.Buf[off : off+2]))
		size := int(binary.BigEndian.Uint16(p.Buf[off+2 : off+4]))
		if size < 4 {
			return nil, corrupt.New("page: freeblock at %d smaller than minimum 4 bytes", off)
		}
		blocks = append(blocks, Freeblock{Offset: off, Size: size, Next: next})
		prevEnd = off + size - 1
		off = next
	}
	return blocks, nil
}

// Thresholds carries the overflow-split constants derived from a page's
// usable size, computed once per page size / reserved-space combination and
// reused across every cell on pages that share it.
type Thresholds struct {
	Usable int // U = page_size - reserved_space
	MMax   int
	MMin   int
}

// NewThresholds computes M_max/M_min per spec §4.4. leafTable selects the
// table-leaf M_max formula (U-35); any other cell kind (index, or table
// interior, which never overflows on its own) uses the interior/index
// formula.
func NewThresholds(pageSize, reservedSpace int, leafTable bool) Thresholds {
	u := pageSize - reservedSpace
	var mMax int
	if leafTable {
		mMax = u - 35
	} else {
		mMax = ((u-12)*64)/255 - 23
	}
	mMin := ((u-12)*32)/255 - 23
	return Thresholds{Usable: u, MMax: mMax, MMin: mMin}
}

// Split computes, for a payload of size p, how many bytes are stored inline
// on the page versus spilled to an overflow chain, per spec §4.4.
func (t Thresholds) Split(p int) (inline int, overflow int) {
	if p <= t.MMax {
		return p, 0
	}
	k := t.Usable - 4
	local := t.MMin + (p-t.MMin)%k
	if local > t.MMax {
		local = t.MMin
	}
	return local, p - local
}

// ---- Cells ----

// TableInteriorCell is `left_child: u32 BE | rowid: varint`.
type TableInteriorCell struct {
	LeftChild uint32
	RowID     int64
}

// TableLeafCell is
// `payload_size: varint | rowid: varint | payload_bytes | [overflow_page: u32 BE]?`.
type TableLeafCell struct {
	RowID         int64
	PayloadSize   int64 // total logical payload size, before any split
	InlinePayload []byte
	OverflowPage  uint32 // 0 if no overflow
}

// IndexInteriorCell is
// `left_child: u32 BE | payload_size: varint | payload_bytes | [overflow_page: u32 BE]?`.
type IndexInteriorCell struct {
	LeftChild     uint32
	PayloadSize   int64
	InlinePayload []byte
	OverflowPage  uint32
}

// IndexLeafCell is `payload_size: varint | payload_bytes | [overflow_page: u32 BE]?`.
type IndexLeafCell struct {
	PayloadSize   int64
	InlinePayload []byte
	OverflowPage  uint32
}

func readPayloadAndOverflow(buf []byte, off int, payloadSize int64, th Thresholds) (inline []byte, overflowPage uint32, size int, err error) {
	inlineLen, hasOverflow := th.Split(int(payloadSize))
	if off+inlineLen > len(buf) {
		return nil, 0, 0, corrupt.New("cell: inline payload runs past buffer")
	}
	inline = buf[off : off+inlineLen : off+inlineLen]
	size = inlineLen
	if hasOverflow > 0 {
		if off+inlineLen+4 > len(buf) {
			return nil, 0, 0, corrupt.New("cell: overflow pointer runs past buffer")
		}
		overflowPage = binary.BigEndian.Uint32(buf[off+inlineLen : off+inlineLen+4])
		size += 4
	}
	return inline, overflowPage, size, nil
}

// DecodeTableInteriorCell reads a table-interior cell at the page-absolute
// offset off.
func DecodeTableInteriorCell(buf []byte, off int) (TableInteriorCell, int, error) {
	if off+4 > len(buf) {
		return TableInteriorCell{}, 0, corrupt.New("table interior cell: buffer too small")
	}
	leftChild := binary.BigEndian.Uint32(buf[off : off+4])
	rowID, n, err := varint.Decode(buf[off+4:])
	if err != nil {
		return TableInteriorCell{}, 0, err
	}
	return TableInteriorCell{LeftChild: leftChild, RowID: int64(rowID)}, 4 + n, nil
}

// DecodeTableLeafCell reads a table-leaf cell at the page-absolute offset
// off, applying th to determine the inline/overflow split.
func DecodeTableLeafCell(buf []byte, off int, th Thresholds) (TableLeafCell, int, error) {
	payloadSize, n1, err := varint.Decode(buf[off:])
	if err != nil {
		return TableLeafCell{}, 0, err
	}
	rowID, n2, err := varint.Decode(buf[off+n1:])
	if err != nil {
		return TableLeafCell{}, 0, err
	}
	payloadOff := off + n1 + n2
	inline, ovf, size, err := readPayloadAndOverflow(buf, payloadOff, int64(payloadSize), th)
	if err != nil {
		return TableLeafCell{}, 0, err
	}
	return TableLeafCell{
		RowID:         int64(rowID),
		PayloadSize:   int64(payloadSize),
		InlinePayload: inline,
		OverflowPage:  ovf,
	}, n1 + n2 + size, nil
}

// DecodeIndexInteriorCell reads an index-interior cell at the page-absolute
// offset off.
func DecodeIndexInteriorCell(buf []byte, off int, th Thresholds) (IndexInteriorCell, int, error) {
	if off+4 > len(buf) {
		return IndexInteriorCell{}, 0, corrupt.New("index interior cell: buffer too small")
	}
	leftChild := binary.BigEndian.Uint32(buf[off : off+4])
	payloadSize, n1, err := varint.Decode(buf[off+4:])
	if err != nil {
		return IndexInteriorCell{}, 0, err
	}
	payloadOff := off + 4 + n1
	inline, ovf, size, err := readPayloadAndOverflow(buf, payloadOff, int64(payloadSize), th)
	if err != nil {
		return IndexInteriorCell{}, 0, err
	}
	return IndexInteriorCell{
		LeftChild:     leftChild,
		PayloadSize:   int64(payloadSize),
		InlinePayload: inline,
		OverflowPage:  ovf,
	}, 4 + n1 + size, nil
}

// DecodeIndexLeafCell reads an index-leaf cell at the page-absolute offset
// off.
func DecodeIndexLeafCell(buf []byte, off int, th Thresholds) (IndexLeafCell, int, error) {
	payloadSize, n1, err := varint.Decode(buf[off:])
	if err != nil {
		return IndexLeafCell{}, 0, err
	}
	payloadOff := off + n1
	inline, ovf, size, err := readPayloadAndOverflow(buf, payloadOff, int64(payloadSize), th)
	if err != nil {
		return IndexLeafCell{}, 0, err
	}
	return IndexLeafCell{
		PayloadSize:   int64(payloadSize),
		InlinePayload: inline,
		OverflowPage:  ovf,
	}, n1 + size, nil
}

// EncodeTableInteriorCell appends the wire encoding of c to dst.
func EncodeTableInteriorCell(dst []byte, c TableInteriorCell) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], c.LeftChild)
	dst = append(dst, b[:]...)
	return varint.Encode(dst, uint64(c.RowID))
}

// EncodeTableLeafCell appends the wire encoding of c to dst. c.InlinePayload
// must already reflect the overflow split (i.e. be the bytes that stay on
// this page); c.OverflowPage must be 0 iff there is no overflow.
func EncodeTableLeafCell(dst []byte, c TableLeafCell) []byte {
	dst = varint.Encode(dst, uint64(c.PayloadSize))
	dst = varint.Encode(dst, uint64(c.RowID))
	dst = append(dst, c.InlinePayload...)
	if c.OverflowPage != 0 {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], c.OverflowPage)
		dst = append(dst, b[:]...)
	}
	return dst
}

// EncodeIndexInteriorCell appends the wire encoding of c to dst.
func EncodeIndexInteriorCell(dst []byte, c IndexInteriorCell) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], c.LeftChild)
	dst = append(dst, b[:]...)
	dst = varint.Encode(dst, uint64(c.PayloadSize))
	dst = append(dst, c.InlinePayload...)
	if c.OverflowPage != 0 {
		var ob [4]byte
		binary.BigEndian.PutUint32(ob[:], c.OverflowPage)
		dst = append(dst, ob[:]...)
	}
	return dst
}

// EncodeIndexLeafCell appends the wire encoding of c to dst.
func EncodeIndexLeafCell(dst []byte, c IndexLeafCell) []byte {
	dst = varint.Encode(dst, uint64(c.PayloadSize))
	dst = append(dst, c.InlinePayload...)
	if c.OverflowPage != 0 {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], c.OverflowPage)
		dst = append(dst, b[:]...)
	}
	return dst
}

// CellSize returns the number of bytes a cell occupies in the cell content
// area, given its already-decoded byte length as returned by the Decode*
// functions. It exists as a named entry point for the compaction-invariant
// callers described in spec §4.4 ("cell region size").
func CellSize(consumedBytes int) int { return consumedBytes }
