package page_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeterson-oss/sqlitefmt/internal/page"
)

func freshHeader() *page.DatabaseHeader {
	return &page.DatabaseHeader{
		PageSize:             4096,
		WriteVersion:         1,
		ReadVersion:          1,
		SchemaFormat:         4,
		TextEncoding:         page.TextEncoding(1),
		DefaultPageCacheSize: 0,
	}
}

// S1: read a fresh file's first 100 bytes.
func TestScenarioS1(t *testing.T) {
	buf := make([]byte, page.DatabaseHeaderSize)
	copy(buf[0:16], page.DatabaseHeaderMagic)
	binary.BigEndian.PutUint16(buf[16:18], 4096)
	buf[18] = 1
	buf[19] = 1
	buf[20] = 0
	buf[21] = page.MaxEmbeddedPayloadFraction
	buf[22] = page.MinEmbeddedPayloadFraction
	buf[23] = page.LeafPayloadFraction
	binary.BigEndian.PutUint32(buf[44:48], 4) // schema_format
	binary.BigEndian.PutUint32(buf[56:60], 1) // text_encoding = UTF-8

	h, err := page.DecodeDatabaseHeader(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, h.PageSize)
	assert.EqualValues(t, 1, h.WriteVersion)
	assert.EqualValues(t, 1, h.ReadVersion)
}

func TestDatabaseHeaderRoundTrip(t *testing.T) {
	h := freshHeader()
	h.SchemaFormat = 4
	h.TextEncoding = page.TextEncoding(1)
	h.ChangeCounter = 7
	h.ApplicationID = 0xDEADBEEF

	buf := make([]byte, page.DatabaseHeaderSize)
	require.NoError(t, page.EncodeDatabaseHeader(buf, h))

	got, err := page.DecodeDatabaseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDatabaseHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, page.DatabaseHeaderSize)
	copy(buf, "not a database..")
	_, err := page.DecodeDatabaseHeader(buf)
	require.Error(t, err)
}

func TestDatabaseHeaderRejectsBadFracConstants(t *testing.T) {
	buf := make([]byte, page.DatabaseHeaderSize)
	copy(buf[0:16], page.DatabaseHeaderMagic)
	binary.BigEndian.PutUint16(buf[16:18], 4096)
	buf[21] = 63 // wrong
	buf[22] = page.MinEmbeddedPayloadFraction
	buf[23] = page.LeafPayloadFraction
	binary.BigEndian.PutUint32(buf[44:48], 4)
	binary.BigEndian.PutUint32(buf[56:60], 1)
	_, err := page.DecodeDatabaseHeader(buf)
	require.Error(t, err)
}

func TestEffectiveCachePages(t *testing.T) {
	h := &page.DatabaseHeader{PageSize: 4096, DefaultPageCacheSize: 0}
	// -2000 default => 2000*1024/4096 = 500 pages
	assert.EqualValues(t, 500, h.EffectiveCachePages())

	h2 := &page.DatabaseHeader{PageSize: 4096, DefaultPageCacheSize: 3}
	assert.EqualValues(t, page.MinEffectiveCachePages, h2.EffectiveCachePages())

	h3 := &page.DatabaseHeader{PageSize: 4096, DefaultPageCacheSize: 2000}
	assert.EqualValues(t, 2000, h3.EffectiveCachePages())
}

// S4: table-leaf overflow split.
func TestScenarioS4Overflow(t *testing.T) {
	th := page.NewThresholds(4096, 0, true)
	assert.Equal(t, 4061, th.MMax) // 4096-35
	assert.Equal(t, 4092, th.Usable-4)

	inline, overflow := th.Split(5000)
	assert.Equal(t, 908, inline)
	assert.Equal(t, 5000-908, overflow)
}

func TestTableLeafCellRoundTrip(t *testing.T) {
	th := page.NewThresholds(4096, 0, true)
	payload := make([]byte, 10)
	for i := range payload {
		payload[i] = byte(i)
	}
	cell := page.TableLeafCell{RowID: 42, PayloadSize: int64(len(payload)), InlinePayload: payload}
	buf := page.EncodeTableLeafCell(nil, cell)

	got, n, err := page.DecodeTableLeafCell(buf, 0, th)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, int64(42), got.RowID)
	assert.Equal(t, payload, got.InlinePayload)
	assert.EqualValues(t, 0, got.OverflowPage)
}

func TestTableInteriorCellRoundTrip(t *testing.T) {
	cell := page.TableInteriorCell{LeftChild: 17, RowID: 999}
	buf := page.EncodeTableInteriorCell(nil, cell)
	got, n, err := page.DecodeTableInteriorCell(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, cell, got)
}

func TestIndexLeafCellRoundTrip(t *testing.T) {
	th := page.NewThresholds(4096, 0, false)
	payload := []byte("index key payload")
	cell := page.IndexLeafCell{PayloadSize: int64(len(payload)), InlinePayload: payload}
	buf := page.EncodeIndexLeafCell(nil, cell)
	got, n, err := page.DecodeIndexLeafCell(buf, 0, th)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, payload, got.InlinePayload)
}

func TestIndexInteriorCellRoundTrip(t *testing.T) {
	th := page.NewThresholds(4096, 0, false)
	payload := []byte("interior index key")
	cell := page.IndexInteriorCell{LeftChild: 3, PayloadSize: int64(len(payload)), InlinePayload: payload}
	buf := page.EncodeIndexInteriorCell(nil, cell)
	got, n, err := page.DecodeIndexInteriorCell(buf, 0, th)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, cell, got)
}

func TestDecodePageRejectsUnknownType(t *testing.T) {
	buf := make([]byte, 4096)
	buf[0] = 0x99
	_, err := page.DecodePage(buf, 0)
	require.Error(t, err)
}

func TestDecodePageLeaf(t *testing.T) {
	buf := make([]byte, 4096)
	buf[0] = byte(page.TypeTableLeaf)
	binary.BigEndian.PutUint16(buf[1:3], 0) // first_freeblock
	binary.BigEndian.PutUint16(buf[3:5], 2) // cell_count
	binary.BigEndian.PutUint16(buf[5:7], 4000)
	buf[7] = 0

	p, err := page.DecodePage(buf, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.Header.CellCount)
	assert.Equal(t, 4000, p.Header.CellContentArea)
	start, end := p.UnallocatedRegion()
	assert.Equal(t, 8+4, start) // header(8) + cell ptr array(2*2)
	assert.Equal(t, 4000, end)
}

func TestFreeblocksDetectsOverlap(t *testing.T) {
	buf := make([]byte, 4096)
	buf[0] = byte(page.TypeTableLeaf)
	binary.BigEndian.PutUint16(buf[1:3], 100) // first_freeblock at 100
	binary.BigEndian.PutUint16(buf[3:5], 0)
	binary.BigEndian.PutUint16(buf[5:7], 4096)
	buf[7] = 0
	// freeblock at 100: next=100 (points at itself => overlap/out of order)
	binary.BigEndian.PutUint16(buf[100:102], 100)
	binary.BigEndian.PutUint16(buf[102:104], 8)

	p, err := page.DecodePage(buf, 0)
	require.NoError(t, err)
	_, err = p.Freeblocks()
	require.Error(t, err)
}

func TestFreeblocksWalksChain(t *testing.T) {
	buf := make([]byte, 4096)
	buf[0] = byte(page.TypeTableLeaf)
	binary.BigEndian.PutUint16(buf[1:3], 100)
	binary.BigEndian.PutUint16(buf[3:5], 0)
	binary.BigEndian.PutUint16(buf[5:7], 4096)
	buf[7] = 0
	binary.BigEndian.PutUint16(buf[100:102], 200) // next
	binary.BigEndian.PutUint16(buf[102:104], 10)  // size
	binary.BigEndian.PutUint16(buf[200:202], 0)   // terminator
	binary.BigEndian.PutUint16(buf[202:204], 6)

	p, err := page.DecodePage(buf, 0)
	require.NoError(t, err)
	blocks, err := p.Freeblocks()
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, 100, blocks[0].Offset)
	assert.Equal(t, 10, blocks[0].Size)
	assert.Equal(t, 200, blocks[1].Offset)
	assert.Equal(t, 6, blocks[1].Size)
}
