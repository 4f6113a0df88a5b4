package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeterson-oss/sqlitefmt/internal/record"
	"github.com/mpeterson-oss/sqlitefmt/internal/serialtype"
)

// S2: encode [null, 42_i32, "hi"].
func TestEncodeScenarioS2(t *testing.T) {
	cols := []record.Column{
		{Tag: serialtype.TypeNull},
		{Tag: serialtype.TypeInt32, Value: serialtype.Value{Integer: 42}},
		{Tag: serialtype.TagForText(2), Value: serialtype.Value{Data: []byte("hi")}},
	}
	got := record.Encode(nil, cols)
	want := []byte{0x04, 0x00, 0x04, 0x11, 0x00, 0x00, 0x00, 0x2A, 'h', 'i'}
	assert.Equal(t, want, got)
}

func TestDecodeRoundTrip(t *testing.T) {
	cols := []record.Column{
		{Tag: serialtype.TypeNull},
		{Tag: serialtype.TypeInt32, Value: serialtype.Value{Integer: 42}},
		{Tag: serialtype.TagForText(2), Value: serialtype.Value{Data: []byte("hi")}},
		{Tag: serialtype.TypeFloat64, Value: serialtype.Value{Float: 3.5}},
		{Tag: serialtype.TagForBlob(3), Value: serialtype.Value{Data: []byte{1, 2, 3}}},
	}
	buf := record.Encode(nil, cols)

	r := record.New()
	r.Reset(buf)
	require.NoError(t, r.Decode(serialtype.EncodingUTF8))
	require.Equal(t, len(cols), r.Len())

	assert.Equal(t, serialtype.KindNull, r.Value(0).Kind)
	assert.Equal(t, int64(42), r.Value(1).Integer)
	assert.Equal(t, []byte("hi"), r.Value(2).Data)
	assert.Equal(t, 3.5, r.Value(3).Float)
	assert.Equal(t, []byte{1, 2, 3}, r.Value(4).Data)
}

func TestDecodeManyColumnsSpillsToHeap(t *testing.T) {
	cols := make([]record.Column, 100)
	for i := range cols {
		cols[i] = record.Column{Tag: serialtype.TypeInt8, Value: serialtype.Value{Integer: int64(i % 128)}}
	}
	buf := record.Encode(nil, cols)

	r := record.New()
	r.Reset(buf)
	require.NoError(t, r.Decode(serialtype.EncodingUTF8))
	require.Equal(t, 100, r.Len())
	for i := range cols {
		assert.Equal(t, int64(i%128), r.Value(i).Integer)
	}
}

func TestDecodeTruncatedHeaderIsCorrupt(t *testing.T) {
	r := record.New()
	r.Reset([]byte{0xFF}) // header-size varint whose continuation byte is missing
	err := r.Decode(serialtype.EncodingUTF8)
	require.Error(t, err)
}

func TestDecodeValueOverrunIsCorrupt(t *testing.T) {
	// header_size=2, one serial type (4 = 4-byte int) but no payload bytes follow.
	r := record.New()
	r.Reset([]byte{0x02, 0x04})
	err := r.Decode(serialtype.EncodingUTF8)
	require.Error(t, err)
}

func TestReusedRecordInvalidatesPreviousContents(t *testing.T) {
	cols1 := []record.Column{{Tag: serialtype.TypeInt8, Value: serialtype.Value{Integer: 5}}}
	cols2 := []record.Column{{Tag: serialtype.TypeInt8, Value: serialtype.Value{Integer: 9}}}
	buf1 := record.Encode(nil, cols1)
	buf2 := record.Encode(nil, cols2)

	r := record.New()
	r.Reset(buf1)
	require.NoError(t, r.Decode(serialtype.EncodingUTF8))
	assert.Equal(t, int64(5), r.Value(0).Integer)

	r.Reset(buf2)
	require.NoError(t, r.Decode(serialtype.EncodingUTF8))
	require.Equal(t, 1, r.Len())
	assert.Equal(t, int64(9), r.Value(0).Integer)
}
