// Package record implements SQLite's record format: a length-prefixed
// header of serial-type tags followed by the concatenated value payloads
// those tags describe.
package record

import (
	"github.com/mpeterson-oss/sqlitefmt/internal/corrupt"
	"github.com/mpeterson-oss/sqlitefmt/internal/serialtype"
	"github.com/mpeterson-oss/sqlitefmt/internal/varint"
)

// inlineCap is the size of the inline serial-type buffer before a record
// spills its column list to the heap. Most tables have far fewer columns
// than this; it exists so the common case avoids an allocation per decode.
const inlineCap = 64

// Record is a decoded record. Values reference bytes inside payload and
// must not outlive it. A Record is designed to be reused across many
// decodes via Reset to amortize allocation.
type Record struct {
	payload []byte
	types   [inlineCap]serialtype.Type
	spill   []serialtype.Type // used when len(columns) > inlineCap
	n       int
	values  []serialtype.Value
}

// New returns an empty, ready-to-use Record.
func New() *Record {
	return &Record{}
}

// Reset invalidates r's previous contents and binds it to a new payload
// slice, ready for Decode. Reset does not itself parse anything.
func (r *Record) Reset(payload []byte) {
	r.payload = payload
	r.n = 0
	r.spill = r.spill[:0]
	r.values = r.values[:0]
}

// Len returns the number of columns decoded.
func (r *Record) Len() int { return r.n }

// Value returns the i'th decoded value.
func (r *Record) Value(i int) serialtype.Value { return r.values[i] }

func (r *Record) typeAt(i int) serialtype.Type {
	if i < inlineCap {
		return r.types[i]
	}
	return r.spill[i-inlineCap]
}

func (r *Record) appendType(t serialtype.Type) {
	if r.n < inlineCap {
		r.types[r.n] = t
	} else {
		r.spill = append(r.spill, t)
	}
	r.n++
}

// Decode parses the record previously bound by Reset: a header-size varint,
// then one serial-type varint per column, then the concatenated value
// payloads. enc is the database's text encoding, threaded into every
// decoded text value.
//
// Decode returns corrupt.Error if the header declares more bytes than the
// payload contains, or if a serial-type tag is invalid, or if the sum of
// value widths runs past the end of the payload.
func (r *Record) Decode(enc serialtype.TextEncoding) error {
	buf := r.payload
	headerSize, hn, err := varint.Decode(buf)
	if err != nil {
		return corrupt.New("record header: %v", err)
	}
	if int64(headerSize) > int64(len(buf)) {
		return corrupt.New("record header_size %d exceeds payload length %d", headerSize, len(buf))
	}
	headerEnd := int(headerSize)
	pos := hn
	for pos < headerEnd {
		tag, n, err := varint.Decode(buf[pos:headerEnd])
		if err != nil {
			return corrupt.New("record serial type: %v", err)
		}
		t := serialtype.Type(tag)
		if !t.Valid() {
			return corrupt.New("invalid serial type %d", tag)
		}
		r.appendType(t)
		pos += n
	}
	if pos != headerEnd {
		return corrupt.New("record header: serial types overran declared header_size")
	}

	valuePos := headerEnd
	for i := 0; i < r.n; i++ {
		t := r.typeAt(i)
		w := t.Width()
		if int64(valuePos)+w > int64(len(buf)) {
			return corrupt.New("record value %d: width %d exceeds remaining payload", i, w)
		}
		val, n, err := serialtype.Decode(buf[valuePos:], t, enc)
		if err != nil {
			return err
		}
		r.values = append(r.values, val)
		valuePos += int(n)
	}
	return nil
}

// Encode appends the record encoding of values (each paired with the serial
// type tag that should represent it) to dst, returning the extended slice.
// Column encode order matches values order.
type Column struct {
	Tag   serialtype.Type
	Value serialtype.Value
}

// Encode writes header_size, the serial-type varints, and the concatenated
// value bytes for cols to dst.
func Encode(dst []byte, cols []Column) []byte {
	var header []byte
	for _, c := range cols {
		header = varint.Encode(header, uint64(c.Tag))
	}
	// header_size includes its own varint bytes; grow until stable since
	// the varint encoding of header_size can itself change size as it
	// grows (e.g. crossing the 1-byte/2-byte varint boundary).
	headerSize := len(header) + 1
	for {
		hsz := varint.Len(uint64(headerSize))
		total := hsz + len(header)
		if total == headerSize {
			break
		}
		headerSize = total
	}
	dst = varint.Encode(dst, uint64(headerSize))
	dst = append(dst, header...)
	for _, c := range cols {
		dst = serialtype.Encode(dst, c.Tag, c.Value)
	}
	return dst
}
