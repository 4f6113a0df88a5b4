// Package serialtype implements SQLite's "serial type" tag: a 64-bit value
// that encodes both the storage class and byte width of a record column, and
// the value codec that reads/writes the tagged bytes.
package serialtype

import (
	"encoding/binary"
	"math"

	"github.com/mpeterson-oss/sqlitefmt/internal/corrupt"
)

// Type is a decoded serial-type tag.
type Type uint64

const (
	TypeNull    Type = 0
	TypeInt8    Type = 1
	TypeInt16   Type = 2
	TypeInt24   Type = 3
	TypeInt32   Type = 4
	TypeInt48   Type = 5
	TypeInt64   Type = 6
	TypeFloat64 Type = 7
	TypeConst0  Type = 8
	TypeConst1  Type = 9
	// 10, 11 are reserved for internal use by the reference engine and
	// never appear in a well-formed record.
)

// IsBlob reports whether t tags an even-numbered blob (t >= 12, even).
func (t Type) IsBlob() bool { return t >= 12 && t%2 == 0 }

// IsText reports whether t tags an odd-numbered text value (t >= 13, odd).
func (t Type) IsText() bool { return t >= 13 && t%2 == 1 }

// Valid reports whether t lies in the legal domain [0,9] ∪ {t : t>=12}.
func (t Type) Valid() bool {
	if t <= 9 {
		return true
	}
	return t >= 12
}

// Width returns the number of payload bytes a value tagged t occupies, not
// counting the tag itself. It does not validate t; callers must check
// Valid first.
func (t Type) Width() int64 {
	switch t {
	case TypeNull, TypeConst0, TypeConst1:
		return 0
	case TypeInt8:
		return 1
	case TypeInt16:
		return 2
	case TypeInt24:
		return 3
	case TypeInt32:
		return 4
	case TypeInt48:
		return 6
	case TypeInt64, TypeFloat64:
		return 8
	}
	if t.IsBlob() {
		return (int64(t) - 12) / 2
	}
	if t.IsText() {
		return (int64(t) - 13) / 2
	}
	return 0
}

// TextEncoding mirrors the database header's text_encoding field (byte 56),
// threaded through value construction the way limbo's sqlite3_ondisk.rs does
// so text values know the encoding they were read under.
type TextEncoding uint32

const (
	EncodingUTF8    TextEncoding = 1
	EncodingUTF16LE TextEncoding = 2
	EncodingUTF16BE TextEncoding = 3
)

// Kind classifies a decoded Value.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBlob
)

// Value is a decoded column value. Text and Blob borrow directly from the
// buffer passed to Decode and must not outlive it; a zero-length text or
// blob carries a nil Data.
type Value struct {
	Kind     Kind
	Integer  int64
	Float    float64
	Data     []byte
	Encoding TextEncoding
}

// Decode reads the value tagged by t from the front of buf, returning the
// value and the number of bytes consumed (equal to t.Width()). buf must have
// at least t.Width() bytes; Decode does not itself bounds-check against a
// record's declared length — callers validate that separately (see
// internal/record).
func Decode(buf []byte, t Type, enc TextEncoding) (Value, int64, error) {
	if !t.Valid() {
		return Value{}, 0, corrupt.New("invalid serial type %d", uint64(t))
	}
	w := t.Width()
	if int64(len(buf)) < w {
		return Value{}, 0, corrupt.New("serial type %d: need %d bytes, have %d", uint64(t), w, len(buf))
	}
	switch {
	case t == TypeNull:
		return Value{Kind: KindNull}, 0, nil
	case t == TypeConst0:
		return Value{Kind: KindInteger, Integer: 0}, 0, nil
	case t == TypeConst1:
		return Value{Kind: KindInteger, Integer: 1}, 0, nil
	case t == TypeInt8:
		return Value{Kind: KindInteger, Integer: int64(int8(buf[0]))}, 1, nil
	case t == TypeInt16:
		return Value{Kind: KindInteger, Integer: int64(int16(binary.BigEndian.Uint16(buf[:2])))}, 2, nil
	case t == TypeInt24:
		u := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
		if u&0x800000 != 0 {
			u |= 0xFF000000
		}
		return Value{Kind: KindInteger, Integer: int64(int32(u))}, 3, nil
	case t == TypeInt32:
		return Value{Kind: KindInteger, Integer: int64(int32(binary.BigEndian.Uint32(buf[:4])))}, 4, nil
	case t == TypeInt48:
		u := uint64(buf[0])<<40 | uint64(buf[1])<<32 | uint64(buf[2])<<24 |
			uint64(buf[3])<<16 | uint64(buf[4])<<8 | uint64(buf[5])
		if u&0x800000000000 != 0 {
			u |= 0xFFFF000000000000
		}
		return Value{Kind: KindInteger, Integer: int64(u)}, 6, nil
	case t == TypeInt64:
		return Value{Kind: KindInteger, Integer: int64(binary.BigEndian.Uint64(buf[:8]))}, 8, nil
	case t == TypeFloat64:
		return Value{Kind: KindFloat, Float: math.Float64frombits(binary.BigEndian.Uint64(buf[:8]))}, 8, nil
	case t.IsBlob():
		return blobOrTextValue(KindBlob, buf, w, 0), w, nil
	case t.IsText():
		return blobOrTextValue(KindText, buf, w, enc), w, nil
	}
	return Value{}, 0, corrupt.New("invalid serial type %d", uint64(t))
}

func blobOrTextValue(k Kind, buf []byte, w int64, enc TextEncoding) Value {
	if w == 0 {
		return Value{Kind: k, Encoding: enc}
	}
	return Value{Kind: k, Data: buf[:w:w], Encoding: enc}
}

// TagForInt selects the narrowest signed-integer serial type tag that fits
// v, and the byte width of the payload that must follow the tag.
func TagForInt(v int64) (Type, int64) {
	switch {
	case v == 0:
		return TypeConst0, 0
	case v == 1:
		return TypeConst1, 0
	case v >= -(1<<7) && v < (1<<7):
		return TypeInt8, 1
	case v >= -(1<<15) && v < (1<<15):
		return TypeInt16, 2
	case v >= -(1<<23) && v < (1<<23):
		return TypeInt24, 3
	case v >= -(1<<31) && v < (1<<31):
		return TypeInt32, 4
	case v >= -(1<<47) && v < (1<<47):
		return TypeInt48, 6
	default:
		return TypeInt64, 8
	}
}

// TagForBlob returns the even blob tag for a blob of length n.
func TagForBlob(n int) Type { return Type(12 + 2*n) }

// TagForText returns the odd text tag for a text value of length n.
func TagForText(n int) Type { return Type(13 + 2*n) }

// Encode appends the payload bytes (not the tag) for v to dst, given the tag
// t that was selected for it (via TagForInt/TagForBlob/TagForText or a
// literal TypeFloat64).
func Encode(dst []byte, t Type, v Value) []byte {
	switch t {
	case TypeNull, TypeConst0, TypeConst1:
		return dst
	case TypeInt8:
		return append(dst, byte(int8(v.Integer)))
	case TypeInt16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(int16(v.Integer)))
		return append(dst, b[:]...)
	case TypeInt24:
		u := uint32(v.Integer)
		return append(dst, byte(u>>16), byte(u>>8), byte(u))
	case TypeInt32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(v.Integer)))
		return append(dst, b[:]...)
	case TypeInt48:
		u := uint64(v.Integer)
		return append(dst, byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case TypeInt64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Integer))
		return append(dst, b[:]...)
	case TypeFloat64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Float))
		return append(dst, b[:]...)
	}
	if t.IsBlob() || t.IsText() {
		return append(dst, v.Data...)
	}
	return dst
}
