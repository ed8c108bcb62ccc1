package gamedb

import "fmt"

// MessagePack type bytes used by RDB files
const (
	mpFixMap = 0x80
	mpFixStr = 0xa0
	mpNil    = 0xc0
	mpFalse  = 0xc2
	mpTrue   = 0xc3
	mpBin8   = 0xc4
	mpBin16  = 0xc5
	mpBin32  = 0xc6
	mpUint8  = 0xcc
	mpUint16 = 0xcd
	mpUint32 = 0xce
	mpUint64 = 0xcf
	mpStr8   = 0xd9
	mpStr16  = 0xda
	mpStr32  = 0xdb
	mpMap16  = 0xde
	mpMap32  = 0xdf
)

// value is a decoded scalar. Integers keep their big-endian bytes in raw so
// that bin-encoded numbers (RDB stores crc as bin) decode the same way.
type value struct {
	raw []byte
}

// uint interprets raw as a big-endian unsigned integer
func (v value) uint() uint64 {
	var n uint64
	for _, b := range v.raw {
		n = n<<8 | uint64(b)
	}
	return n
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) done() bool {
	return d.pos >= len(d.data)
}

func (d *decoder) peek() byte {
	return d.data[d.pos]
}

// take returns the next n bytes
func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, fmt.Errorf("%w at offset %d", ErrTruncated, d.pos)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// length reads an n-byte big-endian length
func (d *decoder) length(n int) (int, error) {
	b, err := d.take(n)
	if err != nil {
		return 0, err
	}
	return int(value{raw: b}.uint()), nil
}

// mapLen reads a map header and returns its pair count
func (d *decoder) mapLen() (int, error) {
	t, err := d.take(1)
	if err != nil {
		return 0, err
	}
	switch {
	case t[0]&0xf0 == mpFixMap:
		return int(t[0] & 0x0f), nil
	case t[0] == mpMap16:
		return d.length(2)
	case t[0] == mpMap32:
		return d.length(4)
	default:
		return 0, fmt.Errorf("expected map at offset %d, got type 0x%02x", d.pos-1, t[0])
	}
}

// value reads one scalar
func (d *decoder) value() (value, error) {
	tb, err := d.take(1)
	if err != nil {
		return value{}, err
	}
	t := tb[0]

	var n int
	switch {
	case t < mpFixMap:
		return value{raw: []byte{t}}, nil
	case t >= mpFixStr && t < mpNil:
		n = int(t - mpFixStr)
	case t == mpNil, t == mpFalse:
		return value{}, nil
	case t == mpTrue:
		return value{raw: []byte{1}}, nil
	case t == mpBin8, t == mpStr8:
		if n, err = d.length(1); err != nil {
			return value{}, err
		}
	case t == mpBin16, t == mpStr16:
		if n, err = d.length(2); err != nil {
			return value{}, err
		}
	case t == mpBin32, t == mpStr32:
		if n, err = d.length(4); err != nil {
			return value{}, err
		}
	case t >= mpUint8 && t <= mpUint64:
		b, err := d.take(1 << (t - mpUint8))
		if err != nil {
			return value{}, err
		}
		return value{raw: b}, nil
	default:
		return value{}, fmt.Errorf("unsupported type 0x%02x at offset %d", t, d.pos-1)
	}

	b, err := d.take(n)
	if err != nil {
		return value{}, err
	}
	return value{raw: b}, nil
}
