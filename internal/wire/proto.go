package wire

import (
	"encoding/binary"
	"math"

	"main/pkg/exception"
)

// Wire types of the tag/length/value scheme used by the venue protocol.
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// field is one decoded tag/value pair.
type field struct {
	num     uint32
	wire    uint8
	varint  uint64
	fixed64 uint64
	bytes   []byte
}

func appendKey(dst []byte, num uint32, wire uint8) []byte {
	return binary.AppendUvarint(dst, uint64(num)<<3|uint64(wire))
}

func appendVarintField(dst []byte, num uint32, v uint64) []byte {
	dst = appendKey(dst, num, wireVarint)
	return binary.AppendUvarint(dst, v)
}

func appendBytesField(dst []byte, num uint32, b []byte) []byte {
	dst = appendKey(dst, num, wireBytes)
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func appendStringField(dst []byte, num uint32, s string) []byte {
	dst = appendKey(dst, num, wireBytes)
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendDoubleField(dst []byte, num uint32, v float64) []byte {
	dst = appendKey(dst, num, wireFixed64)
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}

// walkFields decodes payload field by field, invoking fn for each. fn
// returning false stops the walk early. Unknown fields are delivered like
// any other so callers stay tolerant of schema additions.
func walkFields(payload []byte, fn func(f field) bool) error {
	i := 0
	for i < len(payload) {
		key, n := binary.Uvarint(payload[i:])
		if n <= 0 {
			return exception.ErrEnvelopeMalformed
		}
		i += n

		f := field{num: uint32(key >> 3), wire: uint8(key & 0x7)}
		switch f.wire {
		case wireVarint:
			v, n := binary.Uvarint(payload[i:])
			if n <= 0 {
				return exception.ErrEnvelopeMalformed
			}
			f.varint = v
			i += n
		case wireFixed64:
			if i+8 > len(payload) {
				return exception.ErrEnvelopeMalformed
			}
			f.fixed64 = binary.LittleEndian.Uint64(payload[i : i+8])
			i += 8
		case wireBytes:
			length, n := binary.Uvarint(payload[i:])
			if n <= 0 {
				return exception.ErrEnvelopeMalformed
			}
			i += n
			if uint64(len(payload)-i) < length {
				return exception.ErrEnvelopeMalformed
			}
			f.bytes = payload[i : i+int(length)]
			i += int(length)
		case wireFixed32:
			if i+4 > len(payload) {
				return exception.ErrEnvelopeMalformed
			}
			i += 4
		default:
			return exception.ErrEnvelopeMalformed
		}

		if !fn(f) {
			return nil
		}
	}
	return nil
}

func (f field) double() float64 {
	return math.Float64frombits(f.fixed64)
}
