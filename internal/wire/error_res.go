package wire

import (
	"encoding/binary"
)

// Venue error codes the client has retry strategies for.
const (
	ErrCodeBadVolume = "TRADING_BAD_VOLUME"
	ErrCodeBadStops  = "TRADING_BAD_STOPS"
)

// ErrorRes is the venue's error response.
type ErrorRes struct {
	Code        string
	Description string
	AccountID   int64
}

// Encode exists for the test harness side of the protocol.
func (m ErrorRes) Encode(dst []byte) []byte {
	dst = appendStringField(dst, 2, m.Code)
	if m.AccountID != 0 {
		dst = appendVarintField(dst, 5, uint64(m.AccountID))
	}
	if m.Description != "" {
		dst = appendStringField(dst, 7, m.Description)
	}
	return dst
}

// ScanErrorFields best-effort-decodes the three known error fields by raw
// tag scanning (0x12 code, 0x28 account id, 0x3A description) so schema
// additions in the error message never prevent surfacing code and
// description. It never fails; absent fields stay zero.
func ScanErrorFields(payload []byte) ErrorRes {
	var m ErrorRes
	i := 0
	for i < len(payload) {
		rawKey, kn := binary.Uvarint(payload[i:])
		if kn <= 0 {
			return m
		}
		i += kn
		switch rawKey {
		case 0x12: // field 2, bytes: error code
			s, n, ok := scanLenDelimited(payload[i:])
			if !ok {
				return m
			}
			m.Code = string(s)
			i += n
		case 0x28: // field 5, varint: account id
			v, n := binary.Uvarint(payload[i:])
			if n <= 0 {
				return m
			}
			m.AccountID = int64(v)
			i += n
		case 0x3A: // field 7, bytes: human description
			s, n, ok := scanLenDelimited(payload[i:])
			if !ok {
				return m
			}
			m.Description = string(s)
			i += n
		default:
			n, ok := skipUnknownField(byte(rawKey&0x7), payload[i:])
			if !ok {
				return m
			}
			i += n
		}
	}
	return m
}

func scanLenDelimited(b []byte) ([]byte, int, bool) {
	length, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < length {
		return nil, 0, false
	}
	return b[n : n+int(length)], n + int(length), true
}

func skipUnknownField(wireType byte, b []byte) (int, bool) {
	switch wireType {
	case wireVarint:
		_, n := binary.Uvarint(b)
		if n <= 0 {
			return 0, false
		}
		return n, true
	case wireFixed64:
		if len(b) < 8 {
			return 0, false
		}
		return 8, true
	case wireBytes:
		_, n, ok := scanLenDelimited(b)
		return n, ok
	case wireFixed32:
		if len(b) < 4 {
			return 0, false
		}
		return 4, true
	default:
		return 0, false
	}
}
