package wire

import (
	"main/pkg/exception"
)

// Envelope field numbers.
const (
	envFieldPayloadType = 1
	envFieldPayload     = 2
	envFieldToken       = 3
)

// Envelope is the unit on the wire: a numeric payload type, the binary
// payload, and an optional correlation token.
type Envelope struct {
	PayloadType uint32
	Payload     []byte
	Token       string
}

// EncodeEnvelope serializes an envelope into dst.
func EncodeEnvelope(dst []byte, env Envelope) []byte {
	dst = appendVarintField(dst, envFieldPayloadType, uint64(env.PayloadType))
	if len(env.Payload) > 0 {
		dst = appendBytesField(dst, envFieldPayload, env.Payload)
	}
	if env.Token != "" {
		dst = appendStringField(dst, envFieldToken, env.Token)
	}
	return dst
}

// DecodeEnvelope parses one envelope. The payload slice aliases src.
func DecodeEnvelope(src []byte) (Envelope, error) {
	var env Envelope
	seenType := false
	err := walkFields(src, func(f field) bool {
		switch f.num {
		case envFieldPayloadType:
			if f.wire == wireVarint {
				env.PayloadType = uint32(f.varint)
				seenType = true
			}
		case envFieldPayload:
			if f.wire == wireBytes {
				env.Payload = f.bytes
			}
		case envFieldToken:
			if f.wire == wireBytes {
				env.Token = string(f.bytes)
			}
		}
		return true
	})
	if err != nil {
		return Envelope{}, err
	}
	if !seenType {
		return Envelope{}, exception.ErrEnvelopeMalformed
	}
	return env, nil
}
