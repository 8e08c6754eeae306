package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Envelope layout, big-endian:
//
//	[4 magic/version][4 counter][4 payload length N][N payload]
const (
	HeaderLen uint32 = 12

	// Magic is "CL" followed by the protocol version.
	Magic   uint32 = 0x434C0000 | uint32(Version)
	Version uint16 = 1
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrInvalidMagic    = errors.New("frame: invalid magic")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed envelope preceding every payload.
type Header struct {
	Magic      uint32
	Counter    uint32
	PayloadLen uint32
}

// Frame is one complete envelope plus exactly PayloadLen payload bytes.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 16 * 1024 * 1024,
	}
}

func (l Limits) WithDefaults() Limits {
	if l.MaxPayloadBytes == 0 {
		l.MaxPayloadBytes = DefaultLimits().MaxPayloadBytes
	}
	return l
}

// Version returns the protocol version carried in the magic field.
func (h Header) Version() uint16 {
	return uint16(h.Magic & 0xFFFF)
}

// Marshal returns header and payload in one contiguous buffer so a single Write
// submits the whole frame.
func Marshal(counter uint32, payload []byte, limits Limits) ([]byte, error) {
	limits = limits.WithDefaults()
	if uint64(len(payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), limits.MaxPayloadBytes)
	}
	buf := make([]byte, int(HeaderLen)+len(payload))
	PutHeader(buf, Header{Magic: Magic, Counter: counter, PayloadLen: uint32(len(payload))})
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

func PutHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.Counter)
	binary.BigEndian.PutUint32(buf[8:12], h.PayloadLen)
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, h)
	return buf
}

// DecodeHeader parses the first HeaderLen bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < int(HeaderLen) {
		return Header{}, ErrShortHeader
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Counter:    binary.BigEndian.Uint32(b[4:8]),
		PayloadLen: binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

// Validate checks magic and payload ceiling.
func (h Header) Validate(limits Limits) error {
	limits = limits.WithDefaults()
	if h.Magic != Magic {
		return fmt.Errorf("%w: got %#08x want %#08x", ErrInvalidMagic, h.Magic, Magic)
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, h.PayloadLen, limits.MaxPayloadBytes)
	}
	return nil
}
