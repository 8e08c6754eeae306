package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// LenPrefix is the size of every variable-length field prefix.
const LenPrefix = 4

// MaxSequenceLen caps decoded element counts so a corrupt count cannot drive huge allocations.
const MaxSequenceLen = 1 << 20

var (
	ErrShortValue       = errors.New("wire: short value")
	ErrInvalidBool      = errors.New("wire: invalid bool value")
	ErrSequenceTooLarge = errors.New("wire: sequence count exceeds limit")
)

// Writer appends big-endian fields to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) PutU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutU32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutU64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) PutBytes(v []byte) {
	w.PutU32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *Writer) PutString(v string) {
	w.PutU32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *Writer) PutStrings(v []string) {
	w.PutU32(uint32(len(v)))
	for _, s := range v {
		w.PutString(s)
	}
}

// Reader consumes big-endian fields from a fixed payload.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortValue, n, r.pos, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrInvalidBool, b)
	}
}

// Bytes returns a copy so decoded values never alias the frame buffer.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *Reader) String() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Count reads a sequence length and bounds it by MaxSequenceLen and by the bytes left,
// given the smallest possible encoded element size.
func (r *Reader) Count(minElemSize int) (int, error) {
	n, err := r.U32()
	if err != nil {
		return 0, err
	}
	if n > MaxSequenceLen {
		return 0, fmt.Errorf("%w: %d", ErrSequenceTooLarge, n)
	}
	if minElemSize > 0 && uint64(n)*uint64(minElemSize) > uint64(r.Remaining()) {
		return 0, fmt.Errorf("%w: %d elements cannot fit in %d bytes", ErrShortValue, n, r.Remaining())
	}
	return int(n), nil
}

// Strings decodes a counted string sequence; an empty sequence decodes to nil.
func (r *Reader) Strings() ([]string, error) {
	n, err := r.Count(LenPrefix)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := r.String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
