// Package bitpack converts between bit strings made of '0'/'1' characters and
// dense MSB-first byte buffers.
//
// The number of meaningful bits in the final byte is kept next to the buffer
// because the zero padding is otherwise indistinguishable from data.
package bitpack

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/icza/bitio"
)

const maxChunkBits = 64

var (
	// ErrInvalidBit indicates a bit string contained a character other than '0' or '1'.
	ErrInvalidBit = errors.New("invalid bit character")
	// ErrLengthMismatch indicates a Packed value whose byte count or trailing
	// bit count disagrees with its bit length.
	ErrLengthMismatch = errors.New("packed length mismatch")
)

// Packed is a bit sequence stored MSB-first.
type Packed struct {
	Bits     int    // Number of meaningful bits
	Data     []byte // ByteLen(Bits) bytes, final byte zero padded
	LastBits int    // Meaningful high bits of the final byte (1-8), 8 for a full byte or Bits == 0
}

// ByteLen returns the number of bytes needed to hold bits.
func ByteLen(bits int) int {
	return (bits + 7) / 8
}

// LastBitsFor returns the trailing valid-bit count recorded for a sequence of
// the given length. Zero-length sequences use the sentinel 8.
func LastBitsFor(bits int) int {
	if r := bits % 8; r != 0 {
		return r
	}
	return 8
}

// Validate checks that the packed metadata is self-consistent.
func (p Packed) Validate() error {
	if p.Bits < 0 {
		return fmt.Errorf("%w: negative bit length %d", ErrLengthMismatch, p.Bits)
	}
	if want := ByteLen(p.Bits); len(p.Data) != want {
		return fmt.Errorf("%w: %d bits need %d bytes, have %d", ErrLengthMismatch, p.Bits, want, len(p.Data))
	}
	if p.LastBits < 1 || p.LastBits > 8 {
		return fmt.Errorf("%w: trailing bit count %d out of range", ErrLengthMismatch, p.LastBits)
	}
	if want := LastBitsFor(p.Bits); p.LastBits != want {
		return fmt.Errorf("%w: %d bits end with %d valid bits, recorded %d", ErrLengthMismatch, p.Bits, want, p.LastBits)
	}
	return nil
}

// Writer packs codes incrementally.
type Writer struct {
	buf  bytes.Buffer
	bw   *bitio.Writer
	bits int
}

// NewWriter returns an empty Writer. sizeHint preallocates the output buffer
// in bytes and may be zero.
func NewWriter(sizeHint int) *Writer {
	w := &Writer{}
	if sizeHint > 0 {
		w.buf.Grow(sizeHint)
	}
	w.bw = bitio.NewWriter(&w.buf)
	return w
}

// WriteCode appends the bits of code, a string of '0'/'1' characters.
func (w *Writer) WriteCode(code string) error {
	for len(code) > 0 {
		n := len(code)
		if n > maxChunkBits {
			n = maxChunkBits
		}
		var v uint64
		for i := 0; i < n; i++ {
			switch code[i] {
			case '0':
				v <<= 1
			case '1':
				v = v<<1 | 1
			default:
				return fmt.Errorf("%w %q at position %d", ErrInvalidBit, code[i], w.bits+i)
			}
		}
		if err := w.bw.WriteBits(v, uint8(n)); err != nil {
			return err
		}
		w.bits += n
		code = code[n:]
	}
	return nil
}

// Bits returns the number of bits written so far.
func (w *Writer) Bits() int {
	return w.bits
}

// Finish flushes the final partial byte and returns the packed result.
// The Writer must not be used afterwards.
func (w *Writer) Finish() (Packed, error) {
	if err := w.bw.Close(); err != nil {
		return Packed{}, err
	}
	return Packed{
		Bits:     w.bits,
		Data:     w.buf.Bytes(),
		LastBits: LastBitsFor(w.bits),
	}, nil
}

// Pack converts a bit string into a Packed value.
func Pack(bits string) (Packed, error) {
	w := NewWriter(ByteLen(len(bits)))
	if err := w.WriteCode(bits); err != nil {
		return Packed{}, err
	}
	return w.Finish()
}

// Unpack reproduces the bit string stored in p. Every byte but the last
// contributes 8 bits; the last contributes p.LastBits high-order bits.
func Unpack(p Packed) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(p.Bits)
	br := bitio.NewReader(bytes.NewReader(p.Data))
	for i := range p.Data {
		n := 8
		if i == len(p.Data)-1 {
			n = p.LastBits
		}
		v, err := br.ReadBits(uint8(n))
		if err != nil {
			return "", fmt.Errorf("read byte %d: %w", i, err)
		}
		for j := n - 1; j >= 0; j-- {
			if v>>uint(j)&1 == 1 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		if n < 8 {
			br.Align()
		}
	}
	return sb.String(), nil
}
