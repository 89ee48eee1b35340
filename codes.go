package huffpack

import (
	"fmt"
)

// CodeEntry assigns a code to one symbol. Bits holds '0'/'1' characters.
type CodeEntry struct {
	Symbol byte
	Bits   string
}

// CodeTable maps symbols to codes. Entries keep the order in which they were
// derived or read, which is the order they are serialized in.
type CodeTable struct {
	entries []CodeEntry
	index   [alphabetSize]int16 // position+1 in entries, 0 when absent
}

// NewCodeTable validates entries and builds a table from them. A symbol that
// appears twice resolves to its last entry.
func NewCodeTable(entries []CodeEntry) (*CodeTable, error) {
	if len(entries) > alphabetSize {
		return nil, fmt.Errorf("%w: %d codes exceed alphabet size", ErrMalformedHeader, len(entries))
	}
	ct := &CodeTable{entries: make([]CodeEntry, 0, len(entries))}
	for i, e := range entries {
		if err := validateCode(e.Bits); err != nil {
			return nil, fmt.Errorf("code %d for symbol %#02x: %w", i, e.Symbol, err)
		}
		ct.add(e.Symbol, e.Bits)
	}
	return ct, nil
}

func validateCode(bits string) error {
	if len(bits) < 1 || len(bits) > maxCodeLen {
		return fmt.Errorf("%w: code length %d out of range [1, %d]", ErrMalformedHeader, len(bits), maxCodeLen)
	}
	for i := 0; i < len(bits); i++ {
		if bits[i] != '0' && bits[i] != '1' {
			return fmt.Errorf("%w: invalid code character %q at %d", ErrMalformedHeader, bits[i], i)
		}
	}
	return nil
}

func (c *CodeTable) add(sym byte, bits string) {
	c.entries = append(c.entries, CodeEntry{Symbol: sym, Bits: bits})
	c.index[sym] = int16(len(c.entries))
}

// DeriveCodes walks t depth first and records each leaf's root path as its
// code: '0' for a left step, '1' for a right step.
func DeriveCodes(t *Tree) *CodeTable {
	ct := &CodeTable{}
	if t == nil {
		return ct
	}
	ct.entries = make([]CodeEntry, 0, t.Leaves())
	path := make([]byte, 0, maxCodeLen)
	t.walk(t.root, path, func(sym byte, code []byte) {
		ct.add(sym, string(code))
	})
	return ct
}

// Len returns the number of entries.
func (c *CodeTable) Len() int {
	return len(c.entries)
}

// Entries returns the entries in serialization order. The slice must not be modified.
func (c *CodeTable) Entries() []CodeEntry {
	return c.entries
}

// Lookup returns the code for sym.
func (c *CodeTable) Lookup(sym byte) (string, bool) {
	i := c.index[sym]
	if i == 0 {
		return "", false
	}
	return c.entries[i-1].Bits, true
}

// EncodedBits returns the number of bits needed to encode data, or an error
// if data contains a symbol without a code.
func (c *CodeTable) EncodedBits(data []byte) (int, error) {
	var lens [alphabetSize]int
	for sym := range lens {
		if i := c.index[sym]; i != 0 {
			lens[sym] = len(c.entries[i-1].Bits)
		}
	}
	total := 0
	for pos, b := range data {
		if lens[b] == 0 {
			return 0, fmt.Errorf("no code for symbol %#02x at offset %d", b, pos)
		}
		total += lens[b]
	}
	return total, nil
}

// Equal reports whether c and o hold the same entries in the same order.
func (c *CodeTable) Equal(o *CodeTable) bool {
	if len(c.entries) != len(o.entries) {
		return false
	}
	for i := range c.entries {
		if c.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}
