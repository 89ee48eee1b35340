package huffpack

import (
	"bytes"
	"fmt"
	"io"

	"github.com/icza/bitio"

	"github.com/seiflotfy/huffpack/bitpack"
)

// trieNode is a decode trie node. child holds arena indices; 0 means absent
// because the root (index 0) is never anyone's child.
type trieNode struct {
	child  [2]int32
	symbol byte
	leaf   bool
}

// Trie is the decode-side prefix tree rebuilt from a code table.
// It is never modified after NewTrie returns and is safe for concurrent use.
type Trie struct {
	nodes []trieNode
}

// NewTrie replays every code of ct from the root, creating internal nodes for
// missing steps and placing a leaf at the end of the path. The order of the
// entries does not change any root-to-leaf path.
func NewTrie(ct *CodeTable) (*Trie, error) {
	t := &Trie{nodes: make([]trieNode, 1, 2*ct.Len()+1)}
	for _, e := range ct.Entries() {
		cur := int32(0)
		for i := 0; i < len(e.Bits); i++ {
			if t.nodes[cur].leaf {
				return nil, fmt.Errorf("%w: code %q for symbol %#02x extends the code of symbol %#02x",
					ErrMalformedHeader, e.Bits, e.Symbol, t.nodes[cur].symbol)
			}
			b := e.Bits[i] - '0'
			next := t.nodes[cur].child[b]
			if next == 0 {
				t.nodes = append(t.nodes, trieNode{})
				next = int32(len(t.nodes) - 1)
				t.nodes[cur].child[b] = next
			}
			cur = next
		}
		n := &t.nodes[cur]
		if n.child[0] != 0 || n.child[1] != 0 {
			return nil, fmt.Errorf("%w: code %q for symbol %#02x is a prefix of another code",
				ErrMalformedHeader, e.Bits, e.Symbol)
		}
		n.leaf = true
		n.symbol = e.Symbol
	}
	return t, nil
}

// advance steps from cur along bit b and appends a symbol to dst when the
// step lands on a leaf, returning to the root.
func (t *Trie) advance(dst []byte, cur int32, b uint8, pos int) ([]byte, int32, error) {
	next := t.nodes[cur].child[b]
	if next == 0 {
		return dst, cur, fmt.Errorf("%w: bit %d leads to a missing branch", ErrCorruptBitstream, pos)
	}
	if t.nodes[next].leaf {
		return append(dst, t.nodes[next].symbol), 0, nil
	}
	return dst, next, nil
}

// AppendDecode replays bits against the trie and appends the decoded symbols
// to dst. A step into a missing branch, or a stream that ends inside a code,
// is reported as ErrCorruptBitstream.
func (t *Trie) AppendDecode(dst []byte, bits string) ([]byte, error) {
	cur := int32(0)
	for i := 0; i < len(bits); i++ {
		var b uint8
		switch bits[i] {
		case '0':
			b = 0
		case '1':
			b = 1
		default:
			return dst, fmt.Errorf("%w: invalid bit %q at offset %d", ErrCorruptBitstream, bits[i], i)
		}
		var err error
		if dst, cur, err = t.advance(dst, cur, b, i); err != nil {
			return dst, err
		}
	}
	if cur != 0 {
		return dst, fmt.Errorf("%w: stream ends inside a code after %d bits", ErrCorruptBitstream, len(bits))
	}
	return dst, nil
}

// AppendDecodePacked walks the trie straight off the packed bytes of p and
// appends the decoded symbols to dst. Padding after p.Bits is never read.
func (t *Trie) AppendDecodePacked(dst []byte, p bitpack.Packed) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return dst, fmt.Errorf("%w: %w", ErrCorruptBitstream, err)
	}
	br := bitio.NewReader(bytes.NewReader(p.Data))
	cur := int32(0)
	for i := 0; i < p.Bits; i++ {
		bit, err := br.ReadBool()
		if err != nil {
			return dst, fmt.Errorf("%w: read bit %d: %w", ErrCorruptBitstream, i, err)
		}
		var b uint8
		if bit {
			b = 1
		}
		if dst, cur, err = t.advance(dst, cur, b, i); err != nil {
			return dst, err
		}
	}
	if cur != 0 {
		return dst, fmt.Errorf("%w: stream ends inside a code after %d bits", ErrCorruptBitstream, p.Bits)
	}
	return dst, nil
}

// Decode returns the symbols encoded by bits.
func (t *Trie) Decode(bits string) ([]byte, error) {
	return t.AppendDecode(make([]byte, 0, len(bits)/2), bits)
}

// DecodeTo decodes bits and writes the result to w. Nothing is written when
// the stream is corrupt.
func (t *Trie) DecodeTo(w io.Writer, bits string) (int64, error) {
	out, err := t.Decode(bits)
	if err != nil {
		return 0, err
	}
	n, err := writeBytes(w, out)
	return n, err
}
