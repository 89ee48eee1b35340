package huffpack

import (
	"container/heap"
)

const noChild = -1

// node is either a leaf carrying a symbol or an internal node carrying the
// combined weight of its children. Children are arena indices.
type node struct {
	weight      uint64
	left, right int32
	symbol      byte
	leaf        bool
}

// Tree is a Huffman tree. Nodes live in one arena and each node is referenced
// by exactly one parent, so the whole tree is released at once.
type Tree struct {
	nodes []node
	root  int32
}

func (t *Tree) add(n node) int32 {
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

// Weight returns the total weight of the tree, i.e. the number of symbols it encodes.
func (t *Tree) Weight() uint64 {
	return t.nodes[t.root].weight
}

// Leaves returns the number of leaf nodes.
func (t *Tree) Leaves() int {
	n := 0
	for i := range t.nodes {
		if t.nodes[i].leaf {
			n++
		}
	}
	return n
}

// walk visits leaves depth first, left before right, passing the path taken
// from the root as '0'/'1' characters.
func (t *Tree) walk(i int32, path []byte, visit func(symbol byte, path []byte)) {
	n := &t.nodes[i]
	if n.leaf {
		visit(n.symbol, path)
		return
	}
	if n.left != noChild {
		t.walk(n.left, append(path, '0'), visit)
	}
	if n.right != noChild {
		t.walk(n.right, append(path, '1'), visit)
	}
}

// queueItem is a pending subtree. seq is assigned at insertion and breaks
// ties between equal weights in insertion order.
type queueItem struct {
	weight uint64
	seq    uint32
	index  int32
}

// nodeQueue is a min-heap of subtrees ordered by (weight, seq).
type nodeQueue []queueItem

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].weight != q[j].weight {
		return q[i].weight < q[j].weight
	}
	return q[i].seq < q[j].seq
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)   { *q = append(*q, x.(queueItem)) }
func (q *nodeQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

// BuildTree builds a Huffman tree from freq.
//
// Leaves are queued in ascending symbol order. The two lightest subtrees are
// combined until one remains; equal weights leave the queue in insertion
// order. The second subtree taken becomes the left child and the first the
// right child. A table with a single symbol yields a root whose only child is
// the left leaf, so that symbol is coded as "0".
func BuildTree(freq *FrequencyTable) (*Tree, error) {
	symbols := freq.Symbols()
	if symbols == 0 {
		return nil, ErrEmptyTable
	}

	t := &Tree{nodes: make([]node, 0, 2*symbols)}
	q := make(nodeQueue, 0, symbols)
	var seq uint32
	for sym, count := range freq {
		if count == 0 {
			continue
		}
		idx := t.add(node{weight: count, left: noChild, right: noChild, symbol: byte(sym), leaf: true})
		q = append(q, queueItem{weight: count, seq: seq, index: idx})
		seq++
	}

	if len(q) == 1 {
		leaf := q[0]
		t.root = t.add(node{weight: leaf.weight, left: leaf.index, right: noChild})
		return t, nil
	}

	heap.Init(&q)
	for q.Len() > 1 {
		first := heap.Pop(&q).(queueItem)
		second := heap.Pop(&q).(queueItem)
		weight := first.weight + second.weight
		idx := t.add(node{weight: weight, left: second.index, right: first.index})
		heap.Push(&q, queueItem{weight: weight, seq: seq, index: idx})
		seq++
	}
	t.root = heap.Pop(&q).(queueItem).index
	return t, nil
}
