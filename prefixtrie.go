// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package claimtrie

import (
	"sort"
	"strings"
)

// Emptier is implemented by values stored in a PrefixTrie. A node whose
// value is empty is considered to carry no data and may be collapsed.
type Emptier interface {
	Empty() bool
}

type (
	trieEdge[V Emptier] struct {
		label string
		node  *trieNode[V]
	}

	trieNode[V Emptier] struct {
		// children sorted by label; labels of siblings never share
		// a first byte.
		children []trieEdge[V]
		data     V
	}
)

// PrefixTrie is a compressed (radix) trie over byte string keys. Every
// edge carries the longest run of bytes that cannot be split further.
type PrefixTrie[V Emptier] struct {
	root *trieNode[V]

	// size counts the non-root nodes.
	size int
}

// Cursor points at one node of a PrefixTrie together with its full key.
// The zero Cursor is invalid.
type Cursor[V Emptier] struct {
	key  string
	node *trieNode[V]
}

func NewPrefixTrie[V Emptier]() *PrefixTrie[V] {
	return &PrefixTrie[V]{root: new(trieNode[V])}
}

func (c Cursor[V]) Valid() bool { return c.node != nil }

func (c Cursor[V]) Key() string { return c.key }

// Data returns a pointer to the value held by the node, allowing in place
// modification.
func (c Cursor[V]) Data() *V { return &c.node.data }

func (c Cursor[V]) HasChildren() bool {
	return c.node != nil && len(c.node.children) > 0
}

// Children returns the direct children in key order.
func (c Cursor[V]) Children() []Cursor[V] {
	if c.node == nil {
		return nil
	}
	ret := make([]Cursor[V], 0, len(c.node.children))
	for _, e := range c.node.children {
		ret = append(ret, Cursor[V]{key: c.key + e.label, node: e.node})
	}
	return ret
}

func commonPrefix(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// lowerBound returns the index of the first edge whose label is not less
// than key.
func (n *trieNode[V]) lowerBound(key string) int {
	return sort.Search(len(n.children), func(i int) bool {
		return n.children[i].label >= key
	})
}

func (n *trieNode[V]) insertEdge(label string, child *trieNode[V]) {
	i := n.lowerBound(label)
	n.children = append(n.children, trieEdge[V]{})
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = trieEdge[V]{label: label, node: child}
}

func (n *trieNode[V]) removeEdge(label string) {
	i := n.lowerBound(label)
	if i < len(n.children) && n.children[i].label == label {
		n.children = append(n.children[:i], n.children[i+1:]...)
	}
}

// walkPath follows key below n, calling visit for every node whose full
// key is a prefix of key. It reports whether key itself was reached.
func walkPath[V Emptier](n *trieNode[V], key string, visit func(label string, child *trieNode[V])) bool {
	for {
		if len(n.children) == 0 {
			return false
		}
		i := n.lowerBound(key)
		if i < len(n.children) && n.children[i].label == key {
			visit(key, n.children[i].node)
			return true
		}
		if i == 0 {
			i = 1
		}
		e := n.children[i-1]
		count := commonPrefix(key, e.label)
		if count != len(e.label) || count == len(key) {
			return false
		}
		visit(e.label, e.node)
		key = key[count:]
		n = e.node
	}
}

func (t *PrefixTrie[V]) insertNode(key string) *trieNode[V] {
	n := t.root
	for {
		i := n.lowerBound(key)
		count := 0
		if i < len(n.children) {
			if n.children[i].label == key {
				return n.children[i].node
			}
			count = commonPrefix(key, n.children[i].label)
		}
		if count == 0 && i > 0 {
			i--
			count = commonPrefix(key, n.children[i].label)
		}
		if count == 0 {
			child := new(trieNode[V])
			n.insertEdge(key, child)
			t.size++
			return child
		}
		e := n.children[i]
		if count < len(e.label) {
			split := new(trieNode[V])
			split.children = []trieEdge[V]{{label: e.label[count:], node: e.node}}
			n.children[i] = trieEdge[V]{label: e.label[:count], node: split}
			t.size++
			if count == len(key) {
				return split
			}
			e = n.children[i]
		}
		key = key[count:]
		n = e.node
	}
}

// Insert stores data at key, creating intermediate nodes as needed.
func (t *PrefixTrie[V]) Insert(key string, data V) Cursor[V] {
	n := t.root
	if key != "" {
		n = t.insertNode(key)
	}
	n.data = data
	return Cursor[V]{key: key, node: n}
}

// Copy inserts the value under c's key. The value is copied as is; callers
// holding reference types must clone them first.
func (t *PrefixTrie[V]) Copy(c Cursor[V]) Cursor[V] {
	return t.Insert(c.key, c.node.data)
}

// Find returns the node stored exactly at key. A node may be returned even
// when it carries no data (branch nodes).
func (t *PrefixTrie[V]) Find(key string) Cursor[V] {
	if t.Empty() {
		return Cursor[V]{}
	}
	if key == "" {
		return Cursor[V]{node: t.root}
	}
	var found *trieNode[V]
	if !walkPath(t.root, key, func(_ string, n *trieNode[V]) { found = n }) {
		return Cursor[V]{}
	}
	return Cursor[V]{key: key, node: found}
}

func (t *PrefixTrie[V]) Contains(key string) bool {
	return t.Find(key).Valid()
}

// Nodes returns the root followed by every node on the way to key whose
// full key is a prefix of key.
func (t *PrefixTrie[V]) Nodes(key string) []Cursor[V] {
	if t.Empty() {
		return nil
	}
	ret := []Cursor[V]{{node: t.root}}
	if key == "" {
		return ret
	}
	var name strings.Builder
	walkPath(t.root, key, func(label string, n *trieNode[V]) {
		name.WriteString(label)
		ret = append(ret, Cursor[V]{key: name.String(), node: n})
	})
	return ret
}

// Erase clears the data at key and collapses the nodes that became
// redundant. It reports whether the node count changed.
func (t *PrefixTrie[V]) Erase(key string) bool {
	before := t.Height()
	if key == "" {
		var zero V
		t.root.data = zero
		return before != t.Height()
	}

	path := []trieEdge[V]{{node: t.root}}
	if !walkPath(t.root, key, func(label string, n *trieNode[V]) {
		path = append(path, trieEdge[V]{label: label, node: n})
	}) {
		return false
	}

	var zero V
	path[len(path)-1].node.data = zero
	for ; len(path) > 1; path = path[:len(path)-1] {
		cur := path[len(path)-1]
		parent := path[len(path)-2].node
		noData := cur.node.data.Empty()
		if noData && len(cur.node.children) == 1 {
			only := cur.node.children[0]
			parent.removeEdge(cur.label)
			parent.insertEdge(cur.label+only.label, only.node)
			t.size--
			continue
		}
		if noData && len(cur.node.children) == 0 {
			parent.removeEdge(cur.label)
			t.size--
			continue
		}
		break
	}
	return before != t.Height()
}

func (t *PrefixTrie[V]) Clear() {
	var zero V
	t.size = 0
	t.root.data = zero
	t.root.children = nil
}

// Height is the number of nodes, counting the root only when it holds
// data.
func (t *PrefixTrie[V]) Height() int {
	if t.root.data.Empty() {
		return t.size
	}
	return t.size + 1
}

func (t *PrefixTrie[V]) Empty() bool {
	return t.Height() == 0
}

// Root returns the root cursor, or an invalid cursor when the trie is
// empty.
func (t *PrefixTrie[V]) Root() Cursor[V] {
	if t.Empty() {
		return Cursor[V]{}
	}
	return Cursor[V]{node: t.root}
}

// Walk visits every node in pre-order, which is lexicographic key order.
// Returning false from fn stops the traversal.
func (t *PrefixTrie[V]) Walk(fn func(c Cursor[V]) bool) {
	if t.Empty() {
		return
	}
	walk(Cursor[V]{node: t.root}, fn)
}

func walk[V Emptier](c Cursor[V], fn func(c Cursor[V]) bool) bool {
	if !fn(c) {
		return false
	}
	for _, e := range c.node.children {
		if !walk(Cursor[V]{key: c.key + e.label, node: e.node}, fn) {
			return false
		}
	}
	return true
}
