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
	"fmt"
	"slices"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ProofChild is one child entry of a ProofNode. A zero Hash marks the
// child on the way to the proven name, whose hash the verifier computes.
type ProofChild struct {
	Char byte
	Hash chainhash.Hash
}

// ProofNode carries what is needed to hash one node on the path to a
// name under the legacy scheme. Compressed edges are expanded into one
// node per character.
type ProofNode struct {
	Children  []ProofChild
	HasValue  bool
	ValueHash chainhash.Hash
}

// ProofPair is one step of a proof under the all claims scheme: Hash is
// combined with the running hash, on the left side when Left is set.
type ProofPair struct {
	Left bool
	Hash chainhash.Hash
}

// Proof shows that a claim is, or that no claim is, filed under Name in a
// trie with a given root. Nodes is used before the all claims fork and
// Pairs after it.
type Proof struct {
	Name           string
	Nodes          []ProofNode
	Pairs          []ProofPair
	HasValue       bool
	OutPoint       wire.OutPoint
	TakeoverHeight int32

	// Leaf starts the pair chain of a proof without a value.
	Leaf chainhash.Hash
}

// ProofForName builds a proof for the claim id of name, or for the
// controlling claim when id is none. Before the all claims fork only the
// controlling claim is part of the hash and can be proven.
func (c *Cache) ProofForName(name string, id fn.Option[ClaimID]) (*Proof, error) {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	name = c.normalize(name, false)
	c.cacheData(name, false)
	c.merkleHash()

	if c.forks.hash.active(c.nextHeight) {
		return c.pairProof(name, id), nil
	}
	return c.nodeProof(name, id)
}

func (c *Cache) nodeProof(name string, id fn.Option[ClaimID]) (*Proof, error) {
	proof := &Proof{Name: name}
	for _, cur := range c.trie.Nodes(name) {
		n := cur.Data()
		key := cur.Key()
		pos := len(key)

		best, hasValue := n.BestClaim()
		var vh chainhash.Hash
		if hasValue {
			vh = valueHash(best.OutPoint, n.TakeoverHeight)
		}
		if key == name {
			if hasValue {
				if id.IsSome() && id.UnsafeFromSome() != best.ClaimID {
					return nil, fmt.Errorf("%w: %v does not control %q",
						ErrClaimNotFound, id.UnsafeFromSome(), name)
				}
				proof.HasValue = true
				proof.OutPoint = best.OutPoint
				proof.TakeoverHeight = n.TakeoverHeight
			}
			vh = chainhash.Hash{}
		}

		var (
			children []ProofChild
			skipped  string
		)
		for _, child := range cur.Children() {
			childKey := child.Key()
			if strings.HasPrefix(name, childKey) {
				children = append(children, ProofChild{Char: childKey[pos]})
				skipped = childKey[pos+1:]
				continue
			}
			children = append(children, ProofChild{
				Char: childKey[pos],
				Hash: completeHash(child.Data().Hash, childKey, pos),
			})
		}
		proof.Nodes = append(proof.Nodes, ProofNode{
			Children:  children,
			HasValue:  hasValue,
			ValueHash: vh,
		})
		for i := 0; i < len(skipped); i++ {
			proof.Nodes = append(proof.Nodes, ProofNode{
				Children: []ProofChild{{Char: skipped[i]}},
			})
		}
	}
	return proof, nil
}

func appendMerklePath(pairs []ProofPair, hashes []chainhash.Hash, idx uint32) []ProofPair {
	for i, h := range MerklePath(hashes, idx) {
		pairs = append(pairs, ProofPair{Left: (idx>>uint(i))&1 == 1, Hash: h})
	}
	return pairs
}

func (c *Cache) pairProof(name string, id fn.Option[ClaimID]) *Proof {
	proof := &Proof{Name: name}
	nodes := c.trie.Nodes(name)

	// Collected from the deepest node up.
	var pairs []ProofPair
	for i := len(nodes) - 1; i >= 0; i-- {
		cur := nodes[i]
		n := cur.Data()

		children := cur.Children()
		childHashes := make([]chainhash.Hash, len(children))
		nextIdx := 0
		for j, child := range children {
			childHashes[j] = child.Data().Hash
			if strings.HasPrefix(name, child.Key()) {
				nextIdx = j
			}
		}
		left := leafHash
		if len(childHashes) > 0 {
			left = MerkleRoot(childHashes)
		}

		claims := claimHashes(n)
		right := emptyHash
		if len(claims) > 0 {
			right = MerkleRoot(claims)
		}

		if i < len(nodes)-1 {
			pairs = appendMerklePath(pairs, childHashes, uint32(nextIdx))
			pairs = append(pairs, ProofPair{Hash: right})
			continue
		}

		claimIdx := -1
		if cur.Key() == name {
			want := id.UnwrapOr(ClaimID{})
			for j := range n.Claims {
				if (id.IsNone() && j == 0) || n.Claims[j].ClaimID == want {
					claimIdx = j
					break
				}
			}
		}
		switch {
		case claimIdx >= 0:
			proof.HasValue = true
			proof.OutPoint = n.Claims[claimIdx].OutPoint
			proof.TakeoverHeight = n.TakeoverHeight
			pairs = appendMerklePath(pairs, claims, uint32(claimIdx))
			pairs = append(pairs, ProofPair{Left: true, Hash: left})
		case cur.Key() == name:
			proof.Leaf = right
			pairs = append(pairs, ProofPair{Left: true, Hash: left})
		default:
			proof.Leaf = left
			pairs = append(pairs, ProofPair{Hash: right})
		}
	}
	proof.Pairs = pairs
	return proof
}

// Verify reports whether the proof rebuilds root.
func (p *Proof) Verify(root chainhash.Hash) bool {
	switch {
	case len(p.Pairs) > 0:
		return p.verifyPairs(root)
	case len(p.Nodes) > 0:
		return p.verifyNodes(root)
	default:
		return !p.HasValue && root == EmptyTrieHash
	}
}

func (p *Proof) verifyPairs(root chainhash.Hash) bool {
	h := p.Leaf
	if p.HasValue {
		h = valueHash(p.OutPoint, p.TakeoverHeight)
	}
	for i := range p.Pairs {
		if p.Pairs[i].Left {
			h = hashPair(&p.Pairs[i].Hash, &h)
		} else {
			h = hashPair(&h, &p.Pairs[i].Hash)
		}
	}
	return h == root
}

// verifyNodes hashes the nodes from the deepest up. Every node but the
// deepest must have exactly one child on the path; only the deepest may
// leave its value to be computed from the proven claim.
func (p *Proof) verifyNodes(root chainhash.Hash) bool {
	var (
		prev     chainhash.Hash
		reversed []byte
		verified bool
	)
	for i := len(p.Nodes) - 1; i >= 0; i-- {
		node := &p.Nodes[i]
		last := i == len(p.Nodes)-1

		vch := make([]byte, 0, len(node.Children)*(1+chainhash.HashSize)+chainhash.HashSize)
		onPath := false
		for _, child := range node.Children {
			vch = append(vch, child.Char)
			h := child.Hash
			if h == (chainhash.Hash{}) {
				if last || onPath {
					return false
				}
				onPath = true
				reversed = append(reversed, child.Char)
				h = prev
			}
			vch = append(vch, h[:]...)
		}
		if !last && !onPath {
			return false
		}

		switch {
		case node.HasValue && node.ValueHash == (chainhash.Hash{}):
			if !last || !p.HasValue {
				return false
			}
			vh := valueHash(p.OutPoint, p.TakeoverHeight)
			vch = append(vch, vh[:]...)
			verified = true
		case node.HasValue:
			vch = append(vch, node.ValueHash[:]...)
		case last && p.HasValue:
			return false
		}
		prev = chainhash.DoubleHashH(vch)
	}
	if prev != root || (p.HasValue && !verified) {
		return false
	}

	slices.Reverse(reversed)
	path := string(reversed)
	if p.HasValue {
		return path == p.Name
	}
	return strings.HasPrefix(p.Name, path)
}
