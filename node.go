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

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Node is the data stored at one name of the trie.
type Node struct {
	// Claims are kept sorted, the controlling claim first.
	Claims []ClaimValue

	// TakeoverHeight is the height at which the controlling claim last
	// changed.
	TakeoverHeight int32

	// Hash caches the node hash; the zero hash marks the node dirty.
	Hash chainhash.Hash
}

func (n Node) Empty() bool {
	return len(n.Claims) == 0
}

// clone returns a copy that does not share the claim slice.
func (n Node) clone() Node {
	c := n
	if n.Claims != nil {
		c.Claims = append([]ClaimValue(nil), n.Claims...)
	}
	return c
}

func (n *Node) equal(o *Node) bool {
	if n.TakeoverHeight != o.TakeoverHeight || n.Hash != o.Hash ||
		len(n.Claims) != len(o.Claims) {

		return false
	}
	for i := range n.Claims {
		a, b := n.Claims[i], o.Claims[i]
		a.EffectiveAmount, b.EffectiveAmount = 0, 0
		if a != b {
			return false
		}
	}
	return true
}

// BestClaim returns the controlling claim.
func (n *Node) BestClaim() (ClaimValue, bool) {
	if len(n.Claims) == 0 {
		return ClaimValue{}, false
	}
	return n.Claims[0], true
}

func (n *Node) haveClaim(op wire.OutPoint) bool {
	for i := range n.Claims {
		if n.Claims[i].OutPoint == op {
			return true
		}
	}
	return false
}

func (n *Node) insertClaim(claim ClaimValue) {
	n.Claims = append(n.Claims, claim)
}

func (n *Node) removeClaim(op wire.OutPoint) (ClaimValue, bool) {
	for i := range n.Claims {
		if n.Claims[i].OutPoint == op {
			claim := n.Claims[i]
			n.Claims = append(n.Claims[:i], n.Claims[i+1:]...)
			return claim, true
		}
	}
	log.Debugf("Claim %v not found, node has: %v", op, newLogClosure(func() string {
		return spewClaims(n.Claims)
	}))
	return ClaimValue{}, false
}

// reorderClaims recomputes effective amounts from the active supports and
// sorts the claims.
func (n *Node) reorderClaims(supports []SupportValue) {
	for i := range n.Claims {
		c := &n.Claims[i]
		c.EffectiveAmount = c.Amount
		for _, s := range supports {
			if s.SupportedClaimID == c.ClaimID {
				c.EffectiveAmount += s.Amount
			}
		}
	}
	sort.SliceStable(n.Claims, func(i, j int) bool {
		return claimBetter(&n.Claims[i], &n.Claims[j])
	})
}
