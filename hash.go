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
	"encoding/binary"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	// EmptyTrieHash is the root of a trie without any claim.
	EmptyTrieHash = chainhash.Hash{1}

	// leafHash stands in for the children of a node without children.
	leafHash = chainhash.Hash{2}

	// emptyHash stands in for the claims of a node without claims.
	emptyHash = chainhash.Hash{3}
)

func heightToVch(height int32) []byte {
	var vch [8]byte
	binary.BigEndian.PutUint32(vch[4:], uint32(height))
	return vch[:]
}

// valueHash commits to a claim outpoint and the takeover height of its
// node.
func valueHash(op wire.OutPoint, takeoverHeight int32) chainhash.Hash {
	h1 := chainhash.DoubleHashH(op.Hash[:])
	h2 := chainhash.DoubleHashH([]byte(strconv.FormatUint(uint64(op.Index), 10)))
	h3 := chainhash.DoubleHashH(heightToVch(takeoverHeight))

	var buf [3 * chainhash.HashSize]byte
	copy(buf[:], h1[:])
	copy(buf[chainhash.HashSize:], h2[:])
	copy(buf[2*chainhash.HashSize:], h3[:])
	return chainhash.DoubleHashH(buf[:])
}

// completeHash folds the bytes of key after pos+1 into hash, emulating one
// single byte node per skipped character of a compressed edge.
func completeHash(hash chainhash.Hash, key string, pos int) chainhash.Hash {
	var buf [1 + chainhash.HashSize]byte
	for i := len(key); i > pos+1; i-- {
		buf[0] = key[i-1]
		copy(buf[1:], hash[:])
		hash = chainhash.DoubleHashH(buf[:])
	}
	return hash
}

// computeLegacyHash is the node hash used before the all claims fork.
func computeLegacyHash(c Cursor[Node], childHash func(Cursor[Node]) chainhash.Hash) chainhash.Hash {
	pos := len(c.Key())
	vch := make([]byte, 0, 64)
	for _, child := range c.Children() {
		key := child.Key()
		vch = append(vch, key[pos])
		h := completeHash(childHash(child), key, pos)
		vch = append(vch, h[:]...)
	}
	node := c.Data()
	if best, ok := node.BestClaim(); ok {
		vh := valueHash(best.OutPoint, node.TakeoverHeight)
		vch = append(vch, vh[:]...)
	}
	return chainhash.DoubleHashH(vch)
}

// computeAllClaimsHash is the node hash used from the all claims fork on.
func computeAllClaimsHash(c Cursor[Node], childHash func(Cursor[Node]) chainhash.Hash) chainhash.Hash {
	children := c.Children()
	left := leafHash
	if len(children) > 0 {
		hashes := make([]chainhash.Hash, len(children))
		for i, child := range children {
			hashes[i] = childHash(child)
		}
		left = MerkleRoot(hashes)
	}

	right := emptyHash
	if claims := claimHashes(c.Data()); len(claims) > 0 {
		right = MerkleRoot(claims)
	}
	return hashPair(&left, &right)
}

func claimHashes(node *Node) []chainhash.Hash {
	hashes := make([]chainhash.Hash, len(node.Claims))
	for i := range node.Claims {
		hashes[i] = valueHash(node.Claims[i].OutPoint, node.TakeoverHeight)
	}
	return hashes
}
