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
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// hashPair is the two input combine used by every tree in this package.
func hashPair(a, b *chainhash.Hash) chainhash.Hash {
	var buf [2 * chainhash.HashSize]byte
	copy(buf[:chainhash.HashSize], a[:])
	copy(buf[chainhash.HashSize:], b[:])
	return chainhash.DoubleHashH(buf[:])
}

// MerkleRoot reduces hashes pairwise, duplicating the last element of odd
// levels. An empty input yields the zero hash.
func MerkleRoot(hashes []chainhash.Hash) chainhash.Hash {
	if len(hashes) == 0 {
		return chainhash.Hash{}
	}
	level := append([]chainhash.Hash(nil), hashes...)
	for len(level) > 1 {
		if len(level)&1 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(&level[i], &level[i+1]))
		}
		level = next
	}
	return level[0]
}

// MerklePath returns the sibling hashes needed to rebuild MerkleRoot(hashes)
// from hashes[idx], lowest level first. The side of each sibling follows
// from the bits of idx.
func MerklePath(hashes []chainhash.Hash, idx uint32) []chainhash.Hash {
	var (
		count      uint32
		matchLevel = -1
		matchH     bool
		inner      [32]chainhash.Hash
		h          chainhash.Hash
		res        []chainhash.Hash
	)

	iterateInner := func(level int) int {
		for ; count&(1<<uint(level)) == 0; level++ {
			ihash := inner[level]
			if matchH {
				res = append(res, ihash)
			} else if matchLevel == level {
				res = append(res, h)
				matchH = true
			}
			h = hashPair(&ihash, &h)
		}
		return level
	}

	for int(count) < len(hashes) {
		h = hashes[count]
		matchH = count == idx
		count++
		level := iterateInner(0)
		inner[level] = h
		if matchH {
			matchLevel = level
		}
	}

	level := 0
	for count&(1<<uint(level)) == 0 {
		level++
	}
	h = inner[level]
	matchH = matchLevel == level
	for count != 1<<uint(level) {
		if matchH {
			res = append(res, h)
		}
		h = hashPair(&h, &h)
		count += 1 << uint(level)
		level++
		level = iterateInner(level)
	}
	return res
}

// VerifyMerklePath reports whether leaf at idx together with path rebuilds
// root.
func VerifyMerklePath(leaf chainhash.Hash, idx uint32, path []chainhash.Hash,
	root chainhash.Hash) bool {

	h := leaf
	for i := range path {
		if (idx>>uint(i))&1 == 1 {
			h = hashPair(&path[i], &h)
		} else {
			h = hashPair(&h, &path[i])
		}
	}
	return h == root
}
