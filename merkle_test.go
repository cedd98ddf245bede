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
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func TestMerklePath(t *testing.T) {
	for n := 1; n <= 17; n++ {
		hashes := make([]chainhash.Hash, n)
		for i := range hashes {
			hashes[i] = chainhash.DoubleHashH([]byte{byte(i)})
		}
		root := MerkleRoot(hashes)

		for idx := 0; idx < n; idx++ {
			path := MerklePath(hashes, uint32(idx))
			if !VerifyMerklePath(hashes[idx], uint32(idx), path, root) {
				t.Fatalf("path of leaf %d of %d does not verify", idx, n)
			}
			if n > 1 && VerifyMerklePath(hashes[(idx+1)%n], uint32(idx), path, root) {
				t.Fatalf("path of leaf %d of %d verifies another leaf", idx, n)
			}
		}
	}
}

func TestMerkleRoot(t *testing.T) {
	if root := MerkleRoot(nil); root != (chainhash.Hash{}) {
		t.Fatalf("root of nothing is %v", root)
	}

	a := chainhash.DoubleHashH([]byte("a"))
	b := chainhash.DoubleHashH([]byte("b"))
	c := chainhash.DoubleHashH([]byte("c"))
	if root := MerkleRoot([]chainhash.Hash{a}); root != a {
		t.Fatalf("root of one leaf is %v, want %v", root, a)
	}

	ab := hashPair(&a, &b)
	cc := hashPair(&c, &c)
	want := hashPair(&ab, &cc)
	if root := MerkleRoot([]chainhash.Hash{a, b, c}); root != want {
		t.Fatalf("root of three leaves is %v, want %v", root, want)
	}
}
