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
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

func TestExpirationFork(t *testing.T) {
	params := testParams()
	params.OriginalClaimExpirationTime = 40
	params.ExtendedClaimExpirationTime = 60
	params.ExtendedClaimExpirationForkHeight = 20
	f := newFixture(t, params, nil)

	a := f.claim("test", 1)
	f.incrementBlocks(19)
	keys, err := f.cache.expiration.keys(keyHeight)
	require.NoError(t, err)
	require.Equal(t, []int32{41}, keys)

	f.incrementBlocks(1)
	keys, err = f.cache.expiration.keys(keyHeight)
	require.NoError(t, err)
	require.Equal(t, []int32{61}, keys)

	f.decrementBlocks(1)
	keys, err = f.cache.expiration.keys(keyHeight)
	require.NoError(t, err)
	require.Equal(t, []int32{41}, keys)

	// Claims made after the fork get the extended time right away.
	f.incrementBlocks(5)
	b := f.claim("other", 1)
	f.incrementBlocks(1)
	keys, err = f.cache.expiration.keys(keyHeight)
	require.NoError(t, err)
	require.Equal(t, []int32{61, 85}, keys)

	f.incrementBlocks(61 - int(f.cache.NextHeight()))
	f.requireWinner("test", a.id)
	f.incrementBlocks(1)
	f.requireNoWinner("test")
	f.requireWinner("other", b.id)

	f.decrementBlocks(1)
	f.requireWinner("test", a.id)
}

func TestShiftExpirationsFrom(t *testing.T) {
	f := newFixture(t, testParams(), nil)

	low := NameOutPoint{Name: "low", OutPoint: f.outPoint()}
	high := NameOutPoint{Name: "high", OutPoint: f.outPoint()}
	require.NoError(t, f.cache.supportExpiration.add(3, low))
	require.NoError(t, f.cache.supportExpiration.add(10, high))

	heights := func() []int32 {
		keys, err := f.cache.supportExpiration.keys(keyHeight)
		require.NoError(t, err)
		return keys
	}
	require.NoError(t, f.cache.shiftExpirations(5, 5))
	require.Equal(t, []int32{3, 15}, heights())

	// Rows under the bound stay put when shifting back.
	require.NoError(t, f.cache.supportExpiration.add(12, low))
	require.NoError(t, f.cache.shiftExpirations(-5, 15))
	require.Equal(t, []int32{3, 10, 12}, heights())
	row, err := f.cache.supportExpiration.get(10)
	require.NoError(t, err)
	require.Equal(t, []NameOutPoint{high}, row)
}

func TestNormalizationFork(t *testing.T) {
	params := testParams()
	params.NormalizedNameForkHeight = 5
	f := newFixture(t, params, nil)

	a := f.claim("Café", 1)
	f.incrementBlocks(1)
	b := f.claim("café", 2)
	f.incrementBlocks(3)

	// Names are still distinct before the fork.
	f.requireWinner("Café", a.id)
	f.requireWinner("café", b.id)
	f.requireNoWinner("CAFÉ")
	before := f.cache.MerkleHash()

	f.incrementBlocks(1)
	f.requireWinner("Café", b.id)
	f.requireWinner("CAFÉ", b.id)
	claims, err := f.cache.ClaimsForName("café")
	require.NoError(t, err)
	require.Equal(t, normalizeName("café"), claims.Name)
	require.Len(t, claims.Claims, 2)
	require.EqualValues(t, 5, claims.LastTakeoverHeight)
	require.NotEqual(t, before, f.cache.MerkleHash())

	// New claims land on the normalized name and the old ones can still
	// be spent by their original name.
	c := f.claim("CAFÉ", 3)
	f.spend(a)
	f.incrementBlocks(1)
	f.requireWinner("cafÉ", c.id)
	claims, err = f.cache.ClaimsForName("café")
	require.NoError(t, err)
	require.Len(t, claims.Claims, 2)

	f.decrementBlocks(2)
	require.Equal(t, before, f.cache.MerkleHash())
	f.requireWinner("Café", a.id)
	f.requireWinner("café", b.id)

	entry, err := f.cache.ClaimByID(a.id)
	require.NoError(t, err)
	require.Equal(t, "Café", entry.Name)
}

func TestNormalizationForkMovesOrphanSupports(t *testing.T) {
	tests := []struct {
		name   string
		expire bool
	}{
		{"spent", false},
		{"expired", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			params.NormalizedNameForkHeight = 5
			params.OriginalClaimExpirationTime = 10
			f := newFixture(t, params, nil)

			// The support outlives its claim, so no node is left under
			// its raw name when the fork comes.
			a := f.claim("A", 1)
			s := f.support("A", a.id, 1)
			f.incrementBlocks(1)
			f.spend(a)
			f.incrementBlocks(3)
			f.requireNoWinner("A")
			unmatched := func(name string) []SupportValue {
				claims, err := f.cache.ClaimsForName(name)
				require.NoError(t, err)
				require.Empty(t, claims.Claims)
				return claims.UnmatchedSupports
			}
			require.Len(t, unmatched("A"), 1)

			f.incrementBlocks(1)
			supports := unmatched("a")
			require.Len(t, supports, 1)
			require.Equal(t, s.op.OutPoint, supports[0].OutPoint)
			names, err := f.cache.supports.keys(keyName)
			require.NoError(t, err)
			require.Equal(t, []string{"a"}, names)

			blocks := 1
			if tt.expire {
				f.incrementBlocks(10 - int(f.cache.NextHeight()) + 1)
				require.Len(t, unmatched("a"), 1)
				blocks += 10 - 6 + 1
			} else {
				f.spend(s)
			}
			f.incrementBlocks(1)
			require.Empty(t, unmatched("a"))

			f.decrementBlocks(blocks + 1)
			require.EqualValues(t, 5, f.cache.NextHeight())
			require.Len(t, unmatched("A"), 1)
			names, err = f.cache.supports.keys(keyName)
			require.NoError(t, err)
			require.Equal(t, []string{"A"}, names)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"ascii", "Hello", "hello"},
		{"composed", "Caf\u00e9", "cafe\u0301"},
		{"decomposed", "Cafe\u0301", "cafe\u0301"},
		{"upper", "\u00c5NGSTR\u00d6M", "a\u030angstro\u0308m"},
		{"invalid utf8", "Caf\xff", "Caf\xff"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, normalizeName(tc.in))
		})
	}
}

func TestHashFork(t *testing.T) {
	params := testParams()
	params.AllClaimsInMerkleForkHeight = 5
	f := newFixture(t, params, nil)

	f.claim("test", 2)
	f.claim("test", 1)
	f.claim("tester", 3)
	f.incrementBlocks(3)
	legacy := f.cache.MerkleHash()

	f.incrementBlocks(1)
	allClaims := f.cache.MerkleHash()
	require.NotEqual(t, legacy, allClaims)

	proof, err := f.cache.ProofForName("test", fn.None[ClaimID]())
	require.NoError(t, err)
	require.NotEmpty(t, proof.Pairs)
	require.True(t, proof.Verify(allClaims))

	f.decrementBlocks(1)
	require.Equal(t, legacy, f.cache.MerkleHash())

	proof, err = f.cache.ProofForName("test", fn.None[ClaimID]())
	require.NoError(t, err)
	require.NotEmpty(t, proof.Nodes)
	require.True(t, proof.Verify(legacy))

	// The fork survives a flush on either side.
	f.incrementBlocks(1)
	require.NoError(t, f.cache.Flush())
	require.Equal(t, allClaims, f.trie.MerkleHash())
	require.True(t, f.trie.CheckConsistency())
	require.NotEqual(t, chainhash.Hash{}, allClaims)
}
