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
	"pgregory.net/rapid"
)

func TestConnectBlockHeightMismatch(t *testing.T) {
	f := newFixture(t, testParams(), nil)

	_, err := ConnectBlock(f.cache, &Block{Height: 5})
	require.ErrorIs(t, err, ErrHeightMismatch)

	err = DisconnectBlock(f.cache, &Block{Height: 5}, &BlockUndo{})
	require.ErrorIs(t, err, ErrHeightMismatch)
}

func TestUpdateWithoutSpend(t *testing.T) {
	f := newFixture(t, testParams(), nil)

	a := f.claim("test", 1)
	f.incrementBlocks(1)

	f.addOutput(ClaimOp{
		Kind:     OpUpdate,
		Name:     "test",
		ClaimID:  a.id,
		Amount:   2,
		OutPoint: f.outPoint(),
	})
	_, err := ConnectBlock(f.cache, f.block)
	require.ErrorIs(t, err, ErrUpdateWithoutSpend)
}

func TestUpdateOfOtherName(t *testing.T) {
	f := newFixture(t, testParams(), nil)

	a := f.claim("test", 1)
	f.incrementBlocks(1)

	f.spend(a)
	f.addOutput(ClaimOp{
		Kind:     OpUpdate,
		Name:     "other",
		ClaimID:  a.id,
		Amount:   2,
		OutPoint: f.outPoint(),
	})
	_, err := ConnectBlock(f.cache, f.block)
	require.ErrorIs(t, err, ErrUpdateWithoutSpend)
}

func TestConsensusHash(t *testing.T) {
	expected := newFixture(t, testParams(), nil)
	expected.claim("test", 1)
	expected.claim("toast", 2)
	expected.incrementBlocks(1)
	root := expected.cache.MerkleHash()

	f := newFixture(t, testParams(), nil)
	f.claim("test", 1)
	f.claim("toast", 2)
	f.block.ClaimTrieHash = fn.Some(root)
	f.incrementBlocks(1)

	f.claim("test", 3)
	f.block.ClaimTrieHash = fn.Some(root)
	_, err := ConnectBlock(f.cache, f.block)
	require.ErrorIs(t, err, ErrConsensusMismatch)
}

var roundTripNames = []string{"", "a", "ab", "abc", "abd", "b", "test", "tester", "toast"}

// TestConnectDisconnectRoundTrip connects random blocks and disconnects
// them again, checking that every intermediate root comes back.
func TestConnectDisconnectRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		params := testParams()
		params.OriginalClaimExpirationTime = rapid.Int32Range(5, 30).Draw(rt, "expiration")
		params.ProportionalDelayFactor = rapid.Int32Range(1, 4).Draw(rt, "delayFactor")
		params.MaxTakeoverDelay = rapid.Int32Range(0,
			params.OriginalClaimExpirationTime-1).Draw(rt, "maxDelay")
		f := newFixture(rt, params, nil)

		blocks := rapid.IntRange(1, 40).Draw(rt, "blocks")
		flushAt := rapid.IntRange(0, blocks).Draw(rt, "flushAt")

		var (
			live  []output
			roots []chainhash.Hash
		)
		for i := 0; i < blocks; i++ {
			if i == flushAt {
				require.NoError(rt, f.cache.Flush())
				require.True(rt, f.trie.CheckConsistency())
			}
			roots = append(roots, f.cache.MerkleHash())
			height := f.block.Height

			kept := live[:0]
			for _, o := range live {
				if height-o.height < params.OriginalClaimExpirationTime {
					kept = append(kept, o)
				}
			}
			live = kept

			var created []output
			spends := rapid.IntRange(0, 2).Draw(rt, "spends")
			for ; spends > 0 && len(live) > 0; spends-- {
				idx := rapid.IntRange(0, len(live)-1).Draw(rt, "spend")
				o := live[idx]
				live = append(live[:idx:idx], live[idx+1:]...)
				if o.op.Kind != OpSupport && rapid.Bool().Draw(rt, "update") {
					amount := rapid.Int64Range(1, 100).Draw(rt, "amount")
					created = append(created, f.update(o, amount))
					continue
				}
				f.spend(o)
			}

			claims := rapid.IntRange(0, 3).Draw(rt, "claims")
			for ; claims > 0; claims-- {
				name := rapid.SampledFrom(roundTripNames).Draw(rt, "name")
				amount := rapid.Int64Range(1, 100).Draw(rt, "amount")
				created = append(created, f.claim(name, amount))
			}

			var targets []output
			for _, o := range live {
				if o.op.Kind != OpSupport {
					targets = append(targets, o)
				}
			}
			if len(targets) > 0 && rapid.Bool().Draw(rt, "support") {
				target := rapid.SampledFrom(targets).Draw(rt, "target")
				amount := rapid.Int64Range(1, 100).Draw(rt, "amount")
				created = append(created, f.support(target.op.Name, target.id, amount))
			}

			f.incrementBlocks(1)
			live = append(live, created...)
		}

		for i := len(roots) - 1; i >= 0; i-- {
			f.decrementBlocks(1)
			require.Equal(rt, roots[i], f.cache.MerkleHash(),
				"root after disconnecting to height %d", f.cache.NextHeight())
		}
		require.Equal(rt, EmptyTrieHash, f.cache.MerkleHash())
	})
}

// Mixed case and composed or decomposed forms that only meet after the
// normalization fork. No raw name is the normalized form of another one.
var forkNames = []string{"", "A", "Ab", "AB", "test", "Caf\u00e9", "CAF\u00c9", "Cafe\u0301"}

// TestConnectDisconnectAcrossForks runs random blocks over all three forks,
// committing and reloading the trie after every block in both directions.
func TestConnectDisconnectAcrossForks(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		params := testParams()
		params.OriginalClaimExpirationTime = rapid.Int32Range(5, 30).Draw(rt, "expiration")
		params.ExtendedClaimExpirationTime = params.OriginalClaimExpirationTime +
			rapid.Int32Range(1, 10).Draw(rt, "extension")
		params.ExtendedClaimExpirationForkHeight = rapid.Int32Range(2, 30).Draw(rt, "expirationFork")
		params.NormalizedNameForkHeight = rapid.Int32Range(2, 30).Draw(rt, "normalizationFork")
		params.AllClaimsInMerkleForkHeight = rapid.Int32Range(2, 30).Draw(rt, "hashFork")
		params.MinTakeoverWorkaroundHeight = rapid.Int32Range(-1, 20).Draw(rt, "workaroundMin")
		params.MaxTakeoverWorkaroundHeight = rapid.Int32Range(-1, 30).Draw(rt, "workaroundMax")
		params.ProportionalDelayFactor = rapid.Int32Range(1, 4).Draw(rt, "delayFactor")
		params.MaxTakeoverDelay = rapid.Int32Range(0,
			params.OriginalClaimExpirationTime-1).Draw(rt, "maxDelay")
		f := newFixture(rt, params, nil)

		commit := func() chainhash.Hash {
			root := f.cache.MerkleHash()
			require.NoError(rt, f.cache.Flush())
			require.True(rt, f.trie.CheckConsistency())
			require.Equal(rt, root, f.trie.MerkleHash())

			reloaded, err := New(f.store, WithParams(params))
			require.NoError(rt, err)
			require.Equal(rt, root, reloaded.MerkleHash())

			for _, name := range forkNames {
				proof, err := f.cache.ProofForName(name, fn.None[ClaimID]())
				require.NoError(rt, err)
				require.True(rt, proof.Verify(root), "proof of %q at %d",
					name, f.cache.NextHeight())
			}
			return root
		}

		blocks := rapid.IntRange(1, 40).Draw(rt, "blocks")
		var (
			live  []output
			roots []chainhash.Hash
		)
		for i := 0; i < blocks; i++ {
			roots = append(roots, commit())
			height := f.block.Height

			// Expiry is judged by the original time, so nothing that may
			// already be gone is ever spent.
			kept := live[:0]
			for _, o := range live {
				if height-o.height < params.OriginalClaimExpirationTime {
					kept = append(kept, o)
				}
			}
			live = kept

			var created []output
			spends := rapid.IntRange(0, 2).Draw(rt, "spends")
			for ; spends > 0 && len(live) > 0; spends-- {
				idx := rapid.IntRange(0, len(live)-1).Draw(rt, "spend")
				o := live[idx]
				live = append(live[:idx:idx], live[idx+1:]...)
				if o.op.Kind != OpSupport && rapid.Bool().Draw(rt, "update") {
					amount := rapid.Int64Range(1, 100).Draw(rt, "amount")
					created = append(created, f.update(o, amount))
					continue
				}
				f.spend(o)
			}

			claims := rapid.IntRange(0, 3).Draw(rt, "claims")
			for ; claims > 0; claims-- {
				name := rapid.SampledFrom(forkNames).Draw(rt, "name")
				amount := rapid.Int64Range(1, 100).Draw(rt, "amount")
				created = append(created, f.claim(name, amount))
			}

			var targets []output
			for _, o := range live {
				if o.op.Kind != OpSupport {
					targets = append(targets, o)
				}
			}
			if len(targets) > 0 && rapid.Bool().Draw(rt, "support") {
				target := rapid.SampledFrom(targets).Draw(rt, "target")
				amount := rapid.Int64Range(1, 100).Draw(rt, "amount")
				created = append(created, f.support(target.op.Name, target.id, amount))
			}

			f.incrementBlocks(1)
			live = append(live, created...)
		}
		commit()

		for i := len(roots) - 1; i >= 0; i-- {
			f.decrementBlocks(1)
			require.Equal(rt, roots[i], commit(),
				"root after disconnecting to height %d", f.cache.NextHeight())
		}
		require.Equal(rt, EmptyTrieHash, f.cache.MerkleHash())
	})
}
