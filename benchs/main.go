package main

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	claimtrie "github.com/lbryio/lbrycrd-sub003"
)

func main() {
	benchmarkInsertInExisting()
}

func randomName(rng *rand.Rand) string {
	b := make([]byte, 1+rng.Intn(12))
	for i := range b {
		b[i] = byte('a' + rng.Intn(26))
	}
	return string(b)
}

func claimsBlock(rng *rand.Rand, height int32, count int, txCount *uint64) *claimtrie.Block {
	b := &claimtrie.Block{Height: height}
	var buf [8]byte
	for i := 0; i < count; i++ {
		binary.BigEndian.PutUint64(buf[:], *txCount)
		*txCount++
		b.Outputs = append(b.Outputs, claimtrie.ClaimOp{
			Kind:     claimtrie.OpClaim,
			Name:     randomName(rng),
			Amount:   1 + rng.Int63n(1000),
			OutPoint: wire.OutPoint{Hash: chainhash.DoubleHashH(buf[:])},
		})
	}
	return b
}

func benchmarkInsertInExisting() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Number of existing claims in the trie
	n := 1000000
	// Claims to be added afterwards
	toInsert := 10000

	for i := 0; i < 4; i++ {
		seed := rng.Int63()
		fmt.Printf("Generated claim set %d\n", i)

		// Build the trie from the same claims multiple times
		for j := 0; j < 5; j++ {
			blocks := rand.New(rand.NewSource(seed))
			var txCount uint64

			trie, err := claimtrie.New(claimtrie.NewMemStore(),
				claimtrie.WithParams(&claimtrie.RegressionNetParams))
			if err != nil {
				panic(err)
			}
			cache := trie.NewCache()
			b := claimsBlock(blocks, cache.NextHeight(), n, &txCount)
			if _, err := claimtrie.ConnectBlock(cache, b); err != nil {
				panic(err)
			}
			if err := cache.Flush(); err != nil {
				panic(err)
			}

			// Now add the 10k claims and measure time
			start := time.Now()
			b = claimsBlock(blocks, cache.NextHeight(), toInsert, &txCount)
			if _, err := claimtrie.ConnectBlock(cache, b); err != nil {
				panic(err)
			}
			cache.MerkleHash()
			elapsed := time.Since(start)
			fmt.Printf("Took %v to add and hash %d claims\n", elapsed, toInsert)
		}
	}
}
