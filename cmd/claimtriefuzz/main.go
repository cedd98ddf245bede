package main

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog/v2"
	"github.com/jessevdk/go-flags"
	claimtrie "github.com/lbryio/lbrycrd-sub003"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Network    string `long:"network" description:"Consensus parameters to use" choice:"mainnet" choice:"testnet" choice:"regtest" default:"regtest"`
	Blocks     int    `long:"blocks" description:"Number of blocks per attempt" default:"1000"`
	Attempts   int    `long:"attempts" description:"Number of attempts, 0 runs forever" default:"1"`
	Seed       int64  `long:"seed" description:"Random seed, 0 picks one from the clock"`
	DataDir    string `long:"datadir" description:"Directory for a bolt database; empty keeps the trie in memory"`
	FlushEvery int    `long:"flushevery" description:"Flush the cache every this many blocks" default:"10"`
	ReorgEvery int    `long:"reorgevery" description:"Average number of blocks between reorgs" default:"25"`
	MaxReorg   int    `long:"maxreorg" description:"Deepest reorg" default:"6"`
	Workers    int    `long:"workers" description:"Goroutines verifying proofs" default:"4"`
	DebugLevel string `long:"debuglevel" description:"Logging level" default:"info"`
}

var names = []string{
	"", "a", "ab", "abc", "abd", "b", "test", "Test", "TEST", "tESt",
	"testing", "Ångström", "ångström", "Ａｎｇ", "x", "xy", "xyz",
}

// utxo is a claim or support output the generator may spend.
type utxo struct {
	kind   claimtrie.ClaimOpKind
	name   string
	id     claimtrie.ClaimID
	op     wire.OutPoint
	amount int64
	height int32
}

type connected struct {
	block *claimtrie.Block
	undo  *claimtrie.BlockUndo
	root  chainhash.Hash
	utxos []utxo
}

type fuzzer struct {
	cfg    *config
	params *claimtrie.Params
	log    btclog.Logger
	rng    *rand.Rand

	trie  *claimtrie.ClaimTrie
	cache *claimtrie.Cache

	txCount uint64
	utxos   []utxo
	history []connected
}

func main() {
	var cfg config
	if _, err := flags.Parse(&cfg); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	logger := btclog.NewSLogger(btclog.NewDefaultHandler(os.Stdout))
	trieLogger := logger.WithPrefix(claimtrie.Subsystem)
	level, _ := btclog.LevelFromString(cfg.DebugLevel)
	logger.SetLevel(level)
	trieLogger.SetLevel(level)
	claimtrie.UseLogger(trieLogger)

	if err := run(&cfg, logger); err != nil {
		logger.Criticalf("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config, logger btclog.Logger) error {
	params, ok := claimtrie.ParamsForNetwork(cfg.Network)
	if !ok {
		return fmt.Errorf("unknown network %q", cfg.Network)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	for attempt := 0; cfg.Attempts == 0 || attempt < cfg.Attempts; attempt++ {
		logger.Infof("Attempt #%d, seed %d", attempt, seed+int64(attempt))
		f := &fuzzer{
			cfg:    cfg,
			params: params,
			log:    logger,
			rng:    rand.New(rand.NewSource(seed + int64(attempt))),
		}
		if err := f.open(attempt); err != nil {
			return err
		}
		err := f.run()
		if cerr := f.trie.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("attempt %d: %w", attempt, err)
		}
	}
	return nil
}

func (f *fuzzer) openStore(attempt int) (claimtrie.Store, error) {
	if f.cfg.DataDir == "" {
		return claimtrie.NewMemStore(), nil
	}
	if err := os.MkdirAll(f.cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	path := filepath.Join(f.cfg.DataDir, fmt.Sprintf("claimtrie-%d.db", attempt))
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}
	return claimtrie.OpenBoltStore(path)
}

func (f *fuzzer) open(attempt int) error {
	store, err := f.openStore(attempt)
	if err != nil {
		return err
	}
	f.trie, err = claimtrie.New(store, claimtrie.WithParams(f.params),
		claimtrie.WithRequireTakeoverHeights(true))
	if err != nil {
		return err
	}
	f.cache = f.trie.NewCache()
	return nil
}

func (f *fuzzer) run() error {
	for len(f.history) < f.cfg.Blocks {
		if err := f.connect(); err != nil {
			return err
		}

		if f.cfg.ReorgEvery > 0 && f.rng.Intn(f.cfg.ReorgEvery) == 0 {
			depth := 1 + f.rng.Intn(f.cfg.MaxReorg)
			if err := f.disconnect(depth); err != nil {
				return err
			}
		}

		if f.cfg.FlushEvery > 0 && len(f.history)%f.cfg.FlushEvery == 0 {
			if err := f.flush(); err != nil {
				return err
			}
		}
	}
	if err := f.flush(); err != nil {
		return err
	}
	if f.cfg.DataDir != "" {
		if err := f.reload(); err != nil {
			return err
		}
	}
	f.log.Infof("Done at height %d: %d names, %d claims, root %v",
		f.trie.NextHeight(), f.trie.TotalNames(), f.trie.TotalClaims(),
		f.trie.MerkleHash())
	return nil
}

func (f *fuzzer) outPoint() wire.OutPoint {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], f.txCount)
	f.txCount++
	return wire.OutPoint{Hash: chainhash.DoubleHashH(buf[:]), Index: uint32(f.rng.Intn(4))}
}

// spendable drops outputs close to expiring and returns the indexes of the
// remaining ones.
func (f *fuzzer) spendable(height int32) []int {
	maxAge := f.params.OriginalClaimExpirationTime - 2
	live := f.utxos[:0]
	for _, u := range f.utxos {
		if height-u.height < maxAge {
			live = append(live, u)
		}
	}
	f.utxos = live

	var ret []int
	for i := range f.utxos {
		ret = append(ret, i)
	}
	return ret
}

func (f *fuzzer) randomBlock() *claimtrie.Block {
	height := f.cache.NextHeight()
	b := &claimtrie.Block{Height: height}

	candidates := f.spendable(height)
	f.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	spends := f.rng.Intn(3)
	if spends > len(candidates) {
		spends = len(candidates)
	}
	spent := make(map[int]struct{})
	for _, idx := range candidates[:spends] {
		u := f.utxos[idx]
		spent[idx] = struct{}{}
		b.Spends = append(b.Spends, claimtrie.Spend{
			Kind:     u.kind,
			ClaimID:  u.id,
			OutPoint: u.op,
			Amount:   u.amount,
			Height:   u.height,
		})
		if u.kind != claimtrie.OpSupport && f.rng.Intn(2) == 0 {
			b.Outputs = append(b.Outputs, claimtrie.ClaimOp{
				Kind:     claimtrie.OpUpdate,
				Name:     u.name,
				ClaimID:  u.id,
				Amount:   1 + f.rng.Int63n(100),
				OutPoint: f.outPoint(),
			})
		}
	}

	var kept []utxo
	for i, u := range f.utxos {
		if _, ok := spent[i]; !ok {
			kept = append(kept, u)
		}
	}
	f.utxos = kept

	for i := f.rng.Intn(4); i > 0; i-- {
		name := names[f.rng.Intn(len(names))]
		b.Outputs = append(b.Outputs, claimtrie.ClaimOp{
			Kind:     claimtrie.OpClaim,
			Name:     name,
			Amount:   1 + f.rng.Int63n(100),
			OutPoint: f.outPoint(),
		})
	}

	var claims []utxo
	for _, u := range f.utxos {
		if u.kind != claimtrie.OpSupport {
			claims = append(claims, u)
		}
	}
	if len(claims) > 0 && f.rng.Intn(2) == 0 {
		target := claims[f.rng.Intn(len(claims))]
		b.Outputs = append(b.Outputs, claimtrie.ClaimOp{
			Kind:     claimtrie.OpSupport,
			Name:     target.name,
			ClaimID:  target.id,
			Amount:   1 + f.rng.Int63n(100),
			OutPoint: f.outPoint(),
		})
	}

	for _, op := range b.Outputs {
		id := op.ClaimID
		if op.Kind == claimtrie.OpClaim {
			id = claimtrie.NewClaimID(op.OutPoint)
		}
		f.utxos = append(f.utxos, utxo{
			kind:   op.Kind,
			name:   op.Name,
			id:     id,
			op:     op.OutPoint,
			amount: op.Amount,
			height: height,
		})
	}
	return b
}

func (f *fuzzer) connect() error {
	before := append([]utxo(nil), f.utxos...)
	root := f.cache.MerkleHash()

	b := f.randomBlock()
	undo, err := claimtrie.ConnectBlock(f.cache, b)
	if err != nil {
		return err
	}
	f.history = append(f.history, connected{
		block: b,
		undo:  undo,
		root:  root,
		utxos: before,
	})
	return nil
}

func (f *fuzzer) disconnect(depth int) error {
	if depth > len(f.history) {
		depth = len(f.history)
	}
	f.log.Debugf("Disconnecting %d blocks at height %d", depth, f.cache.NextHeight())
	for ; depth > 0; depth-- {
		last := f.history[len(f.history)-1]
		f.history = f.history[:len(f.history)-1]

		if err := claimtrie.DisconnectBlock(f.cache, last.block, last.undo); err != nil {
			return err
		}
		if root := f.cache.MerkleHash(); root != last.root {
			return fmt.Errorf("root %v after disconnecting block %d, "+
				"want %v", root, last.block.Height, last.root)
		}
		f.utxos = last.utxos
	}
	return nil
}

func (f *fuzzer) flush() error {
	root := f.cache.MerkleHash()
	if err := f.cache.Flush(); err != nil {
		return err
	}
	if got := f.trie.MerkleHash(); got != root {
		return fmt.Errorf("committed root %v, cache had %v", got, root)
	}
	if !f.trie.CheckConsistency() {
		return fmt.Errorf("inconsistent trie at height %d", f.trie.NextHeight())
	}
	return f.verifyProofs(root)
}

// verifyProofs checks a proof for every name, each worker reading the
// committed trie through its own cache.
func (f *fuzzer) verifyProofs(root chainhash.Hash) error {
	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)
	for _, name := range names {
		name := name
		g.Go(func() error {
			proof, err := f.trie.NewCache().ProofForName(name, fn.None[claimtrie.ClaimID]())
			if err != nil {
				return err
			}
			if !proof.Verify(root) {
				return fmt.Errorf("proof for %q does not verify against %v",
					name, root)
			}
			return nil
		})
	}
	return g.Wait()
}

func (f *fuzzer) reload() error {
	root := f.trie.MerkleHash()
	if err := f.trie.ReadFromDisk(); err != nil {
		return err
	}
	if got := f.trie.MerkleHash(); got != root {
		return fmt.Errorf("reloaded root %v, want %v", got, root)
	}
	f.cache = f.trie.NewCache()
	return nil
}
