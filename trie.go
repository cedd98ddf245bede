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
	"bytes"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ClaimTrie is the committed claim trie. It mirrors the node rows of its
// Store in memory; changes are staged in a Cache and become visible here
// only when the cache is flushed.
type ClaimTrie struct {
	mu sync.RWMutex

	// flushMu allows a single cache to commit at a time.
	flushMu sync.Mutex

	cfg        *Config
	store      Store
	trie       *PrefixTrie[Node]
	nextHeight int32
	metrics    *metrics
}

// New opens the claim trie persisted in store, loading every node into
// memory and verifying it against the stored root.
func New(store Store, opts ...Option) (*ClaimTrie, error) {
	cfg := initConfig(opts...)
	t := &ClaimTrie{
		cfg:     cfg,
		store:   store,
		trie:    NewPrefixTrie[Node](),
		metrics: newMetrics(cfg.Registerer),
	}
	if err := t.ReadFromDisk(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *ClaimTrie) Params() *Params {
	return t.cfg.Params
}

// NextHeight is the height of the next block to be applied on top of the
// committed state.
func (t *ClaimTrie) NextHeight() int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextHeight
}

// NewCache opens a transactional overlay on the committed trie.
func (t *ClaimTrie) NewCache() *Cache {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return newCache(t)
}

func (t *ClaimTrie) Close() error {
	return t.store.Close()
}

func readMeta(store Store) (fn.Option[metaRecord], error) {
	b, err := store.Get(metaBucket, metaStateKey)
	if err != nil {
		return fn.None[metaRecord](), err
	}
	if b == nil {
		return fn.None[metaRecord](), nil
	}
	var meta metaRecord
	if err := decodeRecords(b, &meta); err != nil {
		return fn.None[metaRecord](), err
	}
	return fn.Some(meta), nil
}

func encodeMeta(nextHeight int32, root chainhash.Hash) ([]byte, error) {
	meta := metaRecord{nextHeight: uint32(nextHeight), root: root}
	var b bytes.Buffer
	if err := encodeRecords(&b, &meta); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func readSupports(store Store, name string) ([]SupportValue, error) {
	b, err := store.Get(supportBucket, nameKey(name))
	if err != nil || b == nil {
		return nil, err
	}
	return decodeSupports(b)
}

// ReadFromDisk rebuilds the in memory trie from the node rows. Rows of
// branch nodes only restore the hash of the node they belong to; rows
// left behind by nodes that no longer exist are deleted.
func (t *ClaimTrie) ReadFromDisk() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readFromDisk()
}

func (t *ClaimTrie) readFromDisk() error {
	log.Infof("Loading the claim trie from disk...")

	meta, err := readMeta(t.store)
	if err != nil {
		return err
	}
	t.nextHeight = fn.MapOptionZ(meta, func(m metaRecord) int32 {
		return int32(m.nextHeight)
	})
	t.trie.Clear()

	type row struct {
		name string
		node Node
	}
	var rows []row
	err = t.store.ForEach(nodeBucket, func(k, v []byte) error {
		name, err := keyName(k)
		if err != nil {
			return err
		}
		node, err := decodeNode(v)
		if err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
		rows = append(rows, row{name: name, node: node})
		return nil
	})
	if err != nil {
		return err
	}

	var empties []row
	for _, r := range rows {
		if r.node.Empty() {
			empties = append(empties, r)
			continue
		}
		supports, err := readSupports(t.store, r.name)
		if err != nil {
			return err
		}
		r.node.reorderClaims(supports)
		t.trie.Insert(r.name, r.node)
	}

	var stale [][]byte
	for _, r := range empties {
		if c := t.trie.Find(r.name); c.Valid() {
			c.Data().Hash = r.node.Hash
			continue
		}
		stale = append(stale, nameKey(r.name))
	}

	log.Infof("Checking claim trie consistency...")
	if failed, ok := t.checkConsistency(); !ok {
		return fmt.Errorf("%w: node %q", ErrInconsistentTrie, failed)
	}

	// Readers share the committed trie, so every hash is filled in here
	// under the write lock.
	root := t.merkleHash()
	var mismatch error
	meta.WhenSome(func(m metaRecord) {
		if root != chainhash.Hash(m.root) {
			mismatch = fmt.Errorf("%w: root %v, stored %v",
				ErrInconsistentTrie, root, chainhash.Hash(m.root))
		}
	})
	if mismatch != nil {
		return mismatch
	}

	if len(stale) > 0 {
		log.Debugf("Removing %d stale node rows", len(stale))
		err := t.store.Update(func(b Batch) error {
			for _, k := range stale {
				if err := b.Delete(nodeBucket, k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	log.Infof("Loaded %d nodes, next height %d", t.trie.Height(), t.nextHeight)
	t.metrics.nodes.Set(float64(t.trie.Height()))
	t.metrics.nextHeight.Set(float64(t.nextHeight))
	return nil
}

func (t *ClaimTrie) allClaimsInMerkle() bool {
	return hashFork{t.cfg.Params}.active(t.nextHeight)
}

func (t *ClaimTrie) merkleHash() chainhash.Hash {
	return merkleHash(t.trie, t.allClaimsInMerkle())
}

// MerkleHash returns the root hash of the committed trie.
func (t *ClaimTrie) MerkleHash() chainhash.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.merkleHash()
}

func merkleHash(trie *PrefixTrie[Node], allClaims bool) chainhash.Hash {
	root := trie.Root()
	if !root.Valid() {
		return EmptyTrieHash
	}
	return nodeHash(root, allClaims)
}

// nodeHash returns the cached hash of c, computing the missing ones below
// it first. The committed trie is always fully hashed, so this writes only
// to cache tries or under the write lock.
func nodeHash(c Cursor[Node], allClaims bool) chainhash.Hash {
	n := c.Data()
	if n.Hash != (chainhash.Hash{}) {
		return n.Hash
	}
	childHash := func(child Cursor[Node]) chainhash.Hash {
		return nodeHash(child, allClaims)
	}
	if allClaims {
		n.Hash = computeAllClaimsHash(c, childHash)
	} else {
		n.Hash = computeLegacyHash(c, childHash)
	}
	return n.Hash
}

// CheckConsistency recomputes every node hash of the committed trie from
// the stored hashes of its children and compares it with its own.
func (t *ClaimTrie) CheckConsistency() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.checkConsistency()
	return ok
}

func (t *ClaimTrie) checkConsistency() (string, bool) {
	root := t.trie.Root()
	if !root.Valid() {
		return "", true
	}
	return checkNode(root, t.allClaimsInMerkle())
}

func checkNode(c Cursor[Node], allClaims bool) (string, bool) {
	children := c.Children()
	for _, child := range children {
		if failed, ok := checkNode(child, allClaims); !ok {
			return failed, false
		}
	}
	n := c.Data()
	if n.Empty() && len(children) == 0 {
		log.Errorf("Invalid empty node %q", c.Key())
		return c.Key(), false
	}

	stored := func(child Cursor[Node]) chainhash.Hash {
		return child.Data().Hash
	}
	var h chainhash.Hash
	if allClaims {
		h = computeAllClaimsHash(c, stored)
	} else {
		h = computeLegacyHash(c, stored)
	}
	if h != n.Hash {
		log.Errorf("Computed hash %v doesn't match stored hash %v for %q",
			h, n.Hash, c.Key())
		return c.Key(), false
	}
	return "", true
}

// TotalNames counts the names that hold at least one claim.
func (t *ClaimTrie) TotalNames() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	t.trie.Walk(func(c Cursor[Node]) bool {
		if !c.Data().Empty() {
			count++
		}
		return true
	})
	return count
}

// TotalClaims counts the active claims.
func (t *ClaimTrie) TotalClaims() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	t.trie.Walk(func(c Cursor[Node]) bool {
		count += len(c.Data().Claims)
		return true
	})
	return count
}

// TotalValueOfClaims sums the amounts of the active claims, or only of the
// controlling ones.
func (t *ClaimTrie) TotalValueOfClaims(controllingOnly bool) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var value int64
	t.trie.Walk(func(c Cursor[Node]) bool {
		for _, claim := range c.Data().Claims {
			value += claim.Amount
			if controllingOnly {
				break
			}
		}
		return true
	})
	return value
}
