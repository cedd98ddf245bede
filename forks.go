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
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// The consensus rules changed three times. Each fork is a small strategy
// consulted by the cache with the height it is working on.

type expirationFork struct {
	params *Params
}

func (f expirationFork) expirationTime(nextHeight int32) int32 {
	return f.params.ExpirationTime(nextHeight)
}

// triggered reports whether the block at nextHeight switches to the
// extended expiration time.
func (f expirationFork) triggered(nextHeight int32) bool {
	return nextHeight == f.params.ExtendedClaimExpirationForkHeight
}

type normalizationFork struct {
	params *Params
}

func (f normalizationFork) active(nextHeight int32) bool {
	return nextHeight > f.params.NormalizedNameForkHeight
}

func (f normalizationFork) triggered(nextHeight int32) bool {
	return nextHeight == f.params.NormalizedNameForkHeight
}

// adjust returns the name an entry valid at validAt is filed under.
func (f normalizationFork) adjust(name string, validAt int32) string {
	if validAt > f.params.NormalizedNameForkHeight {
		return normalizeName(name)
	}
	return name
}

type hashFork struct {
	params *Params
}

func (f hashFork) active(nextHeight int32) bool {
	return nextHeight >= f.params.AllClaimsInMerkleForkHeight
}

// triggered reports whether the hash computed at the end of the block at
// nextHeight, or after reverting to it, uses the other scheme.
func (f hashFork) triggered(nextHeight int32) bool {
	return nextHeight == f.params.AllClaimsInMerkleForkHeight-1
}

type forks struct {
	expiration    expirationFork
	normalization normalizationFork
	hash          hashFork
}

func newForks(p *Params) forks {
	return forks{
		expiration:    expirationFork{params: p},
		normalization: normalizationFork{params: p},
		hash:          hashFork{params: p},
	}
}

// InitializeIncrement runs the fork transitions that must happen before
// the claim operations of the block at NextHeight are applied.
func (c *Cache) InitializeIncrement() error {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	if c.forks.expiration.triggered(c.nextHeight) {
		log.Infof("Extending claim expiration at height %d", c.nextHeight)
		if err := c.shiftExpirations(c.params.expirationExtension(), c.nextHeight); err != nil {
			return err
		}
	}
	if c.forks.hash.triggered(c.nextHeight) {
		log.Infof("Switching to all claims hashing after height %d", c.nextHeight)
		c.invalidateHashes()
	}
	return nil
}

// shiftExpirations moves the claim and support expiration rows at or
// above height from by delta blocks.
func (c *Cache) shiftExpirations(delta, from int32) error {
	for _, queue := range []*rowCache[int32, NameOutPoint]{c.expiration, c.supportExpiration} {
		all, err := queue.keys(keyHeight)
		if err != nil {
			return err
		}
		var heights []int32
		for _, h := range all {
			if h >= from {
				heights = append(heights, h)
			}
		}
		rows := make([][]NameOutPoint, len(heights))
		for i, h := range heights {
			if rows[i], err = queue.get(h); err != nil {
				return err
			}
			queue.set(h, nil)
		}
		for i, h := range heights {
			for _, e := range rows[i] {
				if err := queue.add(h+delta, e); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// invalidateHashes pulls the whole trie into the cache and clears every
// node hash so the root is recomputed under the other scheme.
func (c *Cache) invalidateHashes() {
	var names []string
	c.base.trie.Walk(func(cur Cursor[Node]) bool {
		names = append(names, cur.Key())
		return true
	})
	for _, name := range names {
		c.cacheData(name, false)
	}
	c.trie.Walk(func(cur Cursor[Node]) bool {
		cur.Data().Hash = chainhash.Hash{}
		return true
	})
}

// normalizeAllNames moves every claim and support that is still alive
// from its raw name to the normalized one. The moves are recorded as
// expirations of the old entries plus insertions with a negative height,
// which DecrementBlock reverts without queueing anything.
func (c *Cache) normalizeAllNames(undo *BlockUndo) error {
	// Supports outlive the claims of their name, so names are gathered
	// from the support rows as well as from the nodes.
	hasNode := make(map[string]bool)
	var names []string
	collect := func(cur Cursor[Node]) bool {
		if _, ok := hasNode[cur.Key()]; !ok {
			hasNode[cur.Key()] = true
			names = append(names, cur.Key())
		}
		return true
	}
	c.base.trie.Walk(collect)
	c.trie.Walk(collect)
	supportNames, err := c.supports.keys(keyName)
	if err != nil {
		return err
	}
	for _, name := range supportNames {
		if _, ok := hasNode[name]; !ok {
			hasNode[name] = false
			names = append(names, name)
		}
	}
	sort.Strings(names)

	expiration := c.expirationTime()
	for _, name := range names {
		normalized := normalizeName(name)
		if normalized == name {
			continue
		}

		supports, err := c.supports.get(name)
		if err != nil {
			return err
		}
		moved := false
		for _, s := range supports {
			if s.Height+expiration <= c.nextHeight {
				continue
			}
			moved = true
			if _, ok, err := c.removeSupportFromMap(name, s.OutPoint, false); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("%w: support %v of %q vanished",
					ErrInconsistentTrie, s.OutPoint, name)
			}
			undo.ExpireSupportUndo = append(undo.ExpireSupportUndo,
				NameSupport{Name: name, Support: s})
			if err := c.insertSupportIntoMap(normalized, s, false); err != nil {
				return err
			}
			undo.InsertSupportUndo = append(undo.InsertSupportUndo,
				NameOutPointHeight{Name: name, OutPoint: s.OutPoint, Height: -1})
		}

		if !hasNode[name] {
			if moved {
				c.namesToCheck[normalized] = struct{}{}
			}
			continue
		}
		c.namesToCheck[normalized] = struct{}{}

		cur := c.cacheData(name, false)
		if !cur.Valid() || cur.Data().Empty() {
			continue
		}
		claims := append([]ClaimValue(nil), cur.Data().Claims...)
		takeoverHeight := cur.Data().TakeoverHeight
		for _, claim := range claims {
			if claim.Height+expiration <= c.nextHeight {
				continue
			}
			removed, ok, err := c.removeClaimFromTrie(name, claim.OutPoint, false)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: claim %v of %q vanished",
					ErrInconsistentTrie, claim.OutPoint, name)
			}
			undo.ExpireUndo = append(undo.ExpireUndo,
				NameClaim{Name: name, Claim: removed})
			if err := c.insertClaimIntoTrie(normalized, removed, true); err != nil {
				return err
			}
			undo.InsertUndo = append(undo.InsertUndo,
				NameOutPointHeight{Name: name, OutPoint: claim.OutPoint, Height: -1})
		}
		undo.TakeoverHeightUndo = append(undo.TakeoverHeightUndo,
			NameHeight{Name: name, Height: takeoverHeight})
	}
	return nil
}
