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
)

// IncrementBlock finishes the block at NextHeight: it activates the claims
// and supports that became valid, expires the old ones and resolves the
// takeovers of every name touched by the block. The returned undo reverts
// the changes with DecrementBlock and FinalizeDecrement.
func (c *Cache) IncrementBlock() (*BlockUndo, error) {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	undo := &BlockUndo{}
	if c.forks.normalization.triggered(c.nextHeight) {
		log.Infof("Normalizing claim names at height %d", c.nextHeight)
		if err := c.normalizeAllNames(undo); err != nil {
			return nil, err
		}
		c.overrideInsertNormalization = true
		defer func() { c.overrideInsertNormalization = false }()
	}

	if err := c.activateClaims(undo); err != nil {
		return nil, err
	}
	if err := c.expireClaims(undo); err != nil {
		return nil, err
	}
	if err := c.activateSupports(undo); err != nil {
		return nil, err
	}
	if err := c.expireSupports(undo); err != nil {
		return nil, err
	}
	if err := c.checkTakeovers(undo); err != nil {
		return nil, err
	}

	c.namesToCheck = make(map[string]struct{})
	c.takeoverWorkaround = make(map[string]bool)
	c.nextHeight++
	c.base.metrics.blocksConnected.Inc()
	return undo, nil
}

func (c *Cache) activateClaims(undo *BlockUndo) error {
	row, err := c.claimQueue.get(c.nextHeight)
	if err != nil || len(row) == 0 {
		return err
	}
	for _, e := range row {
		_, ok, err := c.claimQueueName.removeFirst(e.Name, func(q *outPointHeight) bool {
			return q.OutPoint == e.Claim.OutPoint && q.Height == c.nextHeight
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: claim %v of %q queued at %d is not "+
				"queued by name", ErrInconsistentTrie, e.Claim.OutPoint,
				e.Name, c.nextHeight)
		}
		if err := c.insertClaimIntoTrie(e.Name, e.Claim, true); err != nil {
			return err
		}
		undo.InsertUndo = append(undo.InsertUndo, NameOutPointHeight{
			Name:     e.Name,
			OutPoint: e.Claim.OutPoint,
			Height:   e.Claim.ValidAtHeight,
		})
	}
	c.claimQueue.set(c.nextHeight, nil)
	return nil
}

func (c *Cache) expireClaims(undo *BlockUndo) error {
	row, err := c.expiration.get(c.nextHeight)
	if err != nil || len(row) == 0 {
		return err
	}
	for _, e := range row {
		claim, ok, err := c.removeClaimFromTrie(e.Name, e.OutPoint, true)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: expiring claim %v of %q is not in the "+
				"trie", ErrInconsistentTrie, e.OutPoint, e.Name)
		}
		log.Debugf("Claim %v of %q expired at %d", claim.ClaimID, e.Name, c.nextHeight)
		if err := c.deleteClaimIndex(claim); err != nil {
			return err
		}
		undo.ExpireUndo = append(undo.ExpireUndo, NameClaim{Name: e.Name, Claim: claim})
	}
	c.expiration.set(c.nextHeight, nil)
	return nil
}

func (c *Cache) activateSupports(undo *BlockUndo) error {
	row, err := c.supportQueue.get(c.nextHeight)
	if err != nil || len(row) == 0 {
		return err
	}
	for _, e := range row {
		_, ok, err := c.supportQueueName.removeFirst(e.Name, func(q *outPointHeight) bool {
			return q.OutPoint == e.Support.OutPoint && q.Height == e.Support.ValidAtHeight
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: support %v of %q queued at %d is not "+
				"queued by name", ErrInconsistentTrie, e.Support.OutPoint,
				e.Name, c.nextHeight)
		}
		if err := c.insertSupportIntoMap(e.Name, e.Support, true); err != nil {
			return err
		}
		undo.InsertSupportUndo = append(undo.InsertSupportUndo, NameOutPointHeight{
			Name:     e.Name,
			OutPoint: e.Support.OutPoint,
			Height:   e.Support.ValidAtHeight,
		})
	}
	c.supportQueue.set(c.nextHeight, nil)
	return nil
}

func (c *Cache) expireSupports(undo *BlockUndo) error {
	row, err := c.supportExpiration.get(c.nextHeight)
	if err != nil || len(row) == 0 {
		return err
	}
	for _, e := range row {
		support, ok, err := c.removeSupportFromMap(e.Name, e.OutPoint, true)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: expiring support %v of %q is not in the "+
				"trie", ErrInconsistentTrie, e.OutPoint, e.Name)
		}
		c.deleteSupportIndex(e.OutPoint)
		undo.ExpireSupportUndo = append(undo.ExpireSupportUndo,
			NameSupport{Name: e.Name, Support: support})
	}
	c.supportExpiration.set(c.nextHeight, nil)
	return nil
}

// checkTakeovers compares the winner of every touched name with the one of
// the previous block. When it changed, or the name was just created or
// emptied, all pending claims and supports of the name activate at once and
// the takeover height moves to this block.
func (c *Cache) checkTakeovers(undo *BlockUndo) error {
	names := make([]string, 0, len(c.namesToCheck))
	for name := range c.namesToCheck {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var (
			winner  ClaimValue
			inCache bool
		)
		if cur := c.trie.Find(name); cur.Valid() {
			winner, inCache = cur.Data().BestClaim()
		}
		ownerID, ownerHeight, inTrie := c.lastTakeover(name)
		takeoverHappened := !inCache || !inTrie || winner.ClaimID != ownerID

		if takeoverHappened {
			if err := c.activatePendingClaims(name, undo); err != nil {
				return err
			}
			if err := c.activatePendingSupports(name, undo); err != nil {
				return err
			}
		}

		if c.takeoverWorkaround[name] {
			if !takeoverHappened {
				log.Infof("Takeover height workaround affects %q at %d", name, c.nextHeight)
			}
			takeoverHappened = true
		}

		if inTrie && takeoverHappened {
			undo.TakeoverHeightUndo = append(undo.TakeoverHeightUndo,
				NameHeight{Name: name, Height: ownerHeight})
		}

		cur := c.trie.Find(name)
		if !cur.Valid() || !takeoverHappened {
			continue
		}
		n := cur.Data()
		n.TakeoverHeight = c.nextHeight
		if best, ok := n.BestClaim(); ok {
			log.Debugf("Takeover of %q by %v at %d", name, best.ClaimID, c.nextHeight)
			c.takeoverCache[name] = takeover{id: best.ClaimID, height: c.nextHeight}
			c.base.metrics.takeovers.Inc()
		}
	}
	return nil
}

func (c *Cache) activatePendingClaims(name string, undo *BlockUndo) error {
	row, err := c.claimQueueName.get(name)
	if err != nil || len(row) == 0 {
		return err
	}
	for _, e := range row {
		queue, err := c.claimQueue.get(e.Height)
		if err != nil {
			return err
		}
		idx := -1
		for i, q := range queue {
			if q.Name == name && q.Claim.OutPoint == e.OutPoint &&
				q.Claim.ValidAtHeight == e.Height {

				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: claim %v of %q is not in queue row %d",
				ErrInconsistentTrie, e.OutPoint, name, e.Height)
		}

		claim := queue[idx].Claim
		undo.InsertUndo = append(undo.InsertUndo, NameOutPointHeight{
			Name:     name,
			OutPoint: claim.OutPoint,
			Height:   claim.ValidAtHeight,
		})
		claim.ValidAtHeight = c.nextHeight
		if err := c.insertClaimIntoTrie(name, claim, false); err != nil {
			return err
		}
		c.claimQueue.set(e.Height, removeAt(queue, idx))
	}
	c.claimQueueName.set(name, nil)
	return nil
}

func (c *Cache) activatePendingSupports(name string, undo *BlockUndo) error {
	row, err := c.supportQueueName.get(name)
	if err != nil || len(row) == 0 {
		return err
	}
	for _, e := range row {
		queue, err := c.supportQueue.get(e.Height)
		if err != nil {
			return err
		}
		idx := -1
		for i, q := range queue {
			if q.Name == name && q.Support.OutPoint == e.OutPoint &&
				q.Support.ValidAtHeight == e.Height {

				idx = i
				break
			}
		}
		if idx < 0 {
			log.Warnf("Support %v of %q is not in queue row %d",
				e.OutPoint, name, e.Height)
			continue
		}

		support := queue[idx].Support
		undo.InsertSupportUndo = append(undo.InsertSupportUndo, NameOutPointHeight{
			Name:     name,
			OutPoint: support.OutPoint,
			Height:   support.ValidAtHeight,
		})
		support.ValidAtHeight = c.nextHeight
		if err := c.insertSupportIntoMap(name, support, false); err != nil {
			return err
		}
		c.supportQueue.set(e.Height, removeAt(queue, idx))
	}
	c.supportQueueName.set(name, nil)
	return nil
}

// DecrementBlock reverts the block below NextHeight using its undo data.
// FinalizeDecrement must be called once the claim operations of the block
// have been undone as well.
func (c *Cache) DecrementBlock(undo *BlockUndo) error {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	c.overrideRemoveNormalization = c.shouldNormalize()
	defer func() { c.overrideRemoveNormalization = false }()

	c.nextHeight--
	expiration := c.expirationTime()

	for i := len(undo.ExpireSupportUndo) - 1; i >= 0; i-- {
		e := undo.ExpireSupportUndo[i]
		if err := c.insertSupportIntoMap(e.Name, e.Support, false); err != nil {
			return err
		}
		if c.nextHeight == e.Support.Height+expiration {
			err := c.supportExpiration.add(c.nextHeight,
				NameOutPoint{Name: e.Name, OutPoint: e.Support.OutPoint})
			if err != nil {
				return err
			}
		}
		c.setSupportIndex(e.Name, e.Support)
	}

	for i := len(undo.InsertSupportUndo) - 1; i >= 0; i-- {
		e := undo.InsertSupportUndo[i]
		support, ok, err := c.removeSupportFromMap(e.Name, e.OutPoint, false)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: activated support %v of %q is gone",
				ErrInconsistentTrie, e.OutPoint, e.Name)
		}
		if e.Height < 0 {
			continue
		}
		support.ValidAtHeight = e.Height
		err = c.supportQueue.add(e.Height, NameSupport{Name: e.Name, Support: support})
		if err != nil {
			return err
		}
		err = c.supportQueueName.add(e.Name, outPointHeight{OutPoint: e.OutPoint, Height: e.Height})
		if err != nil {
			return err
		}
	}

	for i := len(undo.ExpireUndo) - 1; i >= 0; i-- {
		e := undo.ExpireUndo[i]
		if err := c.insertClaimIntoTrie(e.Name, e.Claim, false); err != nil {
			return err
		}
		if c.nextHeight == e.Claim.Height+expiration {
			err := c.expiration.add(c.nextHeight,
				NameOutPoint{Name: e.Name, OutPoint: e.Claim.OutPoint})
			if err != nil {
				return err
			}
		}
		c.setClaimIndex(e.Name, e.Claim)
	}

	for i := len(undo.InsertUndo) - 1; i >= 0; i-- {
		e := undo.InsertUndo[i]
		claim, ok, err := c.removeClaimFromTrie(e.Name, e.OutPoint, false)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: activated claim %v of %q is gone",
				ErrInconsistentTrie, e.OutPoint, e.Name)
		}
		if e.Height < 0 {
			continue
		}
		claim.ValidAtHeight = e.Height
		err = c.claimQueue.add(e.Height, NameClaim{Name: e.Name, Claim: claim})
		if err != nil {
			return err
		}
		err = c.claimQueueName.add(e.Name, outPointHeight{OutPoint: e.OutPoint, Height: e.Height})
		if err != nil {
			return err
		}
	}

	c.base.metrics.blocksDisconnected.Inc()
	return nil
}

// FinalizeDecrement restores the takeover heights replaced by the reverted
// block and undoes the fork transitions it triggered.
func (c *Cache) FinalizeDecrement(undo *BlockUndo) error {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	for i := len(undo.TakeoverHeightUndo) - 1; i >= 0; i-- {
		e := undo.TakeoverHeightUndo[i]
		cur := c.cacheData(e.Name, false)
		if !cur.Valid() || e.Height == 0 {
			continue
		}
		n := cur.Data()
		n.TakeoverHeight = e.Height
		if best, ok := n.BestClaim(); ok {
			c.takeoverCache[e.Name] = takeover{id: best.ClaimID, height: e.Height}
		}
	}

	if c.forks.expiration.triggered(c.nextHeight) {
		log.Infof("Restoring original claim expiration at height %d", c.nextHeight)
		ext := c.params.expirationExtension()
		if err := c.shiftExpirations(-ext, c.nextHeight+ext); err != nil {
			return err
		}
	}
	if c.forks.hash.triggered(c.nextHeight) {
		c.invalidateHashes()
	}
	// Support changes replayed by the revert must not count against the
	// next block.
	c.takeoverWorkaround = make(map[string]bool)
	return nil
}
