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

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Claims and supports wait in the queues until they become valid. Each
// pending entry is filed twice: in the row of its activation height and in
// the row of its name, which lets a takeover activate all pending entries
// of a name at once. Every entry also sits in the expiration row of the
// height it expires at.

func (c *Cache) addClaimToQueues(name string, claim ClaimValue) error {
	key := c.adjustName(name, claim.ValidAtHeight)
	err := c.claimQueue.add(claim.ValidAtHeight, NameClaim{Name: key, Claim: claim})
	if err != nil {
		return err
	}
	err = c.claimQueueName.add(key, outPointHeight{
		OutPoint: claim.OutPoint,
		Height:   claim.ValidAtHeight,
	})
	if err != nil {
		return err
	}
	return c.expiration.add(claim.Height+c.expirationTime(),
		NameOutPoint{Name: key, OutPoint: claim.OutPoint})
}

func (c *Cache) addSupportToQueues(name string, support SupportValue) error {
	key := c.adjustName(name, support.ValidAtHeight)
	err := c.supportQueue.add(support.ValidAtHeight, NameSupport{Name: key, Support: support})
	if err != nil {
		return err
	}
	err = c.supportQueueName.add(key, outPointHeight{
		OutPoint: support.OutPoint,
		Height:   support.ValidAtHeight,
	})
	if err != nil {
		return err
	}
	return c.supportExpiration.add(support.Height+c.expirationTime(),
		NameOutPoint{Name: key, OutPoint: support.OutPoint})
}

func (c *Cache) removeClaimFromQueue(name string, op wire.OutPoint) (ClaimValue, bool, error) {
	row, err := c.claimQueueName.get(name)
	if err != nil {
		return ClaimValue{}, false, err
	}
	for i, e := range row {
		if e.OutPoint != op {
			continue
		}
		queue, err := c.claimQueue.get(e.Height)
		if err != nil {
			return ClaimValue{}, false, err
		}
		for j, q := range queue {
			if q.Name == name && q.Claim.OutPoint == op {
				c.claimQueueName.set(name, removeAt(row, i))
				c.claimQueue.set(e.Height, removeAt(queue, j))
				return q.Claim, true, nil
			}
		}
		log.Warnf("Claim %v of %q is missing from queue row %d", op, name, e.Height)
		break
	}
	return ClaimValue{}, false, nil
}

func (c *Cache) removeSupportFromQueue(name string, op wire.OutPoint) (SupportValue, bool, error) {
	row, err := c.supportQueueName.get(name)
	if err != nil {
		return SupportValue{}, false, err
	}
	for i, e := range row {
		if e.OutPoint != op {
			continue
		}
		queue, err := c.supportQueue.get(e.Height)
		if err != nil {
			return SupportValue{}, false, err
		}
		for j, q := range queue {
			if q.Name == name && q.Support.OutPoint == op {
				c.supportQueueName.set(name, removeAt(row, i))
				c.supportQueue.set(e.Height, removeAt(queue, j))
				return q.Support, true, nil
			}
		}
		log.Warnf("Support %v of %q is missing from queue row %d", op, name, e.Height)
		break
	}
	return SupportValue{}, false, nil
}

// alternateName returns the other form a name may have been queued under
// around the normalization fork.
func alternateName(key, name string) string {
	if key != name {
		return name
	}
	return normalizeName(name)
}

func (c *Cache) setClaimIndex(name string, claim ClaimValue) {
	c.claimIndex[claim.ClaimID] = fn.Some(NameClaim{Name: name, Claim: claim})
}

// deleteClaimIndex drops the index entry of claim unless the id has since
// moved to another outpoint.
func (c *Cache) deleteClaimIndex(claim ClaimValue) error {
	cur, err := c.claimByID(claim.ClaimID)
	if err != nil {
		return err
	}
	if cur.IsSome() && cur.UnsafeFromSome().Claim.OutPoint == claim.OutPoint {
		c.claimIndex[claim.ClaimID] = fn.None[NameClaim]()
	}
	return nil
}

func (c *Cache) setSupportIndex(name string, support SupportValue) {
	c.supportIndex[support.OutPoint] = fn.Some(NameSupport{Name: name, Support: support})
}

func (c *Cache) deleteSupportIndex(op wire.OutPoint) {
	c.supportIndex[op] = fn.None[NameSupport]()
}

// AddClaim adds a claim created at height. Without validAt the claim is new
// in the block at NextHeight and is queued with the delay of its name; with
// validAt a spent claim is restored exactly as it was.
func (c *Cache) AddClaim(name string, op wire.OutPoint, id ClaimID,
	amount int64, height int32, validAt fn.Option[int32]) error {

	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	claim := ClaimValue{
		OutPoint:        op,
		ClaimID:         id,
		Amount:          amount,
		Height:          height,
		EffectiveAmount: amount,
	}

	if validAt.IsNone() {
		if height != c.nextHeight {
			return fmt.Errorf("%w: claim %v at %d, next height %d",
				ErrHeightMismatch, op, height, c.nextHeight)
		}
		delay := c.delayForName(c.normalize(name, false), fn.Some(id))
		claim.ValidAtHeight = height + delay
		log.Debugf("Adding claim %v to %q, delay %d", id, name, delay)
		if err := c.addClaimToQueues(name, claim); err != nil {
			return err
		}
		c.setClaimIndex(name, claim)
		return nil
	}

	claim.ValidAtHeight = validAt.UnsafeFromSome()
	if claim.ValidAtHeight < c.nextHeight {
		err := c.expiration.add(claim.Height+c.expirationTime(), NameOutPoint{
			Name:     c.adjustName(name, claim.ValidAtHeight),
			OutPoint: op,
		})
		if err != nil {
			return err
		}
		c.setClaimIndex(name, claim)
		return c.insertClaimIntoTrie(name, claim, false)
	}
	if err := c.addClaimToQueues(name, claim); err != nil {
		return err
	}
	c.setClaimIndex(name, claim)
	return nil
}

// AddSupport adds a support of the claim id. validAt follows AddClaim.
func (c *Cache) AddSupport(name string, op wire.OutPoint, amount int64,
	supportedID ClaimID, height int32, validAt fn.Option[int32]) error {

	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	support := SupportValue{
		OutPoint:         op,
		SupportedClaimID: supportedID,
		Amount:           amount,
		Height:           height,
	}

	if validAt.IsNone() {
		if height != c.nextHeight {
			return fmt.Errorf("%w: support %v at %d, next height %d",
				ErrHeightMismatch, op, height, c.nextHeight)
		}
		delay := c.delayForName(c.normalize(name, false), fn.Some(supportedID))
		support.ValidAtHeight = height + delay
		log.Debugf("Adding support %v of %v to %q, delay %d", op,
			supportedID, name, delay)
		if err := c.addSupportToQueues(name, support); err != nil {
			return err
		}
		c.setSupportIndex(name, support)
		return nil
	}

	support.ValidAtHeight = validAt.UnsafeFromSome()
	if support.ValidAtHeight < c.nextHeight {
		err := c.supportExpiration.add(support.Height+c.expirationTime(), NameOutPoint{
			Name:     c.adjustName(name, support.ValidAtHeight),
			OutPoint: op,
		})
		if err != nil {
			return err
		}
		c.setSupportIndex(name, support)
		return c.insertSupportIntoMap(name, support, false)
	}
	if err := c.addSupportToQueues(name, support); err != nil {
		return err
	}
	c.setSupportIndex(name, support)
	return nil
}

// removeClaim takes a claim out of the queues or the trie and returns the
// height it became or would become valid at.
func (c *Cache) removeClaim(name string, op wire.OutPoint, height int32,
	checkTakeover bool) (int32, error) {

	// Estimate where a pending claim was filed; the other form is tried
	// when the estimate crosses the normalization fork.
	estimate := height + c.delayForName(name, fn.None[ClaimID]())
	key := c.adjustName(name, estimate)
	claim, ok, err := c.removeClaimFromQueue(key, op)
	if err != nil {
		return 0, err
	}
	if !ok {
		claim, ok, err = c.removeClaimFromQueue(alternateName(key, name), op)
		if err != nil {
			return 0, err
		}
	}
	if !ok {
		claim, ok, err = c.removeClaimFromTrie(name, op, checkTakeover)
		if err != nil {
			return 0, err
		}
	}
	if !ok {
		return 0, fmt.Errorf("%w: %v in %q", ErrClaimNotFound, op, name)
	}

	_, _, err = c.expiration.removeFirst(claim.Height+c.expirationTime(),
		func(e *NameOutPoint) bool { return e.OutPoint == op })
	if err != nil {
		return 0, err
	}
	if err := c.deleteClaimIndex(claim); err != nil {
		return 0, err
	}
	return claim.ValidAtHeight, nil
}

func (c *Cache) removeSupport(name string, op wire.OutPoint, height int32,
	checkTakeover bool) (int32, error) {

	estimate := height + c.delayForName(name, fn.None[ClaimID]())
	key := c.adjustName(name, estimate)
	support, ok, err := c.removeSupportFromQueue(key, op)
	if err != nil {
		return 0, err
	}
	if !ok {
		support, ok, err = c.removeSupportFromQueue(alternateName(key, name), op)
		if err != nil {
			return 0, err
		}
	}
	if !ok {
		support, ok, err = c.removeSupportFromMap(name, op, checkTakeover)
		if err != nil {
			return 0, err
		}
	}
	if !ok {
		return 0, fmt.Errorf("%w: %v in %q", ErrSupportNotFound, op, name)
	}

	_, _, err = c.supportExpiration.removeFirst(support.Height+c.expirationTime(),
		func(e *NameOutPoint) bool { return e.OutPoint == op })
	if err != nil {
		return 0, err
	}
	c.deleteSupportIndex(op)
	return support.ValidAtHeight, nil
}

// RemoveClaim spends the claim id held by op. It returns the name the claim
// was filed under and its valid height, which AddClaim needs to undo the
// spend.
func (c *Cache) RemoveClaim(id ClaimID, op wire.OutPoint) (string, int32, error) {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	e, err := c.claimByID(id)
	if err != nil {
		return "", 0, err
	}
	entry, err := e.UnwrapOrErr(fmt.Errorf("%w: %v", ErrClaimNotFound, id))
	if err != nil {
		return "", 0, err
	}
	if entry.Claim.OutPoint != op {
		return "", 0, fmt.Errorf("%w: %v is held by %v, not %v",
			ErrClaimNotFound, id, entry.Claim.OutPoint, op)
	}

	log.Debugf("Spending claim %v of %q", id, entry.Name)
	validAt, err := c.removeClaim(entry.Name, op, entry.Claim.Height, true)
	if err != nil {
		return "", 0, err
	}
	return entry.Name, validAt, nil
}

// RemoveSupport spends the support held by op.
func (c *Cache) RemoveSupport(op wire.OutPoint) (string, int32, error) {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	e, err := c.supportByOutPoint(op)
	if err != nil {
		return "", 0, err
	}
	entry, err := e.UnwrapOrErr(fmt.Errorf("%w: %v", ErrSupportNotFound, op))
	if err != nil {
		return "", 0, err
	}

	log.Debugf("Spending support %v of %q", op, entry.Name)
	validAt, err := c.removeSupport(entry.Name, op, entry.Support.Height, true)
	if err != nil {
		return "", 0, err
	}
	return entry.Name, validAt, nil
}

// UndoAddClaim reverts AddClaim of a claim created at height.
func (c *Cache) UndoAddClaim(name string, op wire.OutPoint, height int32) error {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	_, err := c.removeClaim(name, op, height, false)
	return err
}

// UndoAddSupport reverts AddSupport of a support created at height.
func (c *Cache) UndoAddSupport(name string, op wire.OutPoint, height int32) error {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	_, err := c.removeSupport(name, op, height, false)
	return err
}
