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
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

type takeover struct {
	id     ClaimID
	height int32
}

// Cache is a transactional overlay on a ClaimTrie. Blocks are applied to a
// cache and committed with Flush; dropping the cache discards them.
//
// A Cache is not safe for concurrent use. Several caches may read the same
// ClaimTrie while another one flushes.
type Cache struct {
	base   *ClaimTrie
	params *Params
	forks  forks

	requireTakeoverHeights bool
	nextHeight             int32

	// trie holds every node touched by this cache plus the siblings
	// needed to hash them.
	trie          *PrefixTrie[Node]
	alreadyCached map[string]struct{}
	nodesToDelete map[string]struct{}
	namesToCheck  map[string]struct{}

	// takeoverCache holds the takeovers decided by this cache.
	takeoverCache     map[string]takeover
	removalWorkaround map[string]struct{}

	// takeoverWorkaround holds the committed names whose supports changed
	// in this block. A true value means the node was also recreated and
	// takes over again.
	takeoverWorkaround map[string]bool

	supports          *rowCache[string, SupportValue]
	claimQueue        *rowCache[int32, NameClaim]
	claimQueueName    *rowCache[string, outPointHeight]
	expiration        *rowCache[int32, NameOutPoint]
	supportQueue      *rowCache[int32, NameSupport]
	supportQueueName  *rowCache[string, outPointHeight]
	supportExpiration *rowCache[int32, NameOutPoint]

	// Index changes, None marks a deletion.
	claimIndex   map[ClaimID]fn.Option[NameClaim]
	supportIndex map[wire.OutPoint]fn.Option[NameSupport]

	overrideInsertNormalization bool
	overrideRemoveNormalization bool
}

func newCache(base *ClaimTrie) *Cache {
	store := base.store
	c := &Cache{
		base:                   base,
		params:                 base.cfg.Params,
		forks:                  newForks(base.cfg.Params),
		requireTakeoverHeights: base.cfg.RequireTakeoverHeights,
		nextHeight:             base.nextHeight,

		supports: newRowCache(store, supportBucket, nameKey,
			encodeSupports, decodeSupports),
		claimQueue: newRowCache(store, claimQueueBucket, heightKey,
			encodeNameClaims, decodeNameClaims),
		claimQueueName: newRowCache(store, claimQueueNameBucket, nameKey,
			encodeOutPointHeights, decodeOutPointHeights),
		expiration: newRowCache(store, expirationBucket, heightKey,
			encodeNameOutPoints, decodeNameOutPoints),
		supportQueue: newRowCache(store, supportQueueBucket, heightKey,
			encodeNameSupports, decodeNameSupports),
		supportQueueName: newRowCache(store, supportQueueNameBucket, nameKey,
			encodeOutPointHeights, decodeOutPointHeights),
		supportExpiration: newRowCache(store, supportExpirationBucket, heightKey,
			encodeNameOutPoints, decodeNameOutPoints),
	}
	c.clear()
	return c
}

func (c *Cache) clear() {
	c.trie = NewPrefixTrie[Node]()
	c.alreadyCached = make(map[string]struct{})
	c.nodesToDelete = make(map[string]struct{})
	c.namesToCheck = make(map[string]struct{})
	c.takeoverCache = make(map[string]takeover)
	c.removalWorkaround = make(map[string]struct{})
	c.takeoverWorkaround = make(map[string]bool)
	c.claimIndex = make(map[ClaimID]fn.Option[NameClaim])
	c.supportIndex = make(map[wire.OutPoint]fn.Option[NameSupport])

	c.supports.clear()
	c.claimQueue.clear()
	c.claimQueueName.clear()
	c.expiration.clear()
	c.supportQueue.clear()
	c.supportQueueName.clear()
	c.supportExpiration.clear()
}

// NextHeight is the height of the block the cache is working on.
func (c *Cache) NextHeight() int32 {
	return c.nextHeight
}

func (c *Cache) expirationTime() int32 {
	return c.forks.expiration.expirationTime(c.nextHeight)
}

// Empty reports whether neither the committed trie nor the cache hold any
// node.
func (c *Cache) Empty() bool {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()
	return c.base.trie.Empty() && c.trie.Empty()
}

// cacheData copies name and the nodes needed to rehash its path from the
// committed trie, creating an empty node at name when create is set.
func (c *Cache) cacheData(name string, create bool) Cursor[Node] {
	for _, node := range c.base.trie.Nodes(name) {
		for _, child := range node.Children() {
			if _, ok := c.alreadyCached[child.Key()]; !ok {
				c.trie.Insert(child.Key(), child.Data().clone())
			}
		}
		if _, ok := c.alreadyCached[node.Key()]; !ok {
			c.alreadyCached[node.Key()] = struct{}{}
			c.trie.Insert(node.Key(), node.Data().clone())
		}
	}

	cur := c.trie.Find(name)
	if !cur.Valid() && create {
		cur = c.trie.Insert(name, Node{})
		c.confirmTakeoverWorkaround(name)
	}
	if cur.Valid() && cur.Data().TakeoverHeight <= 0 {
		_, cur.Data().TakeoverHeight, _ = c.lastTakeover(name)
	}
	return cur
}

// lastTakeover returns the controlling claim id and takeover height of
// name as of the previous block. ok is false when the name had no winner,
// the height is still reported when the node exists.
func (c *Cache) lastTakeover(name string) (ClaimID, int32, bool) {
	if t, ok := c.takeoverCache[name]; ok {
		return t.id, t.height, true
	}
	b := c.base.trie.Find(name)
	if !b.Valid() {
		return ClaimID{}, 0, false
	}
	n := b.Data()
	if best, ok := n.BestClaim(); ok {
		return best.ClaimID, n.TakeoverHeight, true
	}
	return ClaimID{}, n.TakeoverHeight, false
}

func (c *Cache) markAsDirty(name string, checkTakeover bool) {
	for _, cur := range c.trie.Nodes(name) {
		cur.Data().Hash = chainhash.Hash{}
	}
	if checkTakeover {
		c.namesToCheck[name] = struct{}{}
	}
}

// find returns the node at name, preferring the cached copy.
func (c *Cache) find(name string) Cursor[Node] {
	if cur := c.trie.Find(name); cur.Valid() {
		return cur
	}
	return c.base.trie.Find(name)
}

func (c *Cache) shouldNormalize() bool {
	return c.forks.normalization.active(c.nextHeight)
}

func (c *Cache) normalize(name string, force bool) string {
	if force || c.shouldNormalize() {
		return normalizeName(name)
	}
	return name
}

// adjustName returns the key under which an entry becoming valid at
// validAt is queued.
func (c *Cache) adjustName(name string, validAt int32) string {
	return c.forks.normalization.adjust(name, validAt)
}

func (c *Cache) insertClaimIntoTrie(name string, claim ClaimValue, checkTakeover bool) error {
	name = c.normalize(name, c.overrideInsertNormalization)
	cur := c.cacheData(name, true)
	supports, err := c.supports.get(name)
	if err != nil {
		return err
	}
	n := cur.Data()
	n.insertClaim(claim)
	n.reorderClaims(supports)
	c.markAsDirty(name, checkTakeover)
	return nil
}

func (c *Cache) removeClaimFromTrie(name string, op wire.OutPoint, checkTakeover bool) (ClaimValue, bool, error) {
	name = c.normalize(name, c.overrideRemoveNormalization)
	cur := c.cacheData(name, false)
	if !cur.Valid() {
		log.Debugf("Removing claim %v from %q: no such node", op, name)
		return ClaimValue{}, false, nil
	}
	n := cur.Data()
	claim, ok := n.removeClaim(op)
	if !ok {
		return ClaimValue{}, false, nil
	}

	if len(n.Claims) > 0 {
		supports, err := c.supports.get(name)
		if err != nil {
			return ClaimValue{}, false, err
		}
		n.reorderClaims(supports)
	} else {
		// A child may be pulled up into this spot; its children are
		// then needed for hashing.
		children := cur.Children()
		for _, child := range children {
			c.cacheData(child.Key(), false)
		}
		c.trie.Erase(name)
		c.nodesToDelete[name] = struct{}{}

		if len(children) > 0 && c.params.inRemovalWorkaround(c.nextHeight) {
			c.removalWorkaround[name] = struct{}{}
		}
	}

	c.markAsDirty(name, checkTakeover)
	return claim, true, nil
}

func (c *Cache) insertSupportIntoMap(name string, support SupportValue, checkTakeover bool) error {
	name = c.normalize(name, c.overrideInsertNormalization)
	if err := c.supports.add(name, support); err != nil {
		return err
	}
	c.addTakeoverWorkaroundPotential(name)
	return c.supportsChanged(name, checkTakeover)
}

func (c *Cache) removeSupportFromMap(name string, op wire.OutPoint, checkTakeover bool) (SupportValue, bool, error) {
	name = c.normalize(name, c.overrideRemoveNormalization)
	support, ok, err := c.supports.removeFirst(name, func(s *SupportValue) bool {
		return s.OutPoint == op
	})
	if err != nil || !ok {
		if err == nil {
			log.Debugf("Removing support %v from %q: not found", op, name)
		}
		return SupportValue{}, false, err
	}
	c.addTakeoverWorkaroundPotential(name)
	return support, true, c.supportsChanged(name, checkTakeover)
}

// addTakeoverWorkaroundPotential records a support change on a committed
// node that this block has not touched yet.
func (c *Cache) addTakeoverWorkaroundPotential(name string) {
	if !c.params.inTakeoverWorkaround(c.nextHeight) ||
		c.trie.Contains(name) || !c.base.trie.Contains(name) {

		return
	}
	if _, ok := c.takeoverWorkaround[name]; !ok {
		c.takeoverWorkaround[name] = false
	}
}

func (c *Cache) confirmTakeoverWorkaround(name string) {
	if !c.params.inTakeoverWorkaround(c.nextHeight) {
		return
	}
	if _, ok := c.takeoverWorkaround[name]; ok {
		c.takeoverWorkaround[name] = true
	}
}

func (c *Cache) supportsChanged(name string, checkTakeover bool) error {
	cur := c.cacheData(name, false)
	if !cur.Valid() {
		return nil
	}
	supports, err := c.supports.get(name)
	if err != nil {
		return err
	}
	c.markAsDirty(name, checkTakeover)
	cur.Data().reorderClaims(supports)
	return nil
}

// delayForName returns the activation delay of a new claim or support on
// name. The winner's own updates and supports are never delayed.
func (c *Cache) delayForName(name string, id fn.Option[ClaimID]) int32 {
	if winner, _, ok := c.lastTakeover(name); ok &&
		id.IsSome() && id.UnsafeFromSome() == winner {

		return 0
	}
	if !c.requireTakeoverHeights {
		return 0
	}
	if _, ok := c.removalWorkaround[name]; ok {
		delete(c.removalWorkaround, name)
		return 0
	}

	var blocks int32
	if cur := c.find(name); cur.Valid() && !cur.Data().Empty() {
		blocks = c.nextHeight - cur.Data().TakeoverHeight
	}
	return min(blocks/c.params.ProportionalDelayFactor, c.params.MaxTakeoverDelay)
}

// DelayForName returns the delay a claim with the given id would get if it
// were added to name in the current block.
func (c *Cache) DelayForName(name string, id ClaimID) int32 {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()
	return c.delayForName(c.normalize(name, false), fn.Some(id))
}

// InfoForName returns the controlling claim of name.
func (c *Cache) InfoForName(name string) (ClaimValue, bool) {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	cur := c.find(c.normalize(name, false))
	if !cur.Valid() {
		return ClaimValue{}, false
	}
	return cur.Data().BestClaim()
}

// ClaimEntry is one claim of a name as reported by ClaimsForName.
type ClaimEntry struct {
	ClaimValue

	// Bid is the rank of the claim, 0 being the controlling one.
	Bid int

	// Sequence is the rank of the claim by age.
	Sequence int

	Supports []SupportValue
}

// ClaimsForName lists everything filed under one name.
type ClaimsForName struct {
	Name               string
	LastTakeoverHeight int32
	Claims             []ClaimEntry

	// UnmatchedSupports reference claims that are not filed under Name.
	UnmatchedSupports []SupportValue
}

// ClaimsForName returns the active and pending claims and supports of name.
// Pending claims count with their supports only; they never count their
// own amount until they activate.
func (c *Cache) ClaimsForName(name string) (*ClaimsForName, error) {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()
	return c.claimsForName(c.normalize(name, false))
}

func (c *Cache) claimsForName(name string) (*ClaimsForName, error) {
	ret := &ClaimsForName{Name: name}

	var claims []ClaimValue
	if cur := c.find(name); cur.Valid() {
		claims = append(claims, cur.Data().Claims...)
		ret.LastTakeoverHeight = cur.Data().TakeoverHeight
	}
	pending, err := c.pendingClaims(name)
	if err != nil {
		return nil, err
	}
	claims = append(claims, pending...)

	supports, err := c.supports.get(name)
	if err != nil {
		return nil, err
	}
	supports = append([]SupportValue(nil), supports...)
	pendingSupports, err := c.pendingSupports(name)
	if err != nil {
		return nil, err
	}
	supports = append(supports, pendingSupports...)

	matched := make(map[wire.OutPoint]struct{})
	for i := range claims {
		claim := &claims[i]
		claim.EffectiveAmount = 0
		if claim.ValidAtHeight < c.nextHeight {
			claim.EffectiveAmount = claim.Amount
		}
		entry := ClaimEntry{}
		for _, s := range supports {
			if s.SupportedClaimID != claim.ClaimID {
				continue
			}
			matched[s.OutPoint] = struct{}{}
			entry.Supports = append(entry.Supports, s)
			if s.ValidAtHeight < c.nextHeight {
				claim.EffectiveAmount += s.Amount
			}
		}
		entry.ClaimValue = *claim
		ret.Claims = append(ret.Claims, entry)
	}
	for _, s := range supports {
		if _, ok := matched[s.OutPoint]; !ok {
			ret.UnmatchedSupports = append(ret.UnmatchedSupports, s)
		}
	}

	sort.SliceStable(ret.Claims, func(i, j int) bool {
		return claimBetter(&ret.Claims[i].ClaimValue, &ret.Claims[j].ClaimValue)
	})
	for i := range ret.Claims {
		ret.Claims[i].Bid = i
	}

	bySeq := make([]*ClaimEntry, len(ret.Claims))
	for i := range ret.Claims {
		bySeq[i] = &ret.Claims[i]
	}
	sort.SliceStable(bySeq, func(i, j int) bool {
		a, b := bySeq[i], bySeq[j]
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		return a.OutPoint.Index < b.OutPoint.Index
	})
	for i, e := range bySeq {
		e.Sequence = i
	}
	return ret, nil
}

func (c *Cache) pendingClaims(name string) ([]ClaimValue, error) {
	row, err := c.claimQueueName.get(name)
	if err != nil {
		return nil, err
	}
	var ret []ClaimValue
	for _, e := range row {
		queue, err := c.claimQueue.get(e.Height)
		if err != nil {
			return nil, err
		}
		for _, q := range queue {
			if q.Name == name && q.Claim.OutPoint == e.OutPoint {
				ret = append(ret, q.Claim)
				break
			}
		}
	}
	return ret, nil
}

func (c *Cache) pendingSupports(name string) ([]SupportValue, error) {
	row, err := c.supportQueueName.get(name)
	if err != nil {
		return nil, err
	}
	var ret []SupportValue
	for _, e := range row {
		queue, err := c.supportQueue.get(e.Height)
		if err != nil {
			return nil, err
		}
		for _, q := range queue {
			if q.Name == name && q.Support.OutPoint == e.OutPoint {
				ret = append(ret, q.Support)
				break
			}
		}
	}
	return ret, nil
}

// EffectiveAmountForClaim returns the amount of the claim plus its active
// supports, or zero while the claim is pending.
func (c *Cache) EffectiveAmountForClaim(name string, id ClaimID) (int64, error) {
	claims, err := c.ClaimsForName(name)
	if err != nil {
		return 0, err
	}
	for _, e := range claims.Claims {
		if e.ClaimID == id {
			return e.EffectiveAmount, nil
		}
	}
	return 0, ErrClaimNotFound
}

// ClaimByID looks a claim up by its id. Pending claims are found as well.
func (c *Cache) ClaimByID(id ClaimID) (NameClaim, error) {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()

	e, err := c.claimByID(id)
	if err != nil {
		return NameClaim{}, err
	}
	return e.UnwrapOrErr(ErrClaimNotFound)
}

func (c *Cache) claimByID(id ClaimID) (fn.Option[NameClaim], error) {
	if e, ok := c.claimIndex[id]; ok {
		return e, nil
	}
	b, err := c.base.store.Get(claimIndexBucket, claimIDKey(id))
	if err != nil || b == nil {
		return fn.None[NameClaim](), err
	}
	entries, err := decodeNameClaims(b)
	if err != nil {
		return fn.None[NameClaim](), fmt.Errorf("claim index %v: %w", id, err)
	}
	if len(entries) != 1 || entries[0].Claim.ClaimID != id {
		return fn.None[NameClaim](), fmt.Errorf("%w: claim index %v",
			ErrInvalidRowEncoding, id)
	}
	return fn.Some(entries[0]), nil
}

func (c *Cache) supportByOutPoint(op wire.OutPoint) (fn.Option[NameSupport], error) {
	if e, ok := c.supportIndex[op]; ok {
		return e, nil
	}
	b, err := c.base.store.Get(supportIndexBucket, outPointKey(op))
	if err != nil || b == nil {
		return fn.None[NameSupport](), err
	}
	entries, err := decodeNameSupports(b)
	if err != nil {
		return fn.None[NameSupport](), fmt.Errorf("support index %v: %w", op, err)
	}
	if len(entries) != 1 || entries[0].Support.OutPoint != op {
		return fn.None[NameSupport](), fmt.Errorf("%w: support index %v",
			ErrInvalidRowEncoding, op)
	}
	return fn.Some(entries[0]), nil
}

// MerkleHash returns the root hash of the trie as modified by the cache.
func (c *Cache) MerkleHash() chainhash.Hash {
	c.base.mu.RLock()
	defer c.base.mu.RUnlock()
	return c.merkleHash()
}

func (c *Cache) merkleHash() chainhash.Hash {
	allClaims := c.forks.hash.active(c.nextHeight)
	if c.trie.Empty() && len(c.nodesToDelete) == 0 {
		return merkleHash(c.base.trie, allClaims)
	}
	return merkleHash(c.trie, allClaims)
}

// Flush commits the cache to the store and the committed trie, then
// resets the cache so it continues on top of the new state.
func (c *Cache) Flush() error {
	c.base.flushMu.Lock()
	defer c.base.flushMu.Unlock()
	c.base.mu.Lock()
	defer c.base.mu.Unlock()

	root := c.merkleHash()
	base := c.base.trie

	deleteNames := make([]string, 0, len(c.nodesToDelete))
	for name := range c.nodesToDelete {
		if !c.trie.Contains(name) {
			deleteNames = append(deleteNames, name)
		}
	}
	sort.Strings(deleteNames)

	var deleted []string
	for _, name := range deleteNames {
		before := base.Nodes(name)
		base.Erase(name)
		for _, cur := range before {
			if !base.Contains(cur.Key()) {
				deleted = append(deleted, cur.Key())
			}
		}
	}

	var written []string
	c.trie.Walk(func(cur Cursor[Node]) bool {
		old := base.Find(cur.Key())
		if !old.Valid() || !old.Data().equal(cur.Data()) {
			base.Insert(cur.Key(), cur.Data().clone())
			written = append(written, cur.Key())
		}
		return true
	})

	err := c.base.store.Update(func(b Batch) error {
		for id, e := range c.claimIndex {
			if err := writeClaimIndex(b, id, e); err != nil {
				return err
			}
		}
		for op, e := range c.supportIndex {
			if err := writeSupportIndex(b, op, e); err != nil {
				return err
			}
		}

		for _, name := range deleted {
			if err := b.Delete(nodeBucket, nameKey(name)); err != nil {
				return err
			}
		}
		for _, name := range written {
			v, err := encodeNode(base.Find(name).Data())
			if err != nil {
				return err
			}
			if err := b.Put(nodeBucket, nameKey(name), v); err != nil {
				return err
			}
		}

		for _, r := range []interface{ flush(Batch) error }{
			c.supports, c.claimQueue, c.claimQueueName, c.expiration,
			c.supportQueue, c.supportQueueName, c.supportExpiration,
		} {
			if err := r.flush(b); err != nil {
				return err
			}
		}

		meta, err := encodeMeta(c.nextHeight, root)
		if err != nil {
			return err
		}
		return b.Put(metaBucket, metaStateKey, meta)
	})
	if err != nil {
		// The committed trie no longer matches the store.
		log.Errorf("Flush at height %d failed: %v", c.nextHeight, err)
		if rerr := c.base.readFromDisk(); rerr != nil {
			return fmt.Errorf("flush: %w (reload: %v)", err, rerr)
		}
		return fmt.Errorf("flush: %w", err)
	}

	if !c.trie.Empty() {
		log.Debugf("Flushed %d cached nodes into %d nodes at height %d, "+
			"%d rows deleted", c.trie.Height(), base.Height(),
			c.nextHeight, len(deleted))
	}
	c.base.nextHeight = c.nextHeight
	if h := c.base.merkleHash(); h != root {
		log.Errorf("Committed root %v doesn't match flushed root %v", h, root)
	}
	c.base.metrics.flushes.Inc()
	c.base.metrics.nodes.Set(float64(base.Height()))
	c.base.metrics.nextHeight.Set(float64(c.nextHeight))
	c.clear()
	return nil
}

func writeClaimIndex(b Batch, id ClaimID, e fn.Option[NameClaim]) error {
	if e.IsNone() {
		return b.Delete(claimIndexBucket, claimIDKey(id))
	}
	v, err := encodeNameClaims([]NameClaim{e.UnsafeFromSome()})
	if err != nil {
		return err
	}
	return b.Put(claimIndexBucket, claimIDKey(id), v)
}

func writeSupportIndex(b Batch, op wire.OutPoint, e fn.Option[NameSupport]) error {
	if e.IsNone() {
		return b.Delete(supportIndexBucket, outPointKey(op))
	}
	v, err := encodeNameSupports([]NameSupport{e.UnsafeFromSome()})
	if err != nil {
		return err
	}
	return b.Put(supportIndexBucket, outPointKey(op), v)
}
