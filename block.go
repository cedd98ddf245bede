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

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ClaimOpKind is the kind of a claim script.
type ClaimOpKind uint8

const (
	OpClaim ClaimOpKind = iota
	OpUpdate
	OpSupport
)

func (k ClaimOpKind) String() string {
	switch k {
	case OpClaim:
		return "claim"
	case OpUpdate:
		return "update"
	case OpSupport:
		return "support"
	default:
		return fmt.Sprintf("ClaimOpKind(%d)", uint8(k))
	}
}

// ClaimOp is a claim script found in a transaction output.
type ClaimOp struct {
	Kind ClaimOpKind
	Name string

	// ClaimID is the updated claim of an update and the supported claim
	// of a support. New claims derive theirs from OutPoint.
	ClaimID ClaimID

	Amount   int64
	OutPoint wire.OutPoint
}

// Spend is a transaction input spending a claim or a support.
type Spend struct {
	Kind ClaimOpKind

	// ClaimID is the spent claim, or the supported one for a support.
	ClaimID ClaimID

	OutPoint wire.OutPoint

	// Amount and Height describe the spent output. They are only needed
	// to disconnect the block.
	Amount int64
	Height int32
}

// Block holds the claim operations of one block.
type Block struct {
	Height  int32
	Spends  []Spend
	Outputs []ClaimOp

	// ClaimTrieHash is the root committed to by the block header.
	ClaimTrieHash fn.Option[chainhash.Hash]
}

// ConnectBlock applies b to the cache: spends first, then new outputs,
// then the end of block processing. An update is only accepted when the
// same block spent the claim it updates. On error the cache is left
// partially modified and must be dropped.
func ConnectBlock(c *Cache, b *Block) (*BlockUndo, error) {
	if b.Height != c.NextHeight() {
		return nil, fmt.Errorf("%w: block %d, next height %d",
			ErrHeightMismatch, b.Height, c.NextHeight())
	}
	if err := c.InitializeIncrement(); err != nil {
		return nil, err
	}

	var spent []NameOutPointHeight
	spentClaims := make(map[ClaimID]string)
	for _, s := range b.Spends {
		var (
			name    string
			validAt int32
			err     error
		)
		if s.Kind == OpSupport {
			name, validAt, err = c.RemoveSupport(s.OutPoint)
		} else {
			name, validAt, err = c.RemoveClaim(s.ClaimID, s.OutPoint)
			spentClaims[s.ClaimID] = name
		}
		if err != nil {
			return nil, fmt.Errorf("block %d: spend %v: %w", b.Height, s.OutPoint, err)
		}
		spent = append(spent, NameOutPointHeight{
			Name:     name,
			OutPoint: s.OutPoint,
			Height:   validAt,
		})
	}

	for _, op := range b.Outputs {
		var err error
		switch op.Kind {
		case OpClaim:
			err = c.AddClaim(op.Name, op.OutPoint, NewClaimID(op.OutPoint),
				op.Amount, b.Height, fn.None[int32]())

		case OpUpdate:
			name, ok := spentClaims[op.ClaimID]
			if !ok || c.normalize(name, false) != c.normalize(op.Name, false) {
				err = fmt.Errorf("%w: %v on %q", ErrUpdateWithoutSpend,
					op.ClaimID, op.Name)
				break
			}
			delete(spentClaims, op.ClaimID)
			err = c.AddClaim(op.Name, op.OutPoint, op.ClaimID, op.Amount,
				b.Height, fn.None[int32]())

		case OpSupport:
			err = c.AddSupport(op.Name, op.OutPoint, op.Amount, op.ClaimID,
				b.Height, fn.None[int32]())

		default:
			err = fmt.Errorf("unknown claim op %v", op.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("block %d: %v %v: %w", b.Height, op.Kind,
				op.OutPoint, err)
		}
	}

	undo, err := c.IncrementBlock()
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", b.Height, err)
	}
	undo.SpentUndo = spent

	if b.ClaimTrieHash.IsSome() {
		want := b.ClaimTrieHash.UnsafeFromSome()
		if got := c.MerkleHash(); got != want {
			return nil, fmt.Errorf("%w: block %d has %v, computed %v",
				ErrConsensusMismatch, b.Height, want, got)
		}
	}
	return undo, nil
}

// DisconnectBlock reverts b, the last block applied to the cache, with the
// undo data ConnectBlock returned for it.
func DisconnectBlock(c *Cache, b *Block, undo *BlockUndo) error {
	if b.Height != c.NextHeight()-1 {
		return fmt.Errorf("%w: block %d, next height %d",
			ErrHeightMismatch, b.Height, c.NextHeight())
	}
	if len(undo.SpentUndo) != len(b.Spends) {
		return fmt.Errorf("block %d: undo holds %d spends, block %d",
			b.Height, len(undo.SpentUndo), len(b.Spends))
	}

	if err := c.DecrementBlock(undo); err != nil {
		return fmt.Errorf("block %d: %w", b.Height, err)
	}

	for i := len(b.Outputs) - 1; i >= 0; i-- {
		op := b.Outputs[i]
		var err error
		if op.Kind == OpSupport {
			err = c.UndoAddSupport(op.Name, op.OutPoint, b.Height)
		} else {
			err = c.UndoAddClaim(op.Name, op.OutPoint, b.Height)
		}
		if err != nil {
			return fmt.Errorf("block %d: undo %v %v: %w", b.Height, op.Kind,
				op.OutPoint, err)
		}
	}

	for i := len(b.Spends) - 1; i >= 0; i-- {
		s, e := b.Spends[i], undo.SpentUndo[i]
		validAt := fn.Some(e.Height)
		var err error
		if s.Kind == OpSupport {
			err = c.AddSupport(e.Name, s.OutPoint, s.Amount, s.ClaimID,
				s.Height, validAt)
		} else {
			err = c.AddClaim(e.Name, s.OutPoint, s.ClaimID, s.Amount,
				s.Height, validAt)
		}
		if err != nil {
			return fmt.Errorf("block %d: unspend %v: %w", b.Height, s.OutPoint, err)
		}
	}

	return c.FinalizeDecrement(undo)
}
