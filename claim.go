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
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// ClaimIDSize is the length of a claim id in bytes.
const ClaimIDSize = 20

// ClaimID identifies a claim across updates. It is derived from the
// outpoint that created the claim.
type ClaimID [ClaimIDSize]byte

// NewClaimID computes the id of a claim created by the given outpoint.
func NewClaimID(op wire.OutPoint) ClaimID {
	var buf [36]byte
	copy(buf[:32], op.Hash[:])
	binary.BigEndian.PutUint32(buf[32:], op.Index)

	var id ClaimID
	copy(id[:], btcutil.Hash160(buf[:]))
	return id
}

// ClaimIDFromString parses the reversed hex form produced by String.
func ClaimIDFromString(s string) (ClaimID, error) {
	var id ClaimID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != ClaimIDSize {
		return id, fmt.Errorf("claim id has %d bytes, want %d", len(b), ClaimIDSize)
	}
	for i := range b {
		id[i] = b[ClaimIDSize-1-i]
	}
	return id, nil
}

// String returns the id in reversed byte order, the form used by block
// explorers and RPC.
func (id ClaimID) String() string {
	var rev [ClaimIDSize]byte
	for i := range id {
		rev[i] = id[ClaimIDSize-1-i]
	}
	return hex.EncodeToString(rev[:])
}

// IsZero reports whether id is the zero claim id.
func (id ClaimID) IsZero() bool {
	return id == ClaimID{}
}

// ClaimValue is a claim living in the trie or in the activation queue.
type ClaimValue struct {
	OutPoint      wire.OutPoint
	ClaimID       ClaimID
	Amount        int64
	Height        int32
	ValidAtHeight int32

	// EffectiveAmount is the amount plus the active supports of the
	// claim. It is derived and never persisted.
	EffectiveAmount int64
}

func (c *ClaimValue) String() string {
	return fmt.Sprintf("claim(%v, id=%v, amount=%d, height=%d, valid=%d, effective=%d)",
		c.OutPoint, c.ClaimID, c.Amount, c.Height, c.ValidAtHeight, c.EffectiveAmount)
}

// SupportValue adds its amount to the claim it supports once active.
type SupportValue struct {
	OutPoint         wire.OutPoint
	SupportedClaimID ClaimID
	Amount           int64
	Height           int32
	ValidAtHeight    int32
}

func (s *SupportValue) String() string {
	return fmt.Sprintf("support(%v, claim=%v, amount=%d, height=%d, valid=%d)",
		s.OutPoint, s.SupportedClaimID, s.Amount, s.Height, s.ValidAtHeight)
}

// outPointLess orders outpoints by raw txid bytes, then by index.
func outPointLess(a, b wire.OutPoint) bool {
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c < 0
	}
	return a.Index < b.Index
}

// claimBetter reports whether a ranks before b: larger effective amount
// first, then the older claim, then the smaller outpoint.
func claimBetter(a, b *ClaimValue) bool {
	if a.EffectiveAmount != b.EffectiveAmount {
		return a.EffectiveAmount > b.EffectiveAmount
	}
	if a.Height != b.Height {
		return a.Height < b.Height
	}
	return outPointLess(a.OutPoint, b.OutPoint)
}
