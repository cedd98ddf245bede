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
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genOutPoint() *rapid.Generator[wire.OutPoint] {
	return rapid.Custom(func(t *rapid.T) wire.OutPoint {
		var op wire.OutPoint
		copy(op.Hash[:], rapid.SliceOfN(rapid.Byte(), chainhash.HashSize,
			chainhash.HashSize).Draw(t, "txid"))
		op.Index = rapid.Uint32().Draw(t, "index")
		return op
	})
}

func genClaim() *rapid.Generator[ClaimValue] {
	return rapid.Custom(func(t *rapid.T) ClaimValue {
		var id ClaimID
		copy(id[:], rapid.SliceOfN(rapid.Byte(), ClaimIDSize, ClaimIDSize).Draw(t, "id"))
		c := ClaimValue{
			OutPoint:      genOutPoint().Draw(t, "outpoint"),
			ClaimID:       id,
			Amount:        rapid.Int64Min(0).Draw(t, "amount"),
			Height:        rapid.Int32().Draw(t, "height"),
			ValidAtHeight: rapid.Int32().Draw(t, "validAt"),
		}
		c.EffectiveAmount = c.Amount
		return c
	})
}

func TestNodeEncoding(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := Node{
			Claims:         rapid.SliceOfN(genClaim(), 1, 8).Draw(t, "claims"),
			TakeoverHeight: rapid.Int32().Draw(t, "takeover"),
		}
		copy(n.Hash[:], rapid.SliceOfN(rapid.Byte(), chainhash.HashSize,
			chainhash.HashSize).Draw(t, "hash"))

		b, err := encodeNode(&n)
		require.NoError(t, err)
		decoded, err := decodeNode(b)
		require.NoError(t, err)
		require.Equal(t, n, decoded)
	})
}

func TestBlockUndoEncoding(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.StringN(0, 8, -1)
		pointer := rapid.Custom(func(t *rapid.T) NameOutPointHeight {
			return NameOutPointHeight{
				Name:     names.Draw(t, "name"),
				OutPoint: genOutPoint().Draw(t, "outpoint"),
				Height:   rapid.Int32().Draw(t, "height"),
			}
		})
		claim := rapid.Custom(func(t *rapid.T) NameClaim {
			return NameClaim{Name: names.Draw(t, "name"), Claim: genClaim().Draw(t, "claim")}
		})
		takeover := rapid.Custom(func(t *rapid.T) NameHeight {
			return NameHeight{Name: names.Draw(t, "name"), Height: rapid.Int32().Draw(t, "height")}
		})

		undo := BlockUndo{
			InsertUndo:         rapid.SliceOfN(pointer, 1, 4).Draw(t, "insert"),
			ExpireUndo:         rapid.SliceOfN(claim, 1, 4).Draw(t, "expire"),
			InsertSupportUndo:  rapid.SliceOfN(pointer, 1, 4).Draw(t, "insertSupport"),
			TakeoverHeightUndo: rapid.SliceOfN(takeover, 1, 4).Draw(t, "takeover"),
			SpentUndo:          rapid.SliceOfN(pointer, 1, 4).Draw(t, "spent"),
		}
		var decoded BlockUndo
		b, err := undo.Bytes()
		require.NoError(t, err)
		require.NoError(t, decoded.Decode(bytes.NewReader(b)))

		require.Equal(t, undo.InsertUndo, decoded.InsertUndo)
		require.Equal(t, undo.ExpireUndo, decoded.ExpireUndo)
		require.Equal(t, undo.InsertSupportUndo, decoded.InsertSupportUndo)
		require.Empty(t, decoded.ExpireSupportUndo)
		require.Equal(t, undo.TakeoverHeightUndo, decoded.TakeoverHeightUndo)
		require.Equal(t, undo.SpentUndo, decoded.SpentUndo)
		require.False(t, decoded.Empty())
	})
}

func TestEmptyBlockUndo(t *testing.T) {
	var undo BlockUndo
	require.True(t, undo.Empty())

	b, err := undo.Bytes()
	require.NoError(t, err)
	var decoded BlockUndo
	require.NoError(t, decoded.Decode(bytes.NewReader(b)))
	require.True(t, decoded.Empty())
}

func TestInvalidRows(t *testing.T) {
	n := Node{
		Claims:         []ClaimValue{{Amount: 1, EffectiveAmount: 1}},
		TakeoverHeight: 7,
	}
	b, err := encodeNode(&n)
	require.NoError(t, err)

	_, err = decodeNode(b[:len(b)-3])
	require.ErrorIs(t, err, ErrInvalidRowEncoding)

	// A list claiming more elements than the row can hold.
	_, err = decodeSupports([]byte{0xfc})
	require.ErrorIs(t, err, ErrInvalidRowEncoding)

	_, err = keyHeight([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidRowEncoding)
	_, err = keyName(nil)
	require.ErrorIs(t, err, ErrInvalidRowEncoding)
}

func TestKeys(t *testing.T) {
	for _, h := range []int32{0, 1, 255, 1 << 20} {
		got, err := keyHeight(heightKey(h))
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
	require.Negative(t, bytes.Compare(heightKey(2), heightKey(256)))

	for _, name := range []string{"", "a", "\x00", "name"} {
		got, err := keyName(nameKey(name))
		require.NoError(t, err)
		require.Equal(t, name, got)
	}
}
