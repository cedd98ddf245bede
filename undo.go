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
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

// NameClaim is a claim together with the name it was filed under.
type NameClaim struct {
	Name  string
	Claim ClaimValue
}

// NameSupport is a support together with the name it was filed under.
type NameSupport struct {
	Name    string
	Support SupportValue
}

// NameOutPoint locates a claim or support by name and outpoint.
type NameOutPoint struct {
	Name     string
	OutPoint wire.OutPoint
}

// NameOutPointHeight records where an activated entry came from. A
// negative height means the entry was not queued before.
type NameOutPointHeight struct {
	Name     string
	OutPoint wire.OutPoint
	Height   int32
}

// NameHeight records a previous takeover height of a name.
type NameHeight struct {
	Name   string
	Height int32
}

type outPointHeight struct {
	OutPoint wire.OutPoint
	Height   int32
}

// BlockUndo holds everything needed to reverse IncrementBlock.
type BlockUndo struct {
	InsertUndo         []NameOutPointHeight
	ExpireUndo         []NameClaim
	InsertSupportUndo  []NameOutPointHeight
	ExpireSupportUndo  []NameSupport
	TakeoverHeightUndo []NameHeight

	// SpentUndo records the name and valid height of every claim and
	// support spent by the block, in spend order.
	SpentUndo []NameOutPointHeight
}

const (
	typeInsertUndo         tlv.Type = 0
	typeExpireUndo         tlv.Type = 1
	typeInsertSupportUndo  tlv.Type = 2
	typeExpireSupportUndo  tlv.Type = 3
	typeTakeoverHeightUndo tlv.Type = 4
	typeSpentUndo          tlv.Type = 5
)

func (u *BlockUndo) Empty() bool {
	return len(u.InsertUndo) == 0 && len(u.ExpireUndo) == 0 &&
		len(u.InsertSupportUndo) == 0 && len(u.ExpireSupportUndo) == 0 &&
		len(u.TakeoverHeightUndo) == 0 && len(u.SpentUndo) == 0
}

// Encode writes the undo data as a TLV stream.
func (u *BlockUndo) Encode(w io.Writer) error {
	insert, err := encodeNameOutPointHeights(u.InsertUndo)
	if err != nil {
		return err
	}
	expire, err := encodeNameClaims(u.ExpireUndo)
	if err != nil {
		return err
	}
	insertSupport, err := encodeNameOutPointHeights(u.InsertSupportUndo)
	if err != nil {
		return err
	}
	expireSupport, err := encodeNameSupports(u.ExpireSupportUndo)
	if err != nil {
		return err
	}
	takeover, err := encodeNameHeights(u.TakeoverHeightUndo)
	if err != nil {
		return err
	}
	spent, err := encodeNameOutPointHeights(u.SpentUndo)
	if err != nil {
		return err
	}

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeInsertUndo, &insert),
		tlv.MakePrimitiveRecord(typeExpireUndo, &expire),
		tlv.MakePrimitiveRecord(typeInsertSupportUndo, &insertSupport),
		tlv.MakePrimitiveRecord(typeExpireSupportUndo, &expireSupport),
		tlv.MakePrimitiveRecord(typeTakeoverHeightUndo, &takeover),
		tlv.MakePrimitiveRecord(typeSpentUndo, &spent),
	)
	if err != nil {
		return err
	}
	return stream.Encode(w)
}

// Decode reads undo data written by Encode.
func (u *BlockUndo) Decode(r io.Reader) error {
	var insert, expire, insertSupport, expireSupport, takeover, spent []byte
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeInsertUndo, &insert),
		tlv.MakePrimitiveRecord(typeExpireUndo, &expire),
		tlv.MakePrimitiveRecord(typeInsertSupportUndo, &insertSupport),
		tlv.MakePrimitiveRecord(typeExpireSupportUndo, &expireSupport),
		tlv.MakePrimitiveRecord(typeTakeoverHeightUndo, &takeover),
		tlv.MakePrimitiveRecord(typeSpentUndo, &spent),
	)
	if err != nil {
		return err
	}
	if err := stream.Decode(r); err != nil {
		return err
	}

	if u.InsertUndo, err = decodeNameOutPointHeights(insert); err != nil {
		return err
	}
	if u.ExpireUndo, err = decodeNameClaims(expire); err != nil {
		return err
	}
	if u.InsertSupportUndo, err = decodeNameOutPointHeights(insertSupport); err != nil {
		return err
	}
	if u.ExpireSupportUndo, err = decodeNameSupports(expireSupport); err != nil {
		return err
	}
	if u.TakeoverHeightUndo, err = decodeNameHeights(takeover); err != nil {
		return err
	}
	u.SpentUndo, err = decodeNameOutPointHeights(spent)
	return err
}

// Bytes is a convenience wrapper around Encode.
func (u *BlockUndo) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if err := u.Encode(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
