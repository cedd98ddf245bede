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
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

// Rows are TLV streams. Lists are a varint count followed by one length
// prefixed stream per element.

const (
	typeName       tlv.Type = 0
	typeTxID       tlv.Type = 1
	typeIndex      tlv.Type = 2
	typeClaimID    tlv.Type = 3
	typeAmount     tlv.Type = 4
	typeHeight     tlv.Type = 5
	typeValidAt    tlv.Type = 6
	typeHash       tlv.Type = 7
	typeTakeover   tlv.Type = 8
	typeClaims     tlv.Type = 9
	typeNextHeight tlv.Type = 10
)

type recordProducer interface {
	records() []tlv.Record
}

func encodeRecords(w io.Writer, p recordProducer) error {
	stream, err := tlv.NewStream(p.records()...)
	if err != nil {
		return err
	}
	return stream.Encode(w)
}

func decodeRecords(b []byte, p recordProducer) error {
	stream, err := tlv.NewStream(p.records()...)
	if err != nil {
		return err
	}
	if err := stream.Decode(bytes.NewReader(b)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRowEncoding, err)
	}
	return nil
}

func encodeList[T any](items []T, produce func(*T) recordProducer) ([]byte, error) {
	var (
		b    bytes.Buffer
		elem bytes.Buffer
		buf  [8]byte
	)
	if err := tlv.WriteVarInt(&b, uint64(len(items)), &buf); err != nil {
		return nil, err
	}
	for i := range items {
		elem.Reset()
		if err := encodeRecords(&elem, produce(&items[i])); err != nil {
			return nil, err
		}
		if err := tlv.WriteVarInt(&b, uint64(elem.Len()), &buf); err != nil {
			return nil, err
		}
		b.Write(elem.Bytes())
	}
	return b.Bytes(), nil
}

func decodeList[T any](data []byte, decode func([]byte) (T, error)) ([]T, error) {
	var buf [8]byte
	r := bytes.NewReader(data)
	count, err := tlv.ReadVarInt(r, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRowEncoding, err)
	}
	if count > uint64(len(data)) {
		return nil, fmt.Errorf("%w: list of %d elements in %d bytes",
			ErrInvalidRowEncoding, count, len(data))
	}
	items := make([]T, 0, count)
	for i := uint64(0); i < count; i++ {
		l, err := tlv.ReadVarInt(r, &buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRowEncoding, err)
		}
		if l > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: element exceeds row", ErrInvalidRowEncoding)
		}
		elem := make([]byte, l)
		if _, err := io.ReadFull(r, elem); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRowEncoding, err)
		}
		item, err := decode(elem)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// entryRecord is the wire form shared by claims and supports, optionally
// tagged with the name they belong to.
type entryRecord struct {
	name    []byte
	txid    [32]byte
	index   uint32
	id      []byte
	amount  uint64
	height  uint32
	validAt uint32
}

func (r *entryRecord) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeName, &r.name),
		tlv.MakePrimitiveRecord(typeTxID, &r.txid),
		tlv.MakePrimitiveRecord(typeIndex, &r.index),
		tlv.MakePrimitiveRecord(typeClaimID, &r.id),
		tlv.MakePrimitiveRecord(typeAmount, &r.amount),
		tlv.MakePrimitiveRecord(typeHeight, &r.height),
		tlv.MakePrimitiveRecord(typeValidAt, &r.validAt),
	}
}

func (r *entryRecord) claimID() (ClaimID, error) {
	var id ClaimID
	if len(r.id) != ClaimIDSize {
		return id, fmt.Errorf("%w: claim id of %d bytes", ErrInvalidRowEncoding, len(r.id))
	}
	copy(id[:], r.id)
	return id, nil
}

func claimToRecord(name string, c *ClaimValue) *entryRecord {
	return &entryRecord{
		name:    []byte(name),
		txid:    c.OutPoint.Hash,
		index:   c.OutPoint.Index,
		id:      c.ClaimID[:],
		amount:  uint64(c.Amount),
		height:  uint32(c.Height),
		validAt: uint32(c.ValidAtHeight),
	}
}

func recordToClaim(r *entryRecord) (string, ClaimValue, error) {
	id, err := r.claimID()
	if err != nil {
		return "", ClaimValue{}, err
	}
	c := ClaimValue{
		OutPoint:      wire.OutPoint{Hash: r.txid, Index: r.index},
		ClaimID:       id,
		Amount:        int64(r.amount),
		Height:        int32(r.height),
		ValidAtHeight: int32(r.validAt),
	}
	c.EffectiveAmount = c.Amount
	return string(r.name), c, nil
}

func supportToRecord(name string, s *SupportValue) *entryRecord {
	return &entryRecord{
		name:    []byte(name),
		txid:    s.OutPoint.Hash,
		index:   s.OutPoint.Index,
		id:      s.SupportedClaimID[:],
		amount:  uint64(s.Amount),
		height:  uint32(s.Height),
		validAt: uint32(s.ValidAtHeight),
	}
}

func recordToSupport(r *entryRecord) (string, SupportValue, error) {
	id, err := r.claimID()
	if err != nil {
		return "", SupportValue{}, err
	}
	return string(r.name), SupportValue{
		OutPoint:         wire.OutPoint{Hash: r.txid, Index: r.index},
		SupportedClaimID: id,
		Amount:           int64(r.amount),
		Height:           int32(r.height),
		ValidAtHeight:    int32(r.validAt),
	}, nil
}

// pointerRecord carries a name, an outpoint and a height. Queue rows by
// name, expiration rows and undo rows are built from it.
type pointerRecord struct {
	name   []byte
	txid   [32]byte
	index  uint32
	height uint32
}

func (r *pointerRecord) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeName, &r.name),
		tlv.MakePrimitiveRecord(typeTxID, &r.txid),
		tlv.MakePrimitiveRecord(typeIndex, &r.index),
		tlv.MakePrimitiveRecord(typeHeight, &r.height),
	}
}

func newPointerRecord(name string, op wire.OutPoint, height int32) *pointerRecord {
	return &pointerRecord{
		name:   []byte(name),
		txid:   op.Hash,
		index:  op.Index,
		height: uint32(height),
	}
}

func (r *pointerRecord) outPoint() wire.OutPoint {
	return wire.OutPoint{Hash: r.txid, Index: r.index}
}

func decodePointer(b []byte) (*pointerRecord, error) {
	var r pointerRecord
	if err := decodeRecords(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

type nodeRecord struct {
	hash     [32]byte
	takeover uint32
	claims   []byte
}

func (r *nodeRecord) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeHash, &r.hash),
		tlv.MakePrimitiveRecord(typeTakeover, &r.takeover),
		tlv.MakePrimitiveRecord(typeClaims, &r.claims),
	}
}

func encodeClaims(claims []ClaimValue) ([]byte, error) {
	return encodeList(claims, func(c *ClaimValue) recordProducer {
		return claimToRecord("", c)
	})
}

func decodeClaim(b []byte) (ClaimValue, error) {
	var r entryRecord
	if err := decodeRecords(b, &r); err != nil {
		return ClaimValue{}, err
	}
	_, c, err := recordToClaim(&r)
	return c, err
}

func encodeNode(n *Node) ([]byte, error) {
	claims, err := encodeClaims(n.Claims)
	if err != nil {
		return nil, err
	}
	r := nodeRecord{
		hash:     n.Hash,
		takeover: uint32(n.TakeoverHeight),
		claims:   claims,
	}
	var b bytes.Buffer
	if err := encodeRecords(&b, &r); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeNode(b []byte) (Node, error) {
	var r nodeRecord
	if err := decodeRecords(b, &r); err != nil {
		return Node{}, err
	}
	claims, err := decodeList(r.claims, decodeClaim)
	if err != nil {
		return Node{}, err
	}
	return Node{
		Claims:         claims,
		TakeoverHeight: int32(r.takeover),
		Hash:           chainhash.Hash(r.hash),
	}, nil
}

func encodeSupports(supports []SupportValue) ([]byte, error) {
	return encodeList(supports, func(s *SupportValue) recordProducer {
		return supportToRecord("", s)
	})
}

func decodeSupports(b []byte) ([]SupportValue, error) {
	return decodeList(b, func(b []byte) (SupportValue, error) {
		var r entryRecord
		if err := decodeRecords(b, &r); err != nil {
			return SupportValue{}, err
		}
		_, s, err := recordToSupport(&r)
		return s, err
	})
}

func encodeNameClaims(entries []NameClaim) ([]byte, error) {
	return encodeList(entries, func(e *NameClaim) recordProducer {
		return claimToRecord(e.Name, &e.Claim)
	})
}

func decodeNameClaims(b []byte) ([]NameClaim, error) {
	return decodeList(b, func(b []byte) (NameClaim, error) {
		var r entryRecord
		if err := decodeRecords(b, &r); err != nil {
			return NameClaim{}, err
		}
		name, c, err := recordToClaim(&r)
		return NameClaim{Name: name, Claim: c}, err
	})
}

func encodeNameSupports(entries []NameSupport) ([]byte, error) {
	return encodeList(entries, func(e *NameSupport) recordProducer {
		return supportToRecord(e.Name, &e.Support)
	})
}

func decodeNameSupports(b []byte) ([]NameSupport, error) {
	return decodeList(b, func(b []byte) (NameSupport, error) {
		var r entryRecord
		if err := decodeRecords(b, &r); err != nil {
			return NameSupport{}, err
		}
		name, s, err := recordToSupport(&r)
		return NameSupport{Name: name, Support: s}, err
	})
}

func encodeOutPointHeights(entries []outPointHeight) ([]byte, error) {
	return encodeList(entries, func(e *outPointHeight) recordProducer {
		return newPointerRecord("", e.OutPoint, e.Height)
	})
}

func decodeOutPointHeights(b []byte) ([]outPointHeight, error) {
	return decodeList(b, func(b []byte) (outPointHeight, error) {
		r, err := decodePointer(b)
		if err != nil {
			return outPointHeight{}, err
		}
		return outPointHeight{OutPoint: r.outPoint(), Height: int32(r.height)}, nil
	})
}

func encodeNameOutPoints(entries []NameOutPoint) ([]byte, error) {
	return encodeList(entries, func(e *NameOutPoint) recordProducer {
		return newPointerRecord(e.Name, e.OutPoint, 0)
	})
}

func decodeNameOutPoints(b []byte) ([]NameOutPoint, error) {
	return decodeList(b, func(b []byte) (NameOutPoint, error) {
		r, err := decodePointer(b)
		if err != nil {
			return NameOutPoint{}, err
		}
		return NameOutPoint{Name: string(r.name), OutPoint: r.outPoint()}, nil
	})
}

func encodeNameOutPointHeights(entries []NameOutPointHeight) ([]byte, error) {
	return encodeList(entries, func(e *NameOutPointHeight) recordProducer {
		return newPointerRecord(e.Name, e.OutPoint, e.Height)
	})
}

func decodeNameOutPointHeights(b []byte) ([]NameOutPointHeight, error) {
	return decodeList(b, func(b []byte) (NameOutPointHeight, error) {
		r, err := decodePointer(b)
		if err != nil {
			return NameOutPointHeight{}, err
		}
		return NameOutPointHeight{
			Name:     string(r.name),
			OutPoint: r.outPoint(),
			Height:   int32(r.height),
		}, nil
	})
}

func encodeNameHeights(entries []NameHeight) ([]byte, error) {
	return encodeList(entries, func(e *NameHeight) recordProducer {
		return newPointerRecord(e.Name, wire.OutPoint{}, e.Height)
	})
}

func decodeNameHeights(b []byte) ([]NameHeight, error) {
	return decodeList(b, func(b []byte) (NameHeight, error) {
		r, err := decodePointer(b)
		if err != nil {
			return NameHeight{}, err
		}
		return NameHeight{Name: string(r.name), Height: int32(r.height)}, nil
	})
}

type metaRecord struct {
	nextHeight uint32
	root       [32]byte
}

func (r *metaRecord) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeHash, &r.root),
		tlv.MakePrimitiveRecord(typeNextHeight, &r.nextHeight),
	}
}

func heightKey(height int32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(height))
	return k[:]
}

func keyHeight(k []byte) (int32, error) {
	if len(k) != 4 {
		return 0, fmt.Errorf("%w: height key of %d bytes", ErrInvalidRowEncoding, len(k))
	}
	return int32(binary.BigEndian.Uint32(k)), nil
}

func outPointKey(op wire.OutPoint) []byte {
	var k [chainhash.HashSize + 4]byte
	copy(k[:], op.Hash[:])
	binary.BigEndian.PutUint32(k[chainhash.HashSize:], op.Index)
	return k[:]
}

// nameKey prefixes names so the root name, the empty string, is a valid
// key for every store.
func nameKey(name string) []byte {
	k := make([]byte, 0, len(name)+1)
	k = append(k, 'n')
	return append(k, name...)
}

func keyName(k []byte) (string, error) {
	if len(k) == 0 || k[0] != 'n' {
		return "", fmt.Errorf("%w: name key %x", ErrInvalidRowEncoding, k)
	}
	return string(k[1:]), nil
}

func claimIDKey(id ClaimID) []byte {
	return append([]byte(nil), id[:]...)
}
