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
	"sync"

	"github.com/google/btree"
)

type memItem struct {
	key   string
	value []byte
}

func (i *memItem) Less(than btree.Item) bool {
	return i.key < than.(*memItem).key
}

// MemStore is an in memory Store, one ordered tree per bucket.
type MemStore struct {
	mu      sync.RWMutex
	buckets map[string]*btree.BTree
	closed  bool
}

func NewMemStore() *MemStore {
	s := &MemStore{buckets: make(map[string]*btree.BTree)}
	for _, b := range allBuckets {
		s.buckets[string(b)] = btree.New(8)
	}
	return s
}

func (s *MemStore) Get(b Bucket, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	item := s.buckets[string(b)].Get(&memItem{key: string(key)})
	if item == nil {
		return nil, nil
	}
	return bytes.Clone(item.(*memItem).value), nil
}

func (s *MemStore) ForEach(b Bucket, fn func(key, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	var err error
	s.buckets[string(b)].Ascend(func(i btree.Item) bool {
		item := i.(*memItem)
		err = fn([]byte(item.key), item.value)
		return err == nil
	})
	return err
}

type memOp struct {
	bucket string
	key    string
	value  []byte
	delete bool
}

type memBatch struct {
	ops []memOp
}

func (b *memBatch) Put(bucket Bucket, key, value []byte) error {
	b.ops = append(b.ops, memOp{
		bucket: string(bucket), key: string(key), value: bytes.Clone(value),
	})
	return nil
}

func (b *memBatch) Delete(bucket Bucket, key []byte) error {
	b.ops = append(b.ops, memOp{
		bucket: string(bucket), key: string(key), delete: true,
	})
	return nil
}

// Update collects the writes of fn and applies them only when fn succeeds.
func (s *MemStore) Update(fn func(Batch) error) error {
	var batch memBatch
	if err := fn(&batch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, op := range batch.ops {
		tree := s.buckets[op.bucket]
		if op.delete {
			tree.Delete(&memItem{key: op.key})
			continue
		}
		tree.ReplaceOrInsert(&memItem{key: op.key, value: op.value})
	}
	return nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
