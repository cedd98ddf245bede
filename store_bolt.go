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
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps the rows in a bbolt database, one bucket per row family.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(b Bucket, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b)
		if bucket == nil {
			return fmt.Errorf("missing bucket %s", b)
		}
		if v := bucket.Get(key); v != nil {
			value = append([]byte{}, v...)
		}
		return nil
	})
	return value, err
}

func (s *BoltStore) ForEach(b Bucket, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b)
		if bucket == nil {
			return fmt.Errorf("missing bucket %s", b)
		}
		return bucket.ForEach(fn)
	})
}

type boltBatch struct {
	tx *bolt.Tx
}

func (b boltBatch) Put(bucket Bucket, key, value []byte) error {
	return b.tx.Bucket(bucket).Put(key, value)
}

func (b boltBatch) Delete(bucket Bucket, key []byte) error {
	return b.tx.Bucket(bucket).Delete(key)
}

func (s *BoltStore) Update(fn func(Batch) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(boltBatch{tx: tx})
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
