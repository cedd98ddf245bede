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

// rowCache stages the rows of one bucket. Rows are loaded lazily from the
// store and written back by flush; an empty row deletes the stored one.
type rowCache[K comparable, E any] struct {
	store  Store
	bucket Bucket
	key    func(K) []byte
	encode func([]E) ([]byte, error)
	decode func([]byte) ([]E, error)

	rows  map[K][]E
	dirty map[K]struct{}
}

func newRowCache[K comparable, E any](store Store, bucket Bucket,
	key func(K) []byte, encode func([]E) ([]byte, error),
	decode func([]byte) ([]E, error)) *rowCache[K, E] {

	return &rowCache[K, E]{
		store:  store,
		bucket: bucket,
		key:    key,
		encode: encode,
		decode: decode,
		rows:   make(map[K][]E),
		dirty:  make(map[K]struct{}),
	}
}

// get returns the row stored under k. The returned slice must not be
// modified in place; use set to change it.
func (r *rowCache[K, E]) get(k K) ([]E, error) {
	if row, ok := r.rows[k]; ok {
		return row, nil
	}
	b, err := r.store.Get(r.bucket, r.key(k))
	if err != nil {
		return nil, err
	}
	var row []E
	if b != nil {
		if row, err = r.decode(b); err != nil {
			return nil, fmt.Errorf("%s row %x: %w", r.bucket, r.key(k), err)
		}
	}
	r.rows[k] = row
	return row, nil
}

func (r *rowCache[K, E]) set(k K, row []E) {
	r.rows[k] = row
	r.dirty[k] = struct{}{}
}

func (r *rowCache[K, E]) add(k K, e E) error {
	row, err := r.get(k)
	if err != nil {
		return err
	}
	r.set(k, append(row[:len(row):len(row)], e))
	return nil
}

// removeFirst removes the first element of row k matching fn and returns
// it.
func (r *rowCache[K, E]) removeFirst(k K, match func(*E) bool) (E, bool, error) {
	var zero E
	row, err := r.get(k)
	if err != nil {
		return zero, false, err
	}
	for i := range row {
		if match(&row[i]) {
			e := row[i]
			r.set(k, removeAt(row, i))
			return e, true, nil
		}
	}
	return zero, false, nil
}

// keys returns every key holding a row, staged or stored, in ascending
// order of its store key.
func (r *rowCache[K, E]) keys(parse func([]byte) (K, error)) ([]K, error) {
	seen := make(map[K]struct{})
	var ret []K
	err := r.store.ForEach(r.bucket, func(k, _ []byte) error {
		key, err := parse(k)
		if err != nil {
			return err
		}
		seen[key] = struct{}{}
		if row, ok := r.rows[key]; !ok || len(row) > 0 {
			ret = append(ret, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for k, row := range r.rows {
		if _, ok := seen[k]; !ok && len(row) > 0 {
			ret = append(ret, k)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return string(r.key(ret[i])) < string(r.key(ret[j]))
	})
	return ret, nil
}

func (r *rowCache[K, E]) flush(b Batch) error {
	for k := range r.dirty {
		row := r.rows[k]
		if len(row) == 0 {
			if err := b.Delete(r.bucket, r.key(k)); err != nil {
				return err
			}
			continue
		}
		v, err := r.encode(row)
		if err != nil {
			return err
		}
		if err := b.Put(r.bucket, r.key(k), v); err != nil {
			return err
		}
	}
	return nil
}

func (r *rowCache[K, E]) clear() {
	r.rows = make(map[K][]E)
	r.dirty = make(map[K]struct{})
}

// removeAt returns a copy of s without its i-th element.
func removeAt[E any](s []E, i int) []E {
	ret := make([]E, 0, len(s)-1)
	ret = append(ret, s[:i]...)
	return append(ret, s[i+1:]...)
}
