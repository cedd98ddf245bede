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
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	bolt, err := OpenBoltStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Store{
		"mem":  NewMemStore(),
		"bolt": bolt,
	}
}

func TestStore(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			v, err := store.Get(nodeBucket, []byte("missing"))
			require.NoError(t, err)
			require.Nil(t, v)

			err = store.Update(func(b Batch) error {
				for _, k := range []string{"b", "c", "a"} {
					if err := b.Put(nodeBucket, []byte(k), []byte("v"+k)); err != nil {
						return err
					}
				}
				return b.Put(supportBucket, []byte("a"), []byte("other"))
			})
			require.NoError(t, err)

			v, err = store.Get(nodeBucket, []byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("va"), v)
			v[0] = 'x'
			v, err = store.Get(nodeBucket, []byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("va"), v)

			var keys []string
			err = store.ForEach(nodeBucket, func(k, _ []byte) error {
				keys = append(keys, string(k))
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b", "c"}, keys)

			errStop := errors.New("stop")
			err = store.ForEach(nodeBucket, func(_, _ []byte) error {
				return errStop
			})
			require.ErrorIs(t, err, errStop)

			err = store.Update(func(b Batch) error {
				return b.Delete(nodeBucket, []byte("b"))
			})
			require.NoError(t, err)
			v, err = store.Get(nodeBucket, []byte("b"))
			require.NoError(t, err)
			require.Nil(t, v)

			v, err = store.Get(supportBucket, []byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("other"), v)
		})
	}
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			errFail := errors.New("fail")
			err := store.Update(func(b Batch) error {
				if err := b.Put(metaBucket, metaStateKey, []byte("x")); err != nil {
					return err
				}
				return errFail
			})
			require.ErrorIs(t, err, errFail)

			v, err := store.Get(metaBucket, metaStateKey)
			require.NoError(t, err)
			require.Nil(t, v)
		})
	}
}

func TestMemStoreClosed(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.Close())

	_, err := store.Get(nodeBucket, []byte("a"))
	require.ErrorIs(t, err, ErrClosed)
	err = store.Update(func(Batch) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}
