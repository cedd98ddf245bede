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
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type testValue int

func (v testValue) Empty() bool { return v == 0 }

func keysOf(nodes []Cursor[testValue]) []string {
	ret := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ret = append(ret, n.Key())
	}
	return ret
}

func TestPrefixTrieInsert(t *testing.T) {
	trie := NewPrefixTrie[testValue]()
	if !trie.Empty() || trie.Root().Valid() {
		t.Fatalf("new trie is not empty")
	}

	for i, key := range []string{"test", "toast", "tester", "slow", "slower"} {
		trie.Insert(key, testValue(i+1))
	}
	if h := trie.Height(); h != 6 {
		t.Fatalf("height %d, want 6", h)
	}

	cur := trie.Find("tester")
	if !cur.Valid() || *cur.Data() != 3 {
		t.Fatalf("tester not found")
	}
	if cur := trie.Find("t"); !cur.Valid() || !cur.Data().Empty() {
		t.Fatalf("branch node t missing or holding data")
	}
	if trie.Contains("tes") || trie.Contains("testers") {
		t.Fatalf("found a key that was never inserted")
	}

	require.Equal(t, []string{"", "t", "test", "tester"}, keysOf(trie.Nodes("tester")))
	require.Equal(t, []string{"", "t", "test", "tester"}, keysOf(trie.Nodes("testers")))
	require.Equal(t, []string{"", "t"}, keysOf(trie.Nodes("tes")))
	require.Equal(t, []string{"slower"}, keysOf(trie.Find("slow").Children()))

	var walked []string
	trie.Walk(func(c Cursor[testValue]) bool {
		walked = append(walked, c.Key())
		return true
	})
	require.Equal(t, []string{"", "slow", "slower", "t", "test", "tester", "toast"}, walked)

	require.Equal(t, []string{"test", "toast"}, keysOf(trie.Find("t").Children()))
}

func TestPrefixTrieErase(t *testing.T) {
	trie := NewPrefixTrie[testValue]()
	for i, key := range []string{"test", "toast", "tester"} {
		trie.Insert(key, testValue(i+1))
	}

	if !trie.Erase("test") {
		t.Fatalf("erasing test did not change the node count")
	}
	if trie.Contains("test") {
		t.Fatalf("test still present")
	}
	if cur := trie.Find("tester"); !cur.Valid() || *cur.Data() != 3 {
		t.Fatalf("tester lost by erasing test")
	}

	trie.Erase("toast")
	require.Equal(t, []string{"", "tester"}, keysOf(trie.Nodes("tester")))
	if h := trie.Height(); h != 1 {
		t.Fatalf("height %d, want 1", h)
	}

	if trie.Erase("missing") {
		t.Fatalf("erasing a missing key changed the trie")
	}

	trie.Insert("", 9)
	if h := trie.Height(); h != 2 {
		t.Fatalf("height with root data %d, want 2", h)
	}
	trie.Erase("")
	trie.Erase("tester")
	if !trie.Empty() {
		t.Fatalf("trie not empty after erasing everything")
	}
}

// TestPrefixTrieModel checks random inserts and erases against a map.
func TestPrefixTrieModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		trie := NewPrefixTrie[testValue]()
		model := make(map[string]testValue)
		key := rapid.StringOfN(rapid.RuneFrom([]rune("abc")), 0, 5, -1)

		for i := rapid.IntRange(1, 50).Draw(t, "ops"); i > 0; i-- {
			k := key.Draw(t, "key")
			if rapid.Bool().Draw(t, "erase") {
				trie.Erase(k)
				delete(model, k)
				continue
			}
			v := testValue(rapid.IntRange(1, 100).Draw(t, "value"))
			trie.Insert(k, v)
			model[k] = v
		}

		var want []string
		for k := range model {
			want = append(want, k)
		}
		sort.Strings(want)

		var got []string
		trie.Walk(func(c Cursor[testValue]) bool {
			if c.Key() != "" && c.Data().Empty() && len(c.Children()) < 2 {
				t.Fatalf("redundant node %q", c.Key())
			}
			if !c.Data().Empty() {
				got = append(got, c.Key())
			}
			return true
		})
		require.Equal(t, want, got)

		for k, v := range model {
			cur := trie.Find(k)
			if !cur.Valid() || *cur.Data() != v {
				t.Fatalf("key %q lost", k)
			}
		}
	})
}
