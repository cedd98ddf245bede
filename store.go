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

// Bucket names one family of rows.
type Bucket []byte

var (
	nodeBucket              = Bucket("node")
	supportBucket           = Bucket("support")
	claimQueueBucket        = Bucket("claim-queue")
	claimQueueNameBucket    = Bucket("claim-queue-name")
	expirationBucket        = Bucket("claim-expiration")
	supportQueueBucket      = Bucket("support-queue")
	supportQueueNameBucket  = Bucket("support-queue-name")
	supportExpirationBucket = Bucket("support-expiration")
	claimIndexBucket        = Bucket("claim-index")
	supportIndexBucket      = Bucket("support-index")
	metaBucket              = Bucket("meta")

	allBuckets = []Bucket{
		nodeBucket, supportBucket, claimQueueBucket, claimQueueNameBucket,
		expirationBucket, supportQueueBucket, supportQueueNameBucket,
		supportExpirationBucket, claimIndexBucket, supportIndexBucket,
		metaBucket,
	}

	metaStateKey = []byte("state")
)

// Batch collects the writes of one flush.
type Batch interface {
	Put(b Bucket, key, value []byte) error
	Delete(b Bucket, key []byte) error
}

// Store is the persistence collaborator of the claim trie. Update applies
// all writes of fn atomically or none of them.
type Store interface {
	// Get returns nil without error when key is missing. The returned
	// slice is owned by the caller.
	Get(b Bucket, key []byte) ([]byte, error)

	// ForEach visits the rows of b in key order.
	ForEach(b Bucket, fn func(key, value []byte) error) error

	Update(fn func(Batch) error) error

	Close() error
}
