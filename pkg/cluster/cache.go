package cluster

import (
	"hash/maphash"

	"github.com/dgryski/go-tinylfu"
)

var cacheSeed = maphash.MakeSeed()

func virtualBlockHash(k uint64) uint64 {
	return maphash.Comparable(cacheSeed, k)
}

// blockCache wraps a tinylfu admission cache keyed by virtual-block-id.
// Eviction synchronously flushes dirty entries through onEvict; a flush
// failure is reported back to the caller that triggered the eviction via
// evictErr, since tinylfu.OnEvict itself has no error return.
type blockCache struct {
	lfu      *tinylfu.T[uint64, *PhysicalBlock]
	onEvict  func(*PhysicalBlock) error
	evictErr error
}

func newBlockCache(capacity int, onEvict func(*PhysicalBlock) error) *blockCache {
	bc := &blockCache{onEvict: onEvict}
	bc.lfu = tinylfu.New[uint64, *PhysicalBlock](capacity, capacity*10, virtualBlockHash,
		tinylfu.OnEvict(bc.handleEvict))
	return bc
}

func (bc *blockCache) handleEvict(_ uint64, blk *PhysicalBlock) {
	if blk == nil || !blk.Dirty {
		return
	}
	if err := bc.onEvict(blk); err != nil && bc.evictErr == nil {
		bc.evictErr = err
	}
}

// Add inserts or overwrites the cache entry for v, running any triggered
// eviction flush synchronously. The returned error is the first eviction
// flush failure observed during this call, if any.
func (bc *blockCache) Add(v uint64, blk *PhysicalBlock) error {
	bc.evictErr = nil
	bc.lfu.Add(v, blk)
	return bc.evictErr
}

func (bc *blockCache) Get(v uint64) (*PhysicalBlock, bool) {
	return bc.lfu.Get(v)
}
