// Package common provides shared utilities for the linedex engine.
package common

import (
	"sync"
)

// BlockPool recycles the fixed-size byte buffers the indexing pipeline
// reads file blocks into. With a bounded number of blocks in flight
// between the reader and the parser, steady-state indexing allocates no
// per-block memory.
type BlockPool struct {
	size int
	pool sync.Pool
}

// NewBlockPool creates a pool of buffers of exactly blockSize bytes.
func NewBlockPool(blockSize int) *BlockPool {
	bp := &BlockPool{size: blockSize}
	bp.pool.New = func() any {
		return make([]byte, blockSize)
	}
	return bp
}

// Size reports the buffer size this pool hands out.
func (bp *BlockPool) Size() int { return bp.size }

// Get returns a buffer of the pool's block size. The content is garbage
// from previous uses; callers overwrite it with a file read.
func (bp *BlockPool) Get() []byte {
	return bp.pool.Get().([]byte)[:bp.size]
}

// Put returns a buffer obtained from Get. Slices of a foreign capacity
// (including re-sliced payloads of other pools) are dropped.
func (bp *BlockPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	bp.pool.Put(buf[:bp.size])
}
