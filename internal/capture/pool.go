package capture

import (
	"sync"
	"sync/atomic"

	"github.com/tphakala/vocalcoach/internal/errors"
)

// Float32Pool is a pool of fixed-size sample buffers. Get falls back to
// allocation when the pool is empty.
type Float32Pool struct {
	pool      sync.Pool
	size      int
	gets      atomic.Uint64
	news      atomic.Uint64
	discarded atomic.Uint64
}

// Float32PoolStats contains statistics about pool usage
type Float32PoolStats struct {
	Hits      uint64 // buffers reused
	Misses    uint64 // buffers allocated
	Discarded uint64 // Put calls rejected for size
}

// NewFloat32Pool creates a pool of size-sample buffers
func NewFloat32Pool(size int) (*Float32Pool, error) {
	if size <= 0 {
		return nil, errors.Newf("invalid float32 pool size: %d", size).
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Context("operation", "create_float32_pool").
			Build()
	}

	fp := &Float32Pool{size: size}
	fp.pool.New = func() any {
		fp.news.Add(1)
		return make([]float32, size)
	}
	return fp, nil
}

// Get returns a buffer of the pool size. Its contents are undefined.
func (fp *Float32Pool) Get() []float32 {
	fp.gets.Add(1)
	return fp.pool.Get().([]float32)
}

// Put returns buf to the pool. Buffers of the wrong size are discarded.
func (fp *Float32Pool) Put(buf []float32) {
	if len(buf) != fp.size {
		fp.discarded.Add(1)
		return
	}
	fp.pool.Put(buf)
}

// Stats returns current pool statistics
func (fp *Float32Pool) Stats() Float32PoolStats {
	gets := fp.gets.Load()
	news := fp.news.Load()
	return Float32PoolStats{
		Hits:      gets - news,
		Misses:    news,
		Discarded: fp.discarded.Load(),
	}
}

// framePools holds one pool per period size, shared by all sources
var framePools sync.Map // int -> *Float32Pool

func framePool(size int) *Float32Pool {
	if p, ok := framePools.Load(size); ok {
		return p.(*Float32Pool)
	}
	fp, err := NewFloat32Pool(size)
	if err != nil {
		return nil
	}
	p, _ := framePools.LoadOrStore(size, fp)
	return p.(*Float32Pool)
}

// FrameBuffer returns a pooled buffer of size samples for a new frame.
// Contents are undefined; sources overwrite or clear every sample.
func FrameBuffer(size int) []float32 {
	if p := framePool(size); p != nil {
		return p.Get()
	}
	return nil
}

// ReleaseFrame hands the frame's samples back for reuse. The caller must
// not touch f.Samples afterwards. Frames that are never released are
// reclaimed by the garbage collector.
func ReleaseFrame(f Frame) {
	if len(f.Samples) == 0 {
		return
	}
	if p := framePool(len(f.Samples)); p != nil {
		p.Put(f.Samples)
	}
}

// FramePoolStats reports usage of the pool for size-sample frames
func FramePoolStats(size int) Float32PoolStats {
	if p := framePool(size); p != nil {
		return p.Stats()
	}
	return Float32PoolStats{}
}
