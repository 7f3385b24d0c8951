package loopback

import "sync"

const (
	// Pool limits to prevent memory bloat
	poolMaxCap  = 64 << 10 // bytes retained per buffer
	poolInitCap = 256
)

// message data buffer pool; buffers recycle once a receive drains them
var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, poolInitCap)
		return &buf
	},
}

func getBuf(n int) *[]byte {
	p := bufPool.Get().(*[]byte)
	if cap(*p) < n {
		*p = make([]byte, n)
	}
	*p = (*p)[:n]
	return p
}

func putBuf(p *[]byte) {
	if p == nil || cap(*p) > poolMaxCap {
		return // reject oversized
	}
	*p = (*p)[:0]
	bufPool.Put(p)
}
