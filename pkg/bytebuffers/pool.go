package bytebuffers

import (
	"sync"
)

var pool = sync.Pool{
	New: func() interface{} {
		return NewBuffer()
	},
}

// Acquire
// takes a reset buffer from the pool.
func Acquire() Buffer {
	return pool.Get().(Buffer)
}

// Release
// returns a buffer to the pool. Oversized buffers are dropped so one large
// burst does not pin memory for the rest of the process.
func Release(buf Buffer) {
	if buf == nil || buf.Cap() > 8*pagesize {
		return
	}
	buf.Reset()
	pool.Put(buf)
}
