// Package memory reads documents and response bodies through pooled buffers
// with an optional size cap.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// DefaultChunkSize is the read size of ReadLimited.
const DefaultChunkSize = 32 * 1024

// ErrTooLarge is returned when a read passes its limit.
type ErrTooLarge struct {
	Limit int64
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("content exceeds the maximum allowed size of %d bytes", e.Limit)
}

// BufferPool manages a pool of reusable bytes.Buffer instances
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return &bytes.Buffer{}
			},
		},
	}
}

// Get retrieves an empty buffer from the pool
func (bp *BufferPool) Get() *bytes.Buffer {
	buf := bp.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool. Very large buffers are dropped so one
// huge response does not pin its memory.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf.Cap() > 4*1024*1024 {
		return
	}
	bp.pool.Put(buf)
}

var (
	buffers = NewBufferPool()
	chunks  = sync.Pool{New: func() interface{} {
		b := make([]byte, DefaultChunkSize)
		return &b
	}}
)

// ReadLimited reads r to the end in chunks and returns a copy of the
// content. limit <= 0 means no limit. Cancelling ctx stops the read between
// chunks.
func ReadLimited(ctx context.Context, r io.Reader, limit int64) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	chunkPtr := chunks.Get().(*[]byte)
	defer chunks.Put(chunkPtr)
	chunk := *chunkPtr

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if limit > 0 && total > limit {
				return nil, &ErrTooLarge{Limit: limit}
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return bytes.Clone(buf.Bytes()), nil
}
