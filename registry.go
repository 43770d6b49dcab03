package gridwire

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// softCapBytes is the suggested soft cap from spec.md §4.G past which a
// released stream handle's buffer is reallocated smaller instead of kept.
const softCapBytes = 512 * 1024

// streamRegistry implements spec.md §4.G's two modes: pool_size == 0 is
// per-goroutine cached handle pairs (O(1), never blocks), grounded on
// glint's sync.Pool-based bufpool (buffer.go); pool_size > 0 is a bounded
// shared pool with blocking acquire, backed by
// golang.org/x/sync/semaphore.Weighted since sync.Pool by design never
// blocks and spec.md explicitly requires blocking acquire semantics in
// shared mode.
type streamRegistry struct {
	poolSize uint32

	outPool sync.Pool
	inPool  sync.Pool

	outSem  *semaphore.Weighted
	inSem   *semaphore.Weighted
	mu      sync.Mutex
	freeOut []*OutputStream
	freeIn  []*InputStream
}

func newStreamRegistry(poolSize uint32) *streamRegistry {
	r := &streamRegistry{poolSize: poolSize}
	r.outPool.New = func() any { return &OutputStream{} }
	r.inPool.New = func() any { return &InputStream{} }
	if poolSize > 0 {
		r.outSem = semaphore.NewWeighted(int64(poolSize))
		r.inSem = semaphore.NewWeighted(int64(poolSize))
		for i := uint32(0); i < poolSize; i++ {
			r.freeOut = append(r.freeOut, &OutputStream{})
			r.freeIn = append(r.freeIn, &InputStream{})
		}
	}
	return r
}

func (r *streamRegistry) acquireOutput(ctx context.Context) (*OutputStream, error) {
	if r.poolSize == 0 {
		s := r.outPool.Get().(*OutputStream)
		s.reset()
		return s, nil
	}
	if err := r.outSem.Acquire(ctx, 1); err != nil {
		return nil, wrapError(ErrIO, err)
	}
	r.mu.Lock()
	s := r.freeOut[len(r.freeOut)-1]
	r.freeOut = r.freeOut[:len(r.freeOut)-1]
	r.mu.Unlock()
	s.reset()
	return s, nil
}

func (r *streamRegistry) releaseOutput(s *OutputStream) {
	s.buf.shrinkIfOversize(softCapBytes)
	if r.poolSize == 0 {
		r.outPool.Put(s)
		return
	}
	r.mu.Lock()
	r.freeOut = append(r.freeOut, s)
	r.mu.Unlock()
	r.outSem.Release(1)
}

func (r *streamRegistry) acquireInput(ctx context.Context, data []byte) (*InputStream, error) {
	if r.poolSize == 0 {
		s := r.inPool.Get().(*InputStream)
		s.reset(data)
		return s, nil
	}
	if err := r.inSem.Acquire(ctx, 1); err != nil {
		return nil, wrapError(ErrIO, err)
	}
	r.mu.Lock()
	s := r.freeIn[len(r.freeIn)-1]
	r.freeIn = r.freeIn[:len(r.freeIn)-1]
	r.mu.Unlock()
	s.reset(data)
	return s, nil
}

func (r *streamRegistry) releaseInput(s *InputStream) {
	if r.poolSize == 0 {
		r.inPool.Put(s)
		return
	}
	r.mu.Lock()
	r.freeIn = append(r.freeIn, s)
	r.mu.Unlock()
	r.inSem.Release(1)
}
