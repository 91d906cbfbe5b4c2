package buffer

import (
	"fmt"
	"io"
	"sync"
)

// BlockBuffer is a bounded FIFO that hands elements from a producer
// goroutine to a consumer. Add blocks while the buffer is full and Next
// blocks while it is empty, so a slow consumer applies backpressure to
// the producer.
//
// The write side is closed gracefully with CloseWrite: pending elements
// stay readable and Next reports ErrIteratorDone once they are drained.
// CloseWithError tears down both sides at once and wakes every waiter.
type BlockBuffer[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error
}

// BlockN creates a BlockBuffer holding at most size elements.
// A size below 1 is treated as 1.
func BlockN[T any](size int) *BlockBuffer[T] {
	bb := &BlockBuffer[T]{buf: make([]T, max(size, 1))}
	bb.cond = sync.NewCond(&bb.mu)
	return bb
}

// Add appends t, blocking while the buffer is full.
//
// It fails once the write side is closed or the buffer was closed with an
// error; in the latter case the close error is wrapped.
func (bb *BlockBuffer[T]) Add(t T) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	for {
		if bb.closeErr != nil {
			return fmt.Errorf("buffer: write to closed buffer: %w", bb.closeErr)
		}
		if bb.closeWrite {
			return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
		}
		if bb.tail-bb.head < int64(len(bb.buf)) {
			break
		}
		bb.cond.Wait()
	}
	bb.buf[bb.tail%int64(len(bb.buf))] = t
	bb.tail++
	bb.cond.Broadcast()
	return nil
}

// Next removes and returns the oldest element, blocking while the buffer
// is empty. It returns ErrIteratorDone after CloseWrite once every pending
// element was consumed.
func (bb *BlockBuffer[T]) Next() (t T, err error) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	for {
		if bb.closeErr != nil {
			return t, fmt.Errorf("buffer: read from closed buffer: %w", bb.closeErr)
		}
		if bb.head != bb.tail {
			break
		}
		if bb.closeWrite {
			return t, ErrIteratorDone
		}
		bb.cond.Wait()
	}
	i := bb.head % int64(len(bb.buf))
	t = bb.buf[i]
	var zero T
	bb.buf[i] = zero
	bb.head++
	bb.cond.Broadcast()
	return t, nil
}

// CloseWrite stops further writes. Elements already added remain readable.
func (bb *BlockBuffer[T]) CloseWrite() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if !bb.closeWrite {
		bb.closeWrite = true
		bb.cond.Broadcast()
	}
	return nil
}

// CloseWithError closes both sides. Pending and future Add and Next calls
// fail with an error wrapping err (io.ErrClosedPipe when err is nil).
// Only the first close error is kept.
func (bb *BlockBuffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.closeErr == nil {
		bb.closeErr = err
		bb.closeWrite = true
		bb.cond.Broadcast()
	}
	return nil
}

// Close is CloseWithError(io.ErrClosedPipe).
func (bb *BlockBuffer[T]) Close() error {
	return bb.CloseWithError(io.ErrClosedPipe)
}

// Error returns the error the buffer was closed with, if any.
func (bb *BlockBuffer[T]) Error() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return bb.closeErr
}

// Len returns the number of pending elements.
func (bb *BlockBuffer[T]) Len() int {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return int(bb.tail - bb.head)
}
