// Package buffer provides a bounded, closable FIFO for handing values from
// a producer goroutine to a consumer.
//
// BlockBuffer backs every pull-based stream in zoocari: model token streams
// in genx and the event streams produced by the assistant. Producers Add,
// consumers call Next until ErrIteratorDone, and either side may abort the
// exchange with CloseWithError.
//
//	bb := buffer.BlockN[string](16)
//	go func() {
//		defer bb.CloseWrite()
//		bb.Add("hello")
//	}()
//	for {
//		s, err := bb.Next()
//		if errors.Is(err, buffer.ErrIteratorDone) {
//			break
//		}
//		...
//	}
package buffer

import "errors"

// ErrIteratorDone is returned by Next once the write side is closed and
// every pending element has been consumed.
var ErrIteratorDone = errors.New("iterator done")
