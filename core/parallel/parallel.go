// Package parallel provides helpers for running batch work across CPU
// cores. Training batches are embarrassingly parallel across sequences, so
// the helpers split an index range into contiguous chunks, one goroutine
// per chunk.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize splits items across up to runtime.NumCPU() workers and calls
// fn(start, end) for each contiguous chunk. It returns when every worker
// has finished.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeN(runtime.NumCPU(), items, fn)
}

// ParallelizeN is Parallelize with an explicit worker count. A count below
// 2 runs sequentially in the calling goroutine, which keeps single-worker
// execution deterministic.
func ParallelizeN(workers, items int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if workers < 2 || items == 1 {
		fn(0, items)
		return
	}
	if workers > items {
		workers = items
	}

	// Ceiling division so the last chunk is never empty.
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
