// Package parallel runs index ranges across goroutines. Callers own the
// determinism of their results: every index must write only to its own slot.
package parallel

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// Workers resolves a requested worker count. Zero or negative means one
// worker per CPU.
func Workers(requested int) int {
	if requested <= 0 {
		return runtime.NumCPU()
	}
	return requested
}

// Parallelize splits [0, items) into contiguous chunks, one per worker, and
// calls fn for each chunk concurrently.
func Parallelize(items, workers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}

	numWorkers := Workers(workers)
	if numWorkers > items {
		numWorkers = items
	}
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items does not exceed
// threshold.
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, workers, fn)
}

// ForEach calls fn for every index in [0, n) using at most workers
// goroutines and returns the error of the lowest failing index. A panic in
// fn is returned as a PanicError.
func ForEach(n, workers int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}

	errs := make([]error, n)
	Parallelize(n, workers, func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = errors.SafeExecute(fmt.Sprintf("parallel task %d", i), func() error {
				return fn(i)
			})
		}
	})

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
