package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Parallelize divides the specified total number (items) according to the number of CPU cores,
// and executes the specified function (fn) in parallel for each range (start, end).
// Ranges are disjoint, so fn may write to its own slice of a shared output without locking.
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items // No need for more workers than items
	}

	// Calculate the number of items each worker handles (ceiling division)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
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

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold
// If below threshold, normal sequential processing is performed
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}

	Parallelize(items, fn)
}

// ForEach calls fn for every index in [0, items) using at most NumCPU goroutines
// and returns the first error. All calls have returned when ForEach returns.
func ForEach(items int, fn func(i int) error) error {
	if items == 0 {
		return nil
	}
	if items == 1 {
		return fn(0)
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < items; i++ {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}
