// Package parallel runs index loops across a bounded number of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// ForEach calls body(i) for i in [0, length) using at most limit goroutines.
// limit <= 0 uses GOMAXPROCS. body must be safe to call concurrently for
// distinct i.
func ForEach(length, limit int, body func(i int)) {
	if length <= 0 {
		return
	}
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	if limit > length {
		limit = length
	}
	if limit == 1 {
		for i := 0; i < length; i++ {
			body(i)
		}
		return
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			body(i)
		}(i)
	}

	wg.Wait()
}
