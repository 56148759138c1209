// Package parallel splits index ranges across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Chunk is a half-open index range [Start, End) handled by one worker.
type Chunk struct {
	Index      int
	Start, End int
}

// Chunks divides items into at most workers contiguous ranges of nearly
// equal size. workers <= 0 means runtime.NumCPU(). The ranges are returned
// in index order so callers can reduce per-chunk results deterministically.
func Chunks(items, workers int) []Chunk {
	if items <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items // No need for more workers than items
	}

	// ceiling division
	chunkSize := (items + workers - 1) / workers

	chunks := make([]Chunk, 0, workers)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end})
	}
	return chunks
}

// Parallelize runs fn once per chunk of Chunks(items, workers) and waits for
// all of them. With a single chunk fn runs on the calling goroutine.
func Parallelize(items, workers int, fn func(c Chunk)) {
	chunks := Chunks(items, workers)
	if len(chunks) == 1 {
		fn(chunks[0])
		return
	}

	var wg sync.WaitGroup
	for _, c := range chunks {
		wg.Add(1)
		go func(c Chunk) {
			defer wg.Done()
			fn(c)
		}(c)
	}
	wg.Wait()
}

