package indicator

import (
	"sync"

	"gridbot/internal/domain"
)

// ComputeParallel enriches a bar sequence using up to workers goroutines.
//
// The sequence is split into chunks of at least Settings.MinChunkSize bars.
// Every chunk except the first is extended backward by the longest rolling
// lookback so windowed computations warm up on real history; the overlap
// prefix is discarded before chunks are stitched back together in original
// offset order. Chunks are independent and side-effect free, so the result
// matches a sequential Compute within floating-point tolerance for every bar
// past the warm-up window.
//
// Short sequences fall back to the sequential path.
func ComputeParallel(bars []domain.Bar, s Settings, workers int) *Frame {
	s.Normalize()
	if workers < 1 {
		workers = 1
	}

	n := len(bars)
	chunkSize := n / workers
	if chunkSize < s.MinChunkSize {
		chunkSize = s.MinChunkSize
	}
	if n <= chunkSize || workers == 1 {
		return Compute(bars, s)
	}

	overlap := s.maxLookback()

	type chunk struct {
		offset  int // first bar this chunk contributes to the result
		start   int // first bar actually computed (offset − overlap)
		end     int
		columns map[string][]float64
	}

	var chunks []*chunk
	for off := 0; off < n; off += chunkSize {
		start := off - overlap
		if start < 0 {
			start = 0
		}
		end := off + chunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, &chunk{offset: off, start: start, end: end})
	}

	jobs := make(chan *chunk)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				f := Compute(bars[c.start:c.end], s)
				trim := c.offset - c.start
				cols := make(map[string][]float64, len(f.cols))
				for name, vals := range f.cols {
					cols[name] = vals[trim:]
				}
				c.columns = cols
			}
		}()
	}
	for _, c := range chunks {
		jobs <- c
	}
	close(jobs)
	wg.Wait()

	// Chunks are already ordered by offset; concatenate their kept regions.
	out := NewFrame(bars)
	for name := range chunks[0].columns {
		col := make([]float64, 0, n)
		for _, c := range chunks {
			col = append(col, c.columns[name]...)
		}
		out.SetCol(name, col)
	}
	return out
}
