package huffpack

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FrequencyTable counts occurrences of each byte value.
type FrequencyTable [alphabetSize]uint64

// Add counts every byte of data.
func (t *FrequencyTable) Add(data []byte) {
	for _, b := range data {
		t[b]++
	}
}

// Merge adds the counts of o to t. Merging is commutative and associative,
// so the order in which partial tables are merged does not matter.
func (t *FrequencyTable) Merge(o *FrequencyTable) {
	for i, n := range o {
		t[i] += n
	}
}

// Symbols returns the number of byte values with a nonzero count.
func (t *FrequencyTable) Symbols() int {
	n := 0
	for _, c := range t {
		if c > 0 {
			n++
		}
	}
	return n
}

// Total returns the sum of all counts.
func (t *FrequencyTable) Total() uint64 {
	var total uint64
	for _, c := range t {
		total += c
	}
	return total
}

// CountFrequencies counts symbols across all files in one linear pass each.
func CountFrequencies(files []File) FrequencyTable {
	var t FrequencyTable
	for i := range files {
		t.Add(files[i].Data)
	}
	return t
}

// countLocked gives every file to one worker, which builds a private
// histogram and then merges it into the shared table. The lock covers only
// the addition loop.
func countLocked(ctx context.Context, files []File, workers int) (FrequencyTable, error) {
	var (
		mu     sync.Mutex
		shared FrequencyTable
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range files {
		data := files[i].Data
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var local FrequencyTable
			local.Add(data)

			mu.Lock()
			shared.Merge(&local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FrequencyTable{}, err
	}
	return shared, nil
}

// countCombined runs a fixed pool of workers fed from a task queue. Workers
// send their private histograms to a single combiner, so no table is shared.
func countCombined(ctx context.Context, files []File, workers int) (FrequencyTable, error) {
	g, gctx := errgroup.WithContext(ctx)
	tasks := make(chan []byte)
	locals := make(chan *FrequencyTable, workers)

	g.Go(func() error {
		defer close(tasks)
		for i := range files {
			select {
			case tasks <- files[i].Data:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for data := range tasks {
				local := new(FrequencyTable)
				local.Add(data)
				select {
				case locals <- local:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	var total FrequencyTable
	combined := make(chan struct{})
	go func() {
		defer close(combined)
		for local := range locals {
			total.Merge(local)
		}
	}()

	err := g.Wait()
	close(locals)
	<-combined
	if err != nil {
		return FrequencyTable{}, err
	}
	return total, nil
}

func countParallel(ctx context.Context, files []File, workers int, r Reduction) (FrequencyTable, error) {
	if err := ctx.Err(); err != nil {
		return FrequencyTable{}, err
	}
	if r == ReduceCombine {
		return countCombined(ctx, files, workers)
	}
	return countLocked(ctx, files, workers)
}
