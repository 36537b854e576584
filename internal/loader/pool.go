package loader

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// entryOutcome is the result of syncing one candidate.
type entryOutcome struct {
	path    string // candidate path relative to the content dir
	id      string
	synced  bool // a record was written
	skipped bool // digest fast path
	bytes   int64
	err     error
}

// fanOut syncs candidates through at most Concurrency workers and returns
// once every submitted entry has completed. One entry's failure never
// cancels its siblings; a cancelled context only stops workers from
// picking up further work.
func (l *Loader) fanOut(ctx context.Context, pass string, candidates []string, untouched mapset.Set[string]) []entryOutcome {
	if len(candidates) == 0 {
		return nil
	}

	jobs := make(chan string, len(candidates))
	results := make(chan entryOutcome, len(candidates))

	workers := l.concurrency
	if workers > len(candidates) {
		workers = len(candidates)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case rel, ok := <-jobs:
					if !ok {
						return
					}
					results <- l.syncEntry(ctx, pass, rel, candidates, untouched)
				}
			}
		}()
	}

	for _, rel := range candidates {
		jobs <- rel
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]entryOutcome, 0, len(candidates))
	for oc := range results {
		out = append(out, oc)
	}
	return out
}
