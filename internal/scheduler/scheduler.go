// Package scheduler runs batch entries over a fixed pool of workers.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/utils"
)

type Handler func(ctx context.Context, entry utils.BatchEntry) error

type Result struct {
	Succeeded int
	Failed    int
	Skipped   int // entries never started because ctx ended
}

// Run feeds entries to numWorkers workers and waits for all of them. A
// failing entry does not stop the others.
func Run(ctx context.Context, entries []utils.BatchEntry, numWorkers int, handle Handler) Result {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	jobCh := make(chan utils.BatchEntry, len(entries))
	for _, entry := range entries {
		jobCh <- entry
	}
	close(jobCh)

	var succeeded, failed, skipped atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for entry := range jobCh {
				if ctx.Err() != nil {
					skipped.Add(1)
					continue
				}
				if err := handle(ctx, entry); err != nil {
					failed.Add(1)
					log.Error().Str("op", "scheduler/run").Int("worker", workerID).Err(err).Msgf("entry failed: %s", entry.URL)
					continue
				}
				succeeded.Add(1)
				log.Debug().Str("op", "scheduler/run").Int("worker", workerID).Msgf("entry done: %s", entry.URL)
			}
		}(i)
	}
	wg.Wait()
	return Result{Succeeded: int(succeeded.Load()), Failed: int(failed.Load()), Skipped: int(skipped.Load())}
}
