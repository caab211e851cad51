package utils

import (
	"context"
	"sync"
)

type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunInPool runs worker over every item in queue with up to maxWorkers
// goroutines and sends each outcome to completed, which is closed once the
// queue is drained. The queue must already be closed by the caller. When ctx
// is cancelled the remaining queue items are reported as failures instead of
// being run.
func RunInPool[In any, Out any](ctx context.Context, worker func(In) (Out, error), queue chan In, completed chan CompletedTask[Out], maxWorkers int) {
	workers := min(len(queue), maxWorkers)

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for {
					next, ok := <-queue
					if !ok {
						return
					}

					if err := ctx.Err(); err != nil {
						completed <- CompletedTask[Out]{Error: err}
						continue
					}

					res, err := worker(next)
					if err != nil {
						completed <- CompletedTask[Out]{Error: err}
					} else {
						completed <- CompletedTask[Out]{Result: res, Error: nil}
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}
