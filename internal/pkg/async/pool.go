// Package async runs independent units of work on a bounded set of goroutines.
package async

import (
	"context"
	"sync"
)

type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

type Result[T any] struct {
	Name string
	Data T
	Err  error
}

type Pool[T any] struct {
	workerCount int
}

// NewPool creates a pool running at most workerCount tasks at once.
func NewPool[T any](workerCount int) *Pool[T] {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool[T]{workerCount: workerCount}
}

// Execute runs every task and returns one result per task, in task order.
// Tasks still queued when ctx is cancelled report ctx.Err() instead of running.
func (p *Pool[T]) Execute(ctx context.Context, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := min(p.workerCount, len(tasks))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				task := tasks[idx]
				if err := ctx.Err(); err != nil {
					results[idx] = Result[T]{Name: task.Name, Err: err}
					continue
				}
				data, err := task.Run(ctx)
				results[idx] = Result[T]{Name: task.Name, Data: data, Err: err}
			}
		}()
	}

	for idx := range tasks {
		indexes <- idx
	}
	close(indexes)

	wg.Wait()
	return results
}
