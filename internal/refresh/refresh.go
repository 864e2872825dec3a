package refresh

import (
	"context"
	"fmt"
	"sync"
)

// Task is one out-of-band cache refresh unit. Tasks own the write paths
// that bypass the read-through cache (StoreWithMetadata and the direct
// dataset fetches).
type Task struct {
	// Name identifies the task in output, e.g. refresh:global
	Name string

	// Run performs the refresh
	Run func(ctx context.Context) error
}

// Result is the outcome of one task, sent from worker goroutines to the
// collecting loop.
type Result struct {
	Name string
	Err  error
}

// Runner executes refresh tasks concurrently and aggregates results
type Runner struct {
	tasks []Task
}

// New creates a new Runner with the given tasks
func New(tasks []Task) *Runner {
	return &Runner{
		tasks: tasks,
	}
}

// Run executes all tasks concurrently and prints results to stdout
// Each task runs in its own goroutine and sends its result to a shared
// channel. Results are printed as they arrive in the format:
//   - Success: "NAME: ok"
//   - Error: "NAME: ERROR - error message"
//
// Run returns an error when no tasks are configured or any task failed.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.tasks) == 0 {
		return fmt.Errorf("no refresh tasks configured")
	}

	// Create a channel for collecting results
	resultChan := make(chan Result, len(r.tasks))

	// WaitGroup to track all worker goroutines
	var wg sync.WaitGroup

	// Launch a goroutine for each task
	for _, t := range r.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			resultChan <- Result{
				Name: task.Name,
				Err:  task.Run(ctx),
			}
		}(t)
	}

	// Close the result channel when all workers are done
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect and print results as they arrive
	failed := 0
	for result := range resultChan {
		if result.Err != nil {
			failed++
			fmt.Printf("%s: ERROR - %v\n", result.Name, result.Err)
		} else {
			fmt.Printf("%s: ok\n", result.Name)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d refresh tasks failed", failed, len(r.tasks))
	}
	return nil
}
