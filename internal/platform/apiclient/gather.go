package apiclient

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one independent fetch run by Gather.
type Task func(ctx context.Context) error

// Gather runs tasks concurrently and waits for all of them. The returned
// slice holds each task's error at the task's index. A failing task does not
// cancel the others. A panicking task is reported as an error.
func Gather(ctx context.Context, tasks ...Task) []error {
	errs := make([]error, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			errs[i] = task(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// FirstError returns the first non-nil error in errs.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
