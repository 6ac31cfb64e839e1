// Package taskstest provides a Dispatcher that records tasks.
package taskstest

import (
	"context"
	"sync"

	"github.com/programme-lv/disttester/internal/tasks"
)

type Recorder struct {
	mu    sync.Mutex
	tasks []tasks.Task
}

func (r *Recorder) Dispatch(ctx context.Context, t tasks.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	return nil
}

func (r *Recorder) Tasks() []tasks.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tasks.Task(nil), r.tasks...)
}

// OfKind returns the recorded tasks of kind k in dispatch order.
func (r *Recorder) OfKind(k tasks.Kind) []tasks.Task {
	var res []tasks.Task
	for _, t := range r.Tasks() {
		if t.Kind == k {
			res = append(res, t)
		}
	}
	return res
}
