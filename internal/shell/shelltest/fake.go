// Package shelltest provides a scripted shell.Runner.
package shelltest

import (
	"context"
	"slices"
	"sync"

	"github.com/programme-lv/disttester/internal/shell"
)

type Fake struct {
	// RunFunc decides the outcome of Run. The default exits 0.
	RunFunc func(command string) shell.Result

	mu      sync.Mutex
	ran     []string
	started []string
}

var _ shell.Runner = (*Fake)(nil)

func (f *Fake) Run(ctx context.Context, command string) (shell.Result, error) {
	f.mu.Lock()
	f.ran = append(f.ran, command)
	fn := f.RunFunc
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return shell.Result{ExitCode: -1}, err
	}
	if fn == nil {
		return shell.Result{}, nil
	}
	return fn(command), nil
}

func (f *Fake) Start(ctx context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, command)
	return nil
}

func (f *Fake) Ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ran)
}

func (f *Fake) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.started)
}
