// Package dockertest provides an in-memory docker.Runtime.
package dockertest

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/programme-lv/disttester/internal/docker"
	"github.com/programme-lv/disttester/internal/shell"
)

var nameRe = regexp.MustCompile(`--name\s+(\S+)`)

type Container struct {
	ID     string
	Name   string
	Launch string
	Execs  []string
}

// Fake records every call. Launch commands must carry "--name NAME".
type Fake struct {
	// LaunchFails makes a launch exit with status 125.
	LaunchFails func(launch string) bool
	// ExecFunc decides the outcome of Exec. The default exits 0.
	ExecFunc func(c *Container, command string) shell.Result

	mu       sync.Mutex
	seq      int
	live     map[string]*Container
	events   []string
	detached []string
}

var _ docker.Runtime = (*Fake)(nil)

func New() *Fake {
	return &Fake{live: map[string]*Container{}}
}

func (f *Fake) Start(ctx context.Context, launch string) (shell.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return shell.Result{ExitCode: -1}, err
	}
	m := nameRe.FindStringSubmatch(launch)
	if m == nil {
		return shell.Result{Output: []byte("missing --name"), ExitCode: 125}, nil
	}
	if f.LaunchFails != nil && f.LaunchFails(launch) {
		f.events = append(f.events, "fail "+m[1])
		return shell.Result{Output: []byte("Unable to find image"), ExitCode: 125}, nil
	}
	for _, c := range f.live {
		if c.Name == m[1] {
			return shell.Result{Output: []byte("Conflict. The container name is already in use"), ExitCode: 125}, nil
		}
	}
	f.seq++
	c := &Container{ID: fmt.Sprintf("c%03d", f.seq), Name: m[1], Launch: launch}
	f.live[c.ID] = c
	f.events = append(f.events, "start "+c.Name)
	return shell.Result{Output: []byte("pulling layers\n" + c.ID + "\n")}, nil
}

func (f *Fake) Stop(ctx context.Context, ref string, wait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(ref)
	if c == nil {
		return fmt.Errorf("no such container: %s", ref)
	}
	delete(f.live, c.ID)
	f.events = append(f.events, "stop "+c.Name)
	return nil
}

func (f *Fake) Exec(ctx context.Context, id string, command string) (shell.Result, error) {
	f.mu.Lock()
	c, ok := f.live[id]
	if ok {
		c.Execs = append(c.Execs, command)
	}
	fn := f.ExecFunc
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return shell.Result{ExitCode: -1}, err
	}
	if !ok {
		return shell.Result{Output: []byte("No such container: " + id), ExitCode: 1}, nil
	}
	if fn == nil {
		return shell.Result{}, nil
	}
	return fn(c, command), nil
}

func (f *Fake) ExecDetached(ctx context.Context, id string, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.live[id]
	if !ok {
		return fmt.Errorf("no such container: %s", id)
	}
	c.Execs = append(c.Execs, command)
	f.detached = append(f.detached, command)
	return nil
}

func (f *Fake) Inspect(ctx context.Context, ref string) (docker.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(ref) == nil {
		return docker.State{}, nil
	}
	return docker.State{Exists: true, Running: true}, nil
}

// Live returns the containers that are running, sorted by id.
func (f *Fake) Live() []*Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]*Container, 0, len(f.live))
	for _, c := range f.live {
		res = append(res, c)
	}
	slices.SortFunc(res, func(a, b *Container) int {
		return strings.Compare(a.ID, b.ID)
	})
	return res
}

// Events lists "start NAME", "stop NAME" and "fail NAME" in call order.
func (f *Fake) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

func (f *Fake) Detached() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.detached)
}

func (f *Fake) find(ref string) *Container {
	if c, ok := f.live[ref]; ok {
		return c
	}
	for _, c := range f.live {
		if c.Name == ref {
			return c
		}
	}
	return nil
}
