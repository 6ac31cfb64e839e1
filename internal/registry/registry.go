// Package registry tracks the containers a grading run has started and the
// host ports they hold.
package registry

import (
	"fmt"
	"math/rand/v2"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

const ControllerName = "controller"

type Record struct {
	ID    string
	Name  string
	Ports []int
}

type Registry struct {
	records    []*Record
	controller *Record
	reserved   mapset.Set[int]

	portMin     int
	portMax     int
	maxAttempts int
	rng         *rand.Rand
}

type Option func(*Registry)

// WithPortRange limits allocation to [lo, hi].
func WithPortRange(lo, hi int) Option {
	return func(r *Registry) {
		r.portMin, r.portMax = lo, hi
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *Registry) {
		r.maxAttempts = n
	}
}

// WithSeed makes allocation reproducible.
func WithSeed(seed uint64) Option {
	return func(r *Registry) {
		r.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		reserved:    mapset.NewThreadUnsafeSet[int](),
		portMin:     DefaultPortMin,
		portMax:     DefaultPortMax,
		maxAttempts: DefaultMaxAttempts,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a started replica. Its ports must either be free or have
// been handed out by AllocatePort.
func (r *Registry) Add(rec *Record) error {
	if rec.Name == ControllerName {
		return fmt.Errorf("%s has its own slot", ControllerName)
	}
	if r.Get(rec.Name) != nil {
		return fmt.Errorf("container %s is already registered", rec.Name)
	}
	if err := r.claim(rec); err != nil {
		return err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *Registry) Get(name string) *Record {
	if name == ControllerName {
		return r.controller
	}
	for _, rec := range r.records {
		if rec.Name == name {
			return rec
		}
	}
	return nil
}

// Remove drops the replica and releases its ports.
func (r *Registry) Remove(name string) bool {
	for i, rec := range r.records {
		if rec.Name == name {
			r.Release(rec.Ports...)
			r.records = slices.Delete(r.records, i, i+1)
			return true
		}
	}
	return false
}

// Count returns the number of registered replicas.
func (r *Registry) Count() int {
	return len(r.records)
}

// Replicas returns the registered replicas in the order they were added.
func (r *Registry) Replicas() []*Record {
	return slices.Clone(r.records)
}

// Clear forgets every record, the controller included, and every port.
func (r *Registry) Clear() {
	r.records = nil
	r.controller = nil
	r.reserved.Clear()
}

func (r *Registry) SetController(rec *Record) error {
	if r.controller != nil {
		return fmt.Errorf("controller %s is still registered", r.controller.ID)
	}
	if err := r.claim(rec); err != nil {
		return err
	}
	rec.Name = ControllerName
	r.controller = rec
	return nil
}

func (r *Registry) Controller() *Record {
	return r.controller
}

func (r *Registry) RemoveController() bool {
	if r.controller == nil {
		return false
	}
	r.Release(r.controller.Ports...)
	r.controller = nil
	return true
}

// Reserved reports whether port is held by a record or a pending launch.
func (r *Registry) Reserved(port int) bool {
	return r.reserved.Contains(port)
}

func (r *Registry) claim(rec *Record) error {
	for _, p := range rec.Ports {
		if r.owner(p) != nil {
			return fmt.Errorf("port %d of %s is used by %s", p, rec.Name, r.owner(p).Name)
		}
	}
	for _, p := range rec.Ports {
		r.reserved.Add(p)
	}
	return nil
}

func (r *Registry) owner(port int) *Record {
	all := r.records
	if r.controller != nil {
		all = append(slices.Clone(all), r.controller)
	}
	for _, rec := range all {
		if slices.Contains(rec.Ports, port) {
			return rec
		}
	}
	return nil
}
