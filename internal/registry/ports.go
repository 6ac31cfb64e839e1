package registry

import "github.com/programme-lv/disttester/internal/failures"

const (
	DefaultPortMin     = 10000
	DefaultPortMax     = 20000
	DefaultMaxAttempts = 1000
)

// AllocatePort reserves a random free port. The port stays reserved until
// Release is called or the record that carries it is removed.
func (r *Registry) AllocatePort() (int, error) {
	span := r.portMax - r.portMin + 1
	if span <= 0 || r.reserved.Cardinality() >= span {
		return 0, failures.Configf("port range exhausted: %d-%d", r.portMin, r.portMax)
	}
	for range r.maxAttempts {
		port := r.portMin + r.rng.IntN(span)
		if r.reserved.Contains(port) {
			continue
		}
		r.reserved.Add(port)
		return port, nil
	}
	return 0, failures.Configf("port range exhausted: no free port in %d-%d after %d attempts",
		r.portMin, r.portMax, r.maxAttempts)
}

// AllocatePorts reserves n ports. On failure nothing stays reserved.
func (r *Registry) AllocatePorts(n int) ([]int, error) {
	ports := make([]int, 0, n)
	for range n {
		p, err := r.AllocatePort()
		if err != nil {
			r.Release(ports...)
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func (r *Registry) Release(ports ...int) {
	for _, p := range ports {
		r.reserved.Remove(p)
	}
}
