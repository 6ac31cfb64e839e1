// Package metrics exposes Prometheus counters for grading runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "disttester"

var (
	ContainersStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "containers",
		Help:      "Number of containers launched",
		Name:      "started_total",
	})
	LaunchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "containers",
		Help:      "Number of container launches that failed",
		Name:      "launch_failures_total",
	})
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Help:      "Number of DSL commands run, by surface and outcome",
			Name:      "commands_total",
		},
		[]string{"surface", "outcome"},
	)
	Combinations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Help:      "Number of peer combinations tried, by outcome",
			Name:      "combinations_total",
		},
		[]string{"outcome"},
	)
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Help:      "Number of grading runs, by verdict",
			Name:      "total",
		},
		[]string{"verdict"},
	)
	Tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Help:      "Number of background task attempts, by kind and outcome",
			Name:      "attempts_total",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(ContainersStarted, LaunchFailures, Commands, Combinations, Runs, Tasks)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
