// Package metrics provides a thin in-process prometheus.Registry for
// verbose-mode operation counters. Each cdxt subcommand builds its own
// Registry, increments the counters that apply to it from the Stats
// its operation returns, and dumps the result as plain text when
// --verbose is set. There is intentionally no HTTP exposition endpoint.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry bundles the counters a single CLI invocation cares about.
// One Registry is created per command run; it is never shared across
// goroutines outside of the counters' own thread-safe Add/Inc methods.
type Registry struct {
	reg *prometheus.Registry

	LinesProcessed prometheus.Counter
	LinesDropped   prometheus.Counter
	ChunksWritten  prometheus.Counter
	ShardsWritten  prometheus.Counter
	Errors         prometheus.Counter
}

// New constructs a Registry with the counters wired and registered
// under the given namespace (e.g. "merge", "zipnum_encode").
func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		LinesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lines_processed_total",
			Help: "Total CDXJ lines processed.",
		}),
		LinesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lines_dropped_total",
			Help: "Total CDXJ lines dropped by a filter.",
		}),
		ChunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chunks_written_total",
			Help: "Total ZipNum chunks written.",
		}),
		ShardsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "shards_written_total",
			Help: "Total ZipNum shards written.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Total errors encountered.",
		}),
	}

	reg.MustRegister(r.LinesProcessed, r.LinesDropped, r.ChunksWritten, r.ShardsWritten, r.Errors)

	return r
}

// DumpText renders every registered metric family as "name value" lines
// to w, for verbose-mode stderr output. It intentionally avoids the
// full Prometheus text-exposition format (no HELP/TYPE lines, no HTTP
// handler) since there is no scrape endpoint to be compatible with.
func (r *Registry) DumpText(w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return err
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if _, err := fmt.Fprintf(w, "%s %s\n", mf.GetName(), formatMetric(m)); err != nil {
				return err
			}
		}
	}

	return nil
}

func formatMetric(m *dto.Metric) string {
	switch {
	case m.GetCounter() != nil:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case m.GetGauge() != nil:
		return fmt.Sprintf("%g", m.GetGauge().GetValue())
	default:
		return ""
	}
}
