// Package metrics wraps prometheus instrumentation behind a narrow
// Scope seam, the same pattern bdns.NewDNSResolverImpl uses in
// Boulder so that resolver and checker code never names a metrics
// library directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scope is the subset of instrumentation the DNS resolver needs:
// counters and latency histograms, each looked up by name and keyed
// by labels.
type Scope interface {
	Inc(name string, labels prometheus.Labels)
	Observe(name string, labels prometheus.Labels, seconds float64)
}

type promScope struct {
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPromScope builds a Scope registered against reg. counterSpecs and
// histogramSpecs name the metrics this process actually emits;
// unregistered names passed to Inc/Observe are silently dropped rather
// than panicking, so a checker can be wired against a Scope that
// wasn't configured to track every label it might ever emit.
func NewPromScope(reg prometheus.Registerer, counterSpecs map[string][]string, histogramSpecs map[string][]string) Scope {
	s := &promScope{
		counters:   make(map[string]*prometheus.CounterVec, len(counterSpecs)),
		histograms: make(map[string]*prometheus.HistogramVec, len(histogramSpecs)),
	}
	for name, labels := range counterSpecs {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labels)
		reg.MustRegister(cv)
		s.counters[name] = cv
	}
	for name, labels := range histogramSpecs {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labels)
		reg.MustRegister(hv)
		s.histograms[name] = hv
	}
	return s
}

func (s *promScope) Inc(name string, labels prometheus.Labels) {
	if cv, ok := s.counters[name]; ok {
		cv.With(labels).Inc()
	}
}

func (s *promScope) Observe(name string, labels prometheus.Labels, seconds float64) {
	if hv, ok := s.histograms[name]; ok {
		hv.With(labels).Observe(seconds)
	}
}

// NoopScope is a Scope that discards everything, used by tests and by
// callers that don't care to wire a registry.
func NoopScope() Scope { return noopScope{} }

type noopScope struct{}

func (noopScope) Inc(string, prometheus.Labels)            {}
func (noopScope) Observe(string, prometheus.Labels, float64) {}
