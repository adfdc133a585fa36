// Package observ exposes process metrics through a Prometheus registry
// behind a small free-function API. A metric name must always be used with
// the same label keys; the first call fixes the label schema.
package observ

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.Mutex
	registry = prometheus.NewRegistry()
	counters = map[string]*prometheus.CounterVec{}
	gauges   = map[string]*prometheus.GaugeVec{}
	hists    = map[string]*prometheus.HistogramVec{}
)

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	mu.Lock()
	vec, ok := counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelKeys(labels))
		registry.MustRegister(vec)
		counters[name] = vec
	}
	mu.Unlock()
	vec.With(prometheus.Labels(labels)).Add(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	mu.Lock()
	vec, ok := gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelKeys(labels))
		registry.MustRegister(vec)
		gauges[name] = vec
	}
	mu.Unlock()
	vec.With(prometheus.Labels(labels)).Set(value)
}

func Observe(name string, value float64, labels map[string]string) {
	mu.Lock()
	vec, ok := hists[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Buckets: prometheus.DefBuckets,
		}, labelKeys(labels))
		registry.MustRegister(vec)
		hists[name] = vec
	}
	mu.Unlock()
	vec.With(prometheus.Labels(labels)).Observe(value)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
