package packager

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

type metrics struct {
	modulesBuilt     *prometheus.CounterVec
	moduleBytes      prometheus.Histogram
	symbolsPacked    prometheus.Counter
	symbolsDropped   prometheus.Counter
	demangleFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		modulesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ospp_modules_built_total",
			Help: "Modules built, by type and status.",
		}, []string{"type", "status"}),
		moduleBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ospp_module_size_bytes",
			Help:    "Size of the modules written, including header and trailer.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		symbolsPacked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ospp_debugsym_symbols_total",
			Help: "Function symbols written to debug symbol modules.",
		}),
		symbolsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ospp_debugsym_symbols_dropped_total",
			Help: "Non-function symbols skipped while building debug symbol modules.",
		}),
		demangleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ospp_debugsym_demangle_failures_total",
			Help: "Symbol names that could not be demangled and were kept raw.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.modulesBuilt,
			m.moduleBytes,
			m.symbolsPacked,
			m.symbolsDropped,
			m.demangleFailures,
		)
	}
	return m
}
