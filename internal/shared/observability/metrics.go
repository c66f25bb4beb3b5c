package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ModulesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "declimp_modules_loaded_total",
		Help: "Total number of modules loaded through the registry.",
	})

	ModuleLoadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "declimp_module_load_failures_total",
		Help: "Total number of module loads that failed at the parse boundary.",
	}, []string{"kind"})

	RegistryModules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "declimp_registry_modules",
		Help: "Current number of modules known to the registry.",
	})

	DeclarationsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "declimp_declarations_resolved_total",
		Help: "Total number of declaration resolutions by outcome.",
	}, []string{"outcome"})

	ResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "declimp_resolution_seconds",
		Help:    "Time spent resolving a single declaration.",
		Buckets: prometheus.DefBuckets,
	})

	MemoHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "declimp_memo_hits_total",
		Help: "Total reference resolutions served from the memoization table.",
	})

	MemoMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "declimp_memo_misses_total",
		Help: "Total reference resolutions that walked scopes or the registry.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "declimp_graph_edges_total",
		Help: "Total number of recorded dependency edges.",
	})

	GraphSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "declimp_graph_sources_total",
		Help: "Number of declarations or instantiations with recorded edges.",
	})

	InstantiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "declimp_instantiations_total",
		Help: "Total generic instantiation attempts by outcome.",
	}, []string{"outcome"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "declimp_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
