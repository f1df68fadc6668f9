package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stridesync",
		Subsystem: "pipeline",
		Name:      "activities_synced_total",
		Help:      "Number of new activities upserted from the provider listing.",
	})

	enrichedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stridesync",
		Subsystem: "pipeline",
		Name:      "activities_enriched_total",
		Help:      "Number of activities enriched with zone and lap detail.",
	})

	enrichFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stridesync",
		Subsystem: "pipeline",
		Name:      "enrichment_failures_total",
		Help:      "Number of activities marked permanently failed during enrichment.",
	})

	runCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stridesync",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Full ingestion+enrichment runs by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(syncedCounter, enrichedCounter, enrichFailureCounter, runCounter)
}

func recordSynced(n int) {
	if n > 0 {
		syncedCounter.Add(float64(n))
	}
}

func recordEnriched() {
	enrichedCounter.Inc()
}

func recordEnrichFailure() {
	enrichFailureCounter.Inc()
}

func recordRun(outcome string) {
	runCounter.WithLabelValues(outcome).Inc()
}
