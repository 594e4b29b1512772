// Package metrics exposes Prometheus counters for submissions and exports.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every formlink collector plus the Go runtime collectors
	Registry = prometheus.NewRegistry()

	submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formlink",
		Name:      "submissions_total",
		Help:      "Form submissions by outcome.",
	}, []string{"outcome"})

	exports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formlink",
		Name:      "exports_total",
		Help:      "Group exports by artifact kind.",
	}, []string{"kind"})

	exportSkippedPhotos = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "formlink",
		Name:      "export_skipped_photos_total",
		Help:      "Forms left out of photo archives because their image was missing.",
	})

	linksIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formlink",
		Name:      "links_issued_total",
		Help:      "Links issued by kind.",
	}, []string{"kind"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		submissions,
		exports,
		exportSkippedPhotos,
		linksIssued,
	)
}

// ObserveSubmission counts one submission attempt
func ObserveSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// ObserveExport counts one generated export artifact
func ObserveExport(kind string) {
	exports.WithLabelValues(kind).Inc()
}

// ObserveSkippedPhotos counts photos missing from an archive
func ObserveSkippedPhotos(n int) {
	if n > 0 {
		exportSkippedPhotos.Add(float64(n))
	}
}

// ObserveLinkIssued counts one issued link
func ObserveLinkIssued(kind string) {
	linksIssued.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
