// Package metrics holds the Prometheus collectors exported by plugd.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NameSpace = "plugd"
	Subsystem = "engine"

	// ManifestFetchTime is a summary of the time taken to fetch one repository manifest
	ManifestFetchTime = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "manifest_fetch_duration_seconds"),
		Help: "Time taken to fetch a repository manifest",
	}, []string{"repository"})

	// ManifestFetchFailureCount counts failed repository fetches
	ManifestFetchFailureCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "manifest_fetch_error_count"),
		Help: "How many times fetching a repository manifest failed",
	}, []string{"repository"})

	// InstallStartedCount counts accepted installation requests
	InstallStartedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "install_started_count"),
		Help: "How many installations were started",
	}, []string{"package"})

	// InstallResultCount counts installations by terminal status
	InstallResultCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "install_result_count"),
		Help: "How many installations ended in a given status",
	}, []string{"package", "status"})

	// InstallRetryCount counts retried installation attempts
	InstallRetryCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "install_retry_count"),
		Help: "How many installation attempts were retried after a transient failure",
	}, []string{"package"})

	// InstallTime is a summary of the time taken by finished installations
	InstallTime = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "install_duration_seconds"),
		Help: "Time taken to install a package",
	}, []string{"package", "status"})

	// DownloadedBytes counts artifact bytes received
	DownloadedBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "downloaded_bytes"),
		Help: "How many artifact bytes were downloaded",
	}, []string{"package"})

	// ActiveInstalls is how many installation tasks are not yet terminal
	ActiveInstalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "active_installs"),
		Help: "How many installations are in progress",
	})

	registerOnce sync.Once
)

// RegisterMetrics registers all collectors with the default registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ManifestFetchTime)
		prometheus.MustRegister(ManifestFetchFailureCount)
		prometheus.MustRegister(InstallStartedCount)
		prometheus.MustRegister(InstallResultCount)
		prometheus.MustRegister(InstallRetryCount)
		prometheus.MustRegister(InstallTime)
		prometheus.MustRegister(DownloadedBytes)
		prometheus.MustRegister(ActiveInstalls)
	})
}

// Handler registers the collectors and returns the exposition handler.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
