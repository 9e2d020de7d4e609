package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level counters, registered via promauto — one global registry,
// no per-instance wiring required by callers.
var (
	DeploysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hometree_deploys_total",
		Help: "Total deploy operations attempted.",
	})

	DeployFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hometree_deploy_failures_total",
		Help: "Total deploy operations that failed.",
	})

	WatcherStagedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hometree_watcher_staged_total",
		Help: "Total paths staged by the watcher.",
	})

	WatcherRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hometree_watcher_rejected_total",
		Help: "Total watcher events not staged, by reason.",
	}, []string{"reason"})

	IPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hometree_ipc_requests_total",
		Help: "Total control-socket requests, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
)

// Handler returns a Prometheus scrape handler over the default registry
// these counters are registered in. No command in this repository mounts
// it; neither the IPC socket nor any other listener serves it.
func Handler() http.Handler {
	return promhttp.Handler()
}
