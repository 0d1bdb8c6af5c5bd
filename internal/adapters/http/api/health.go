package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

// HealthHandler serves /healthz: the Prometheus exposition of the custom
// registry on GET, and an empty 200 on HEAD for load balancer probes.
type HealthHandler struct {
	exposition http.Handler
}

// NewHealthHandler binds the handler to the process-wide registry.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		exposition: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		}),
	}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.exposition.ServeHTTP(w, r)
}
