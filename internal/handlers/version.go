package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"backup-timeline/internal/startup"
)

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONCode(w, http.StatusOK, startup.GetBuildInfo())
}

// MetricsHandler returns the Prometheus metrics handler
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
