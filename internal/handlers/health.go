package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/linkup/backend/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports readiness. The database is critical; the other checks only mark the
// service degraded.
type HealthHandler struct {
	Database Pinger
	Checks   map[string]Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	body := map[string]string{"status": "ok"}
	status := http.StatusOK

	if h.Database != nil {
		if err := h.Database.Ping(ctx); err != nil {
			logger.Error("database ping failed", "error", err)
			body["database"] = "unreachable"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = "ok"
		}
	}

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.Checks[name].Ping(ctx); err != nil {
			logger.Warn("dependency ping failed", "dependency", name, "error", err)
			body[name] = "unreachable"
			body["status"] = "degraded"
			continue
		}
		body[name] = "ok"
	}

	respondJSON(r.Context(), w, status, body)
}
