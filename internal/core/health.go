package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the database probe so a wedged pool cannot hang
// the health endpoint.
const healthCheckTimeout = 2 * time.Second

// componentStatus is the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON body of the health endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth probes the database and reports overall service health.
// Returns 200 when healthy, 503 when the database is unreachable. The
// endpoint is public and mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := make(map[string]componentStatus, 1)
	if err := s.DB.Ping(ctx); err != nil {
		components["database"] = componentStatus{Status: "unhealthy", Message: err.Error()}
		JSON(w, r, http.StatusServiceUnavailable, healthResponse{
			Status:     "unhealthy",
			Components: components,
		})
		return
	}

	components["database"] = componentStatus{Status: "healthy"}
	JSON(w, r, http.StatusOK, healthResponse{
		Status:     "healthy",
		Components: components,
	})
}
