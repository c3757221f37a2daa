package httpserver

import (
	"net/http"
	"time"

	"github.com/tokligence/labgate/internal/health"
	"github.com/tokligence/labgate/internal/httpserver/protocol"
	"github.com/tokligence/labgate/internal/version"
)

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) protocol.Endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string { return "health" }

func (e *healthEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/health", Handler: http.HandlerFunc(e.server.handleHealth)},
	}
}

type healthResponse struct {
	health.HealthStatus
	Build          version.Info `json:"build"`
	ActiveSessions int          `json:"activeSessions"`
	TrackedClients int          `json:"trackedClients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.HealthStatus{Status: health.StatusHealthy, Timestamp: time.Now()}
	if s.health != nil {
		status = s.health.Check(r.Context())
	}
	resp := healthResponse{
		HealthStatus:   status,
		Build:          version.Get(),
		ActiveSessions: s.sessions.Len(),
		TrackedClients: s.governor.Tracked(),
	}
	code := http.StatusOK
	if status.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, resp)
}
