package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tokligence/labgate/internal/httpserver/protocol"
	"github.com/tokligence/labgate/internal/ledger"
	"github.com/tokligence/labgate/internal/usage"
)

const (
	defaultUsageLimit = 20
	maxUsageLimit     = 200
	archiveTimeout    = 2 * time.Second
)

type usageEndpoint struct {
	server *Server
}

func newUsageEndpoint(server *Server) protocol.Endpoint {
	return &usageEndpoint{server: server}
}

func (e *usageEndpoint) Name() string { return "usage" }

func (e *usageEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/api/ai/usage", Handler: http.HandlerFunc(e.server.handleUsage)},
	}
}

type usageResponse struct {
	Stats   usage.Stats     `json:"stats"`
	Recent  []usage.Entry   `json:"recent"`
	Archive *ledger.Summary `json:"archive,omitempty"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	limit := defaultUsageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondJSON(w, http.StatusBadRequest, errorBody{
				Error:   "Invalid request",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = min(n, maxUsageLimit)
	}

	resp := usageResponse{
		Stats:  s.usage.Stats(),
		Recent: s.usage.Recent(limit),
	}

	if s.ledger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), archiveTimeout)
		defer cancel()
		summary, err := s.ledger.Summary(ctx, "")
		if err != nil {
			s.logger.Printf("usage archive summary: %v", err)
		} else {
			resp.Archive = &summary
		}
	}

	s.respondJSON(w, http.StatusOK, resp)
}
