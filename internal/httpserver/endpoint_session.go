package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tokligence/labgate/internal/httpserver/protocol"
)

type sessionEndpoint struct {
	server *Server
}

func newSessionEndpoint(server *Server) protocol.Endpoint {
	return &sessionEndpoint{server: server}
}

func (e *sessionEndpoint) Name() string { return "sessions" }

func (e *sessionEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/api/ai/sessions/{id}", Handler: http.HandlerFunc(e.server.handleGetSession)},
		{Method: http.MethodDelete, Path: "/api/ai/sessions/{id}", Handler: http.HandlerFunc(e.server.handleDeleteSession)},
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		s.respondJSON(w, http.StatusNotFound, errorBody{Error: "Session not found"})
		return
	}
	s.respondJSON(w, http.StatusOK, sess)
}

// handleDeleteSession is idempotent: deleting an unknown id still answers 204.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
