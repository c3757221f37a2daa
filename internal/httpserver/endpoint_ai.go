package httpserver

import (
	"net/http"

	"github.com/tokligence/labgate/internal/httpserver/protocol"
)

type aiEndpoint struct {
	server *Server
}

func newAIEndpoint(server *Server) protocol.Endpoint {
	return &aiEndpoint{server: server}
}

func (e *aiEndpoint) Name() string { return "ai" }

// Routes puts every model-backed route behind admission control. The
// provider listing costs nothing and is not admitted.
func (e *aiEndpoint) Routes() []protocol.EndpointRoute {
	s := e.server
	admit := func(h http.HandlerFunc) http.Handler { return s.admission.Wrap(h) }
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/api/ai/architecture", Handler: admit(s.handleArchitecture)},
		{Method: http.MethodPost, Path: "/api/ai/flows", Handler: admit(s.handleFlows)},
		{Method: http.MethodPost, Path: "/api/ai/cost", Handler: admit(s.handleCost)},
		{Method: http.MethodPost, Path: "/api/ai/system-design", Handler: admit(s.handleSystemDesign)},
		{Method: http.MethodGet, Path: "/api/ai/providers", Handler: http.HandlerFunc(s.handleProviders)},
	}
}
