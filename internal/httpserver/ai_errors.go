package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tokligence/labgate/internal/adapter"
	"github.com/tokligence/labgate/internal/gateway"
)

// statusClientClosedRequest is logged when the caller goes away mid-call.
const statusClientClosedRequest = 499

// respondGenerateError maps a gateway failure onto an HTTP answer. Upstream
// error text is logged but never echoed, except for invalid-request
// rejections whose message helps the caller fix the input.
func (s *Server) respondGenerateError(w http.ResponseWriter, r *http.Request, feature string, preferred adapter.Provider, err error) {
	reqID := middleware.GetReqID(r.Context())

	if errors.Is(r.Context().Err(), context.Canceled) {
		s.debugf("%s request_id=%s canceled by client", feature, reqID)
		w.WriteHeader(statusClientClosedRequest)
		return
	}

	s.logger.Printf("%s request_id=%s generate failed: %v", feature, reqID, err)

	switch {
	case errors.Is(err, gateway.ErrNotConfigured):
		available := s.gateway.AvailableProviders()
		if available == nil {
			available = []adapter.Provider{}
		}
		s.respondJSON(w, http.StatusBadRequest, providerErrorBody{
			Error:              "Provider not available",
			Message:            fmt.Sprintf("Provider '%s' is not configured. Available: %s", preferred, joinProviders(available)),
			AvailableProviders: available,
		})
	case errors.Is(err, gateway.ErrRateLimited):
		s.respondJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:   "AI service busy",
			Message: "The model provider is rate limiting requests. Please try again shortly.",
		})
	case errors.Is(err, gateway.ErrAuthentication):
		s.respondJSON(w, http.StatusBadGateway, errorBody{
			Error:   "AI service unavailable",
			Message: "The model provider rejected the configured credentials.",
		})
	case errors.Is(err, gateway.ErrInvalidRequest):
		msg := "The model provider rejected the request."
		var ae *adapter.Error
		if errors.As(err, &ae) && ae.Message != "" {
			msg = ae.Message
		}
		s.respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: msg})
	case errors.Is(err, gateway.ErrTimeout):
		s.respondJSON(w, http.StatusGatewayTimeout, errorBody{
			Error:   "AI service timeout",
			Message: "The model did not answer in time. Please try again.",
		})
	case errors.Is(err, gateway.ErrProviderUnavailable), errors.Is(err, gateway.ErrTransient):
		s.respondJSON(w, http.StatusBadGateway, errorBody{
			Error:   "AI service unavailable",
			Message: "The model provider could not be reached. Please try again.",
		})
	default:
		s.respondJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Internal server error",
			Message: "Unknown error occurred",
		})
	}
}
