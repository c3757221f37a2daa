package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tokligence/labgate/internal/adapter"
	"github.com/tokligence/labgate/internal/prompts"
	"github.com/tokligence/labgate/internal/ratelimit"
	"github.com/tokligence/labgate/internal/session"
	"github.com/tokligence/labgate/internal/validation"
)

// featureCall is one decoded and validated AI request.
type featureCall struct {
	feature   string
	input     string
	sessionID string
	provider  string
	system    string
	// metadata seeds a newly created session.
	metadata map[string]any
	// userMessage renders the turn stored in the session.
	userMessage func(sanitized string) string
	prompt      func(sanitized string, history []session.Message) string
}

type aiResponse struct {
	Success    bool                `json:"success"`
	Data       json.RawMessage     `json:"data"`
	SessionID  string              `json:"sessionId"`
	TokensUsed *int                `json:"tokensUsed,omitempty"`
	Provider   adapter.Provider    `json:"provider"`
	Remaining  ratelimit.Remaining `json:"remaining"`
}

type unparsedData struct {
	Error       string `json:"error"`
	RawResponse string `json:"rawResponse"`
}

func (s *Server) handleArchitecture(w http.ResponseWriter, r *http.Request) {
	var req validation.ArchitectureRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	var constraints *prompts.Constraints
	var meta map[string]any
	if req.Constraints != nil {
		constraints = &prompts.Constraints{Scale: req.Constraints.Scale, Budget: req.Constraints.Budget, TeamSize: req.Constraints.TeamSize}
		meta = map[string]any{"constraints": req.Constraints}
	}
	s.runFeature(w, r, featureCall{
		feature:     "architecture",
		input:       req.AppIdea,
		sessionID:   req.SessionID,
		provider:    req.Provider,
		system:      prompts.ArchitectureSystem,
		metadata:    meta,
		userMessage: func(in string) string { return in },
		prompt: func(in string, history []session.Message) string {
			return prompts.Architecture(in, constraints, history)
		},
	})
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	var req validation.FlowRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	s.runFeature(w, r, featureCall{
		feature:   "flows",
		input:     req.FeatureName,
		sessionID: req.SessionID,
		provider:  req.Provider,
		system:    prompts.FlowSystem,
		userMessage: func(in string) string {
			if req.Context != "" {
				return in + "\n\nContext: " + req.Context
			}
			return in
		},
		prompt: prompts.Flow,
	})
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	var req validation.CostRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	meta := map[string]any{"trafficEstimate": req.TrafficEstimate}
	if req.AIUsagePattern != "" {
		meta["aiUsagePattern"] = req.AIUsagePattern
	}
	if req.CurrentArchitecture != "" {
		meta["currentArchitecture"] = req.CurrentArchitecture
	}
	s.runFeature(w, r, featureCall{
		feature:   "cost",
		input:     req.TrafficEstimate,
		sessionID: req.SessionID,
		provider:  req.Provider,
		system:    prompts.CostSystem,
		metadata:  meta,
		userMessage: func(in string) string {
			var b strings.Builder
			b.WriteString("Traffic: " + in)
			if req.AIUsagePattern != "" {
				b.WriteString("\nAI Usage: " + req.AIUsagePattern)
			}
			if req.CurrentArchitecture != "" {
				b.WriteString("\nArchitecture: " + req.CurrentArchitecture)
			}
			return b.String()
		},
		prompt: func(in string, history []session.Message) string {
			return prompts.Cost(in, req.AIUsagePattern, req.CurrentArchitecture, history)
		},
	})
}

func (s *Server) handleSystemDesign(w http.ResponseWriter, r *http.Request) {
	var req validation.SystemDesignRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	var changes *prompts.Changes
	var meta map[string]any
	changesJSON := ""
	if req.Changes != nil {
		changes = &prompts.Changes{Database: req.Changes.Database, Cache: req.Changes.Cache, Queue: req.Changes.Queue, CDN: req.Changes.CDN}
		meta = map[string]any{"changes": req.Changes}
		if raw, err := json.MarshalIndent(req.Changes, "", "  "); err == nil {
			changesJSON = string(raw)
		}
	}
	s.runFeature(w, r, featureCall{
		feature:   "system-design",
		input:     req.BaseArchitecture,
		sessionID: req.SessionID,
		provider:  req.Provider,
		system:    prompts.SystemDesignSystem,
		metadata:  meta,
		userMessage: func(in string) string {
			if changesJSON != "" {
				return "Base architecture: " + in + "\nChanges: " + changesJSON
			}
			return "Base architecture: " + in
		},
		prompt: func(in string, history []session.Message) string {
			return prompts.SystemDesign(in, changes, history)
		},
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	available := s.gateway.AvailableProviders()
	if available == nil {
		available = []adapter.Provider{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"available": available,
		"default":   s.defaultProvider,
	})
}

// decodeRequest decodes and validates the body, answering 400 itself when
// either step fails.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, w, dst); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Invalid request",
			Message: "Request body must be a valid JSON object",
		})
		return false
	}
	if err := validation.Struct(dst); err != nil {
		var reqErr *validation.RequestError
		if errors.As(err, &reqErr) {
			s.respondJSON(w, http.StatusBadRequest, errorBody{
				Error:   "Invalid request",
				Message: reqErr.Error(),
				Details: reqErr.Issues,
			})
			return false
		}
		s.logger.Printf("validate %s: %v", r.URL.Path, err)
		s.respondError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		return false
	}
	return true
}

// runFeature drives one AI request: screen the input, resolve the session,
// record the user turn, call the model, record the reply and answer.
func (s *Server) runFeature(w http.ResponseWriter, r *http.Request, fc featureCall) {
	sanitized := validation.Sanitize(fc.input)
	if err := s.guard.ValidatePrompt(sanitized); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid input", Message: err.Error()})
		return
	}

	sessionID := s.resolveSession(fc.sessionID, fc.metadata)
	s.sessions.AddMessage(sessionID, session.RoleUser, fc.userMessage(sanitized))
	history := s.sessions.Messages(sessionID)
	prompt := fc.prompt(sanitized, history)

	provider := s.defaultProvider
	if fc.provider != "" {
		provider = adapter.Provider(fc.provider)
	}

	s.debugf("%s request_id=%s session=%s provider=%s history=%d", fc.feature, middleware.GetReqID(r.Context()), sessionID, provider, len(history))

	result, err := s.gateway.Generate(r.Context(), prompt, provider, fc.system)
	if err != nil {
		s.respondGenerateError(w, r, fc.feature, provider, err)
		return
	}

	s.sessions.AddMessage(sessionID, session.RoleAssistant, result.Content)

	s.respondJSON(w, http.StatusOK, aiResponse{
		Success:    true,
		Data:       modelData(result.Content),
		SessionID:  sessionID,
		TokensUsed: result.TokensUsed,
		Provider:   result.Provider,
		Remaining:  s.governor.Remaining(requestClientID(r)),
	})
}

// resolveSession returns id when it names a live session, otherwise a new
// session seeded with metadata.
func (s *Server) resolveSession(id string, metadata map[string]any) string {
	if id != "" {
		if _, ok := s.sessions.Get(id); ok {
			return id
		}
		s.debugf("session %s not found or expired, starting a new one", id)
	}
	return s.sessions.Create(metadata)
}

// modelData returns the model's JSON payload, or a parse-failure object
// carrying the raw text.
func modelData(content string) json.RawMessage {
	if data, err := prompts.ExtractJSON(content); err == nil {
		return data
	}
	raw, err := json.Marshal(unparsedData{Error: prompts.ErrNoJSON.Error(), RawResponse: content})
	if err != nil {
		return json.RawMessage(`null`)
	}
	return raw
}

func requestClientID(r *http.Request) string {
	if id, ok := ratelimit.ClientIDFromContext(r.Context()); ok {
		return id
	}
	return ratelimit.ClientID(r)
}

func joinProviders(ps []adapter.Provider) string {
	if len(ps) == 0 {
		return "none"
	}
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
