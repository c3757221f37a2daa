package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ArchitectureRequest is the body of POST /api/ai/architecture.
type ArchitectureRequest struct {
	AppIdea     string       `json:"appIdea" validate:"required,min=3,max=2000"`
	Constraints *Constraints `json:"constraints,omitempty"`
	SessionID   string       `json:"sessionId,omitempty" validate:"omitempty,uuid"`
	Provider    string       `json:"provider,omitempty" validate:"omitempty,oneof=openai anthropic"`
}

// Constraints narrow an architecture request.
type Constraints struct {
	Scale    string `json:"scale,omitempty"`
	Budget   string `json:"budget,omitempty"`
	TeamSize string `json:"teamSize,omitempty"`
}

// FlowRequest is the body of POST /api/ai/flows.
type FlowRequest struct {
	FeatureName string `json:"featureName" validate:"required,min=3,max=200"`
	Context     string `json:"context,omitempty" validate:"max=5000"`
	SessionID   string `json:"sessionId,omitempty" validate:"omitempty,uuid"`
	Provider    string `json:"provider,omitempty" validate:"omitempty,oneof=openai anthropic"`
}

// CostRequest is the body of POST /api/ai/cost.
type CostRequest struct {
	TrafficEstimate     string `json:"trafficEstimate" validate:"required,max=500"`
	AIUsagePattern      string `json:"aiUsagePattern,omitempty" validate:"max=5000"`
	CurrentArchitecture string `json:"currentArchitecture,omitempty" validate:"max=5000"`
	SessionID           string `json:"sessionId,omitempty" validate:"omitempty,uuid"`
	Provider            string `json:"provider,omitempty" validate:"omitempty,oneof=openai anthropic"`
}

// SystemDesignRequest is the body of POST /api/ai/system-design.
type SystemDesignRequest struct {
	BaseArchitecture string   `json:"baseArchitecture" validate:"required,min=3,max=5000"`
	Changes          *Changes `json:"changes,omitempty"`
	SessionID        string   `json:"sessionId,omitempty" validate:"omitempty,uuid"`
	Provider         string   `json:"provider,omitempty" validate:"omitempty,oneof=openai anthropic"`
}

// Changes are the proposed system design toggles. Nil means "not mentioned".
type Changes struct {
	Database string `json:"database,omitempty"`
	Cache    *bool  `json:"cache,omitempty"`
	Queue    *bool  `json:"queue,omitempty"`
	CDN      *bool  `json:"cdn,omitempty"`
}

// Issue is one failed field rule.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// RequestError lists every rule a request body failed.
type RequestError struct {
	Issues []Issue
}

func (e *RequestError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Path+": "+is.Message)
	}
	return strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Struct validates a request body. Failures come back as *RequestError.
func Struct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	out := &RequestError{Issues: make([]Issue, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Issues = append(out.Issues, Issue{Path: fieldPath(fe), Message: issueMessage(fe)})
	}
	return out
}

// fieldPath drops the leading struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed the " + fe.Tag() + " rule"
	}
}
