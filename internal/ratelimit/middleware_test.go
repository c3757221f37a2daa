package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientID(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, want: "203.0.113.7"},
		{name: "forwarded single", headers: map[string]string{"X-Forwarded-For": " 198.51.100.2 "}, want: "198.51.100.2"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "192.0.2.4"}, want: "192.0.2.4"},
		{name: "forwarded wins", headers: map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "192.0.2.4"}, want: "203.0.113.7"},
		{name: "empty forwarded entry", headers: map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "192.0.2.4"}, want: "192.0.2.4"},
		{name: "no headers", want: UnknownClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/ai/architecture", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientID(r); got != tt.want {
				t.Errorf("ClientID() = %q, want %q", got, tt.want)
			}
		})
	}
}

type recordingObserver struct {
	decisions []Decision
}

func (o *recordingObserver) ObserveAdmission(d Decision) {
	o.decisions = append(o.decisions, d)
}

func TestMiddleware_DeniesWith429(t *testing.T) {
	g, _ := newTestGovernor(t, 2, 10)
	mw := NewMiddleware(g, true, nil)
	obs := &recordingObserver{}
	mw.SetObserver(obs)

	var seen []string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := ClientIDFromContext(r.Context())
		seen = append(seen, id)
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/ai/flows", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "3600" {
		t.Errorf("Retry-After = %q, want 3600", got)
	}
	if got := rec.Header().Get("X-RateLimit-Type"); got != "hourly" {
		t.Errorf("X-RateLimit-Type = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining-Hour"); got != "0" {
		t.Errorf("X-RateLimit-Remaining-Hour = %q", got)
	}

	var body deniedBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "Rate limit exceeded" || body.Limit != LimitHourly || body.RetryAfterSeconds != 3600 {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Remaining.Hourly != 0 || body.Remaining.Daily != 8 {
		t.Errorf("remaining = %+v, want {0 8}", body.Remaining)
	}

	if len(seen) != 2 || seen[0] != "203.0.113.7" {
		t.Errorf("handler saw client ids %v", seen)
	}
	if len(obs.decisions) != 3 || obs.decisions[2].Allowed {
		t.Errorf("observer got %+v", obs.decisions)
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	g, _ := newTestGovernor(t, 1, 1)
	mw := NewMiddleware(g, false, nil)

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if id, ok := ClientIDFromContext(r.Context()); !ok || id != UnknownClient {
			t.Errorf("client id = %q, %v", id, ok)
		}
	}))

	for i := 0; i < 5; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
	if g.Tracked() != 0 {
		t.Errorf("disabled middleware should not touch the governor")
	}
}
