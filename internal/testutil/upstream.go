package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
)

// Reply is one canned upstream response.
type Reply struct {
	Status int
	Body   string
}

// Upstream is a scripted model provider. Each request consumes the next
// reply; the final reply repeats once the script is exhausted.
type Upstream struct {
	*IPv4Server

	mu      sync.Mutex
	replies []Reply
	hits    int
	bodies  [][]byte
	headers []http.Header
}

// NewUpstream starts a scripted provider on the loopback interface.
func NewUpstream(t *testing.T, replies ...Reply) *Upstream {
	t.Helper()
	if len(replies) == 0 {
		t.Fatal("testutil: NewUpstream needs at least one reply")
	}
	u := &Upstream{replies: replies}
	u.IPv4Server = NewIPv4Server(t, http.HandlerFunc(u.serve))
	return u
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	u.mu.Lock()
	idx := min(u.hits, len(u.replies)-1)
	reply := u.replies[idx]
	u.hits++
	u.bodies = append(u.bodies, body)
	u.headers = append(u.headers, r.Header.Clone())
	u.mu.Unlock()

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply.Body)
}

// Hits returns the number of requests served.
func (u *Upstream) Hits() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits
}

// LastRequest decodes the most recent JSON request body.
func (u *Upstream) LastRequest(t *testing.T) map[string]any {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.bodies) == 0 {
		t.Fatal("testutil: upstream received no requests")
	}
	var out map[string]any
	if err := json.Unmarshal(u.bodies[len(u.bodies)-1], &out); err != nil {
		t.Fatalf("testutil: decode request body: %v", err)
	}
	return out
}

// LastHeader returns the headers of the most recent request.
func (u *Upstream) LastHeader() http.Header {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.headers) == 0 {
		return nil
	}
	return u.headers[len(u.headers)-1]
}
