package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// RecordedRequest is one request observed by FakeBackend.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is the JSON body decoded with UseNumber, or nil if empty.
	Body any
}

// Route returns "METHOD /path".
func (r RecordedRequest) Route() string {
	return r.Method + " " + r.Path
}

// BodyMap returns Body as an object, or nil.
func (r RecordedRequest) BodyMap() map[string]any {
	m, _ := r.Body.(map[string]any)
	return m
}

// Response is a canned backend reply.
type Response struct {
	Status int
	Body   any
	Header map[string]string
}

// OK wraps data in the backend's success envelope.
func OK(data any) Response {
	return Response{Status: http.StatusOK, Body: map[string]any{"success": true, "data": data}}
}

// Fail builds an error envelope with the given status.
func Fail(status int, code, message string) Response {
	return Response{Status: status, Body: map[string]any{"success": false, "code": code, "message": message}}
}

// EmptyCartData is the data payload of an empty cart.
func EmptyCartData() map[string]any {
	return map[string]any{"items": []any{}, "totals": map[string]any{}}
}

// FakeBackend is an httptest server that records requests and replays canned
// responses per route. Routes without a queued response answer 200 with an
// empty cart envelope.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	queues   map[string][]Response
}

// NewFakeBackend starts a backend closed at test cleanup.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()
	fb := &FakeBackend{queues: make(map[string][]Response)}
	fb.Server = httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(fb.Server.Close)
	return fb
}

// URL returns the server base URL.
func (fb *FakeBackend) URL() string {
	return fb.Server.URL
}

// On queues responses for route ("METHOD /path"). Responses are consumed in
// order; the last one repeats once the queue is drained.
func (fb *FakeBackend) On(route string, responses ...Response) *FakeBackend {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.queues[route] = append(fb.queues[route], responses...)
	return fb
}

// Requests returns a copy of every recorded request in arrival order.
func (fb *FakeBackend) Requests() []RecordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]RecordedRequest, len(fb.requests))
	copy(out, fb.requests)
	return out
}

// Count returns how many requests hit route.
func (fb *FakeBackend) Count(route string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, r := range fb.requests {
		if r.Route() == route {
			n++
		}
	}
	return n
}

// Last returns the most recent request to route.
func (fb *FakeBackend) Last(route string) (RecordedRequest, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := len(fb.requests) - 1; i >= 0; i-- {
		if fb.requests[i].Route() == route {
			return fb.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

// Reset forgets recorded requests. Queued responses are kept.
func (fb *FakeBackend) Reset() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.requests = nil
}

func (fb *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body any
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		_ = dec.Decode(&body)
	}

	rec := RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	}

	fb.mu.Lock()
	fb.requests = append(fb.requests, rec)
	resp := OK(EmptyCartData())
	if q := fb.queues[rec.Route()]; len(q) > 0 {
		resp = q[0]
		if len(q) > 1 {
			fb.queues[rec.Route()] = q[1:]
		}
	}
	fb.mu.Unlock()

	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != nil {
		_ = json.NewEncoder(w).Encode(resp.Body)
	}
}
