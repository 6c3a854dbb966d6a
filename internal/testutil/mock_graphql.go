// Package testutil provides testing utilities for the harvester connectors.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

type route struct {
	match string
	resp  MockResponse
}

// MockGraphQL is a configurable mock GraphQL server. Requests are answered by
// the first registered route whose match string occurs in the query document.
type MockGraphQL struct {
	server *httptest.Server
	mu     sync.RWMutex
	routes []route

	// Tracking
	RequestCount      int
	Queries           []string
	LastRequestHeader http.Header
}

// NewMockGraphQL creates a new mock GraphQL server.
func NewMockGraphQL() *MockGraphQL {
	mock := &MockGraphQL{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			http.Error(w, "invalid GraphQL document", http.StatusBadRequest)
			return
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.Queries = append(mock.Queries, doc.Query)
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		resp, ok := mock.lookup(doc.Query)
		if !ok {
			http.Error(w, "no route for query", http.StatusNotFound)
			return
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Type", "application/json")

		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGraphQL) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGraphQL) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGraphQL) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Queries = nil
	m.LastRequestHeader = nil
}

// Handle registers a response for queries containing match.
func (m *MockGraphQL) Handle(match string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route{match: match, resp: resp})
}

// HandleJSON registers a 200 response with body for queries containing match.
func (m *MockGraphQL) HandleJSON(match, body string) {
	m.Handle(match, MockResponse{StatusCode: http.StatusOK, Body: body})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGraphQL) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetQueries returns a copy of the received query documents.
func (m *MockGraphQL) GetQueries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Queries...)
}

func (m *MockGraphQL) lookup(query string) (MockResponse, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.routes {
		if strings.Contains(query, r.match) {
			return r.resp, true
		}
	}
	return MockResponse{}, false
}
