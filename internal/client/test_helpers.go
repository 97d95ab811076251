package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// NewTestClient creates an unauthenticated client for baseURL with the default
// resource clients.
func NewTestClient(baseURL string) *Client {
	httpClient := internalhttp.NewClient(baseURL, nil)

	client := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		infoCache:  capi.NewInfoCache(),
	}

	client.initializeResourceClients(&capi.Config{})

	return client
}

// JobScript serves a fixed sequence of job states from /v3/jobs/{guid}; the
// last state repeats once the script is exhausted.
type JobScript struct {
	mu      sync.Mutex
	States  []capi.JobState
	Errors  []capi.APIError
	fetches int
}

// Fetches returns how many times the job was fetched.
func (s *JobScript) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fetches
}

// Handler serves the script for job guid.
func (s *JobScript) Handler(t *testing.T, guid string) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/jobs/"+guid {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)

			return
		}

		s.mu.Lock()
		index := min(s.fetches, len(s.States)-1)
		s.fetches++
		state := s.States[index]
		s.mu.Unlock()

		job := capi.Job{
			Resource:  capi.Resource{GUID: guid},
			Operation: "service_bindings.create",
			State:     state,
		}

		if state == capi.JobStateFailed {
			job.Errors = s.Errors
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(job)
	}
}

// NewJobServer starts a server for script and registers its shutdown.
func NewJobServer(t *testing.T, guid string, script *JobScript) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(script.Handler(t, guid))
	t.Cleanup(server.Close)

	return server
}

// writeAccepted answers with 202 and a Location pointing at job guid.
func writeAccepted(w http.ResponseWriter, guid string) {
	w.Header().Set("Location", "https://api.example.com/v3/jobs/"+guid)
	w.WriteHeader(http.StatusAccepted)
}
