package capi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoCache_ResolveFromV2Info(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/info", r.URL.Path)
		calls.Add(1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"vcap","api_version":"2.186.0","authorization_endpoint":"https://login.example.com/","token_endpoint":"https://uaa.example.com"}`))
	}))
	defer server.Close()

	cache := capi.NewInfoCache()
	ctx := context.Background()

	endpoint, err := cache.ResolveAuthorizationEndpoint(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://login.example.com", endpoint)

	info, err := cache.GetInfo(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "2.186.0", info.APIVersion)
	assert.Equal(t, "https://login.example.com/oauth/token", info.TokenURL())

	assert.Equal(t, int32(1), calls.Load())
}

func TestInfoCache_FallsBackToRootLinks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/info":
			w.WriteHeader(http.StatusNotFound)
		case "/":
			_, _ = w.Write([]byte(`{"links":{"login":{"href":"https://login.example.com"},"uaa":{"href":"https://uaa.example.com"}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	info, err := capi.NewInfoCache().GetInfo(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://login.example.com", info.AuthorizationEndpoint)
	assert.Equal(t, "https://uaa.example.com", info.TokenEndpoint)
}

func TestInfoCache_ConcurrentFirstUseSharesOneDiscovery(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"authorization_endpoint":"https://login.example.com"}`))
	}))
	defer server.Close()

	cache := capi.NewInfoCache()

	const workers = 20

	var (
		wg        sync.WaitGroup
		endpoints = make([]string, workers)
		errs      = make([]error, workers)
	)

	for i := range workers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			endpoints[i], errs[i] = cache.ResolveAuthorizationEndpoint(context.Background(), server.URL)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, "https://login.example.com", endpoints[i])
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestInfoCache_CancelledWaiterDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"authorization_endpoint":"https://login.example.com"}`))
	}))
	defer server.Close()

	cache := capi.NewInfoCache()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	first := make(chan error, 1)

	go func() {
		_, err := cache.GetInfo(ctx, server.URL)
		first <- err
	}()

	// Join the discovery the first caller started.
	time.Sleep(10 * time.Millisecond)

	info, err := cache.GetInfo(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://login.example.com", info.AuthorizationEndpoint)

	firstErr := <-first
	require.ErrorIs(t, firstErr, capi.ErrDiscovery)
	require.ErrorIs(t, firstErr, context.DeadlineExceeded)

	assert.Equal(t, int32(1), calls.Load())

	// The shared discovery was remembered despite the first caller giving up.
	_, err = cache.GetInfo(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInfoCache_KeyedByExactBaseURL(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"authorization_endpoint":"https://login.example.com"}`))
	}))
	defer server.Close()

	cache := capi.NewInfoCache()
	ctx := context.Background()

	_, err := cache.GetInfo(ctx, server.URL)
	require.NoError(t, err)
	_, err = cache.GetInfo(ctx, server.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestInfoCache_FailuresAreNotCached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"name":"no endpoint here"}`))

			return
		}

		_, _ = w.Write([]byte(`{"authorization_endpoint":"https://login.example.com"}`))
	}))
	defer server.Close()

	cache := capi.NewInfoCache()
	ctx := context.Background()

	_, err := cache.GetInfo(ctx, server.URL)
	require.ErrorIs(t, err, capi.ErrDiscovery)
	require.ErrorIs(t, err, capi.ErrNoAuthorizationEndpoint)

	endpoint, err := cache.ResolveAuthorizationEndpoint(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://login.example.com", endpoint)
}

func TestInfoCache_DiscoveryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "relative endpoint",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"authorization_endpoint":"/login"}`))
			},
		},
		{
			name: "malformed document",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "root without links",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/v2/info" {
					w.WriteHeader(http.StatusNotFound)

					return
				}

				_, _ = w.Write([]byte(`{"links":{}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := capi.NewInfoCache().GetInfo(context.Background(), server.URL)
			require.ErrorIs(t, err, capi.ErrDiscovery)
			assert.True(t, capi.IsFatal(err))
		})
	}
}

func TestInfoCache_Unreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	_, err := capi.NewInfoCache(capi.WithInfoHTTPClient(&http.Client{Timeout: time.Second})).
		GetInfo(context.Background(), baseURL)
	require.ErrorIs(t, err, capi.ErrDiscovery)
	require.ErrorIs(t, err, capi.ErrTransport)
}

func TestInfoCache_EmptyBaseURL(t *testing.T) {
	t.Parallel()

	_, err := capi.NewInfoCache().GetInfo(context.Background(), "")
	require.ErrorIs(t, err, capi.ErrConfiguration)
}

func TestInfoCache_Forget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"authorization_endpoint":"https://login.example.com"}`))
	}))
	defer server.Close()

	cache := capi.NewInfoCache()
	ctx := context.Background()

	_, err := cache.GetInfo(ctx, server.URL)
	require.NoError(t, err)
	require.NoError(t, cache.Forget(ctx, server.URL))
	_, err = cache.GetInfo(ctx, server.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestSharedInfoCache(t *testing.T) {
	t.Parallel()

	assert.Same(t, capi.SharedInfoCache(), capi.SharedInfoCache())
}
