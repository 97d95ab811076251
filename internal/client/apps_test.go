package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAppsServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v3/apps/app-guid":
			_ = json.NewEncoder(w).Encode(capi.App{Resource: capi.Resource{GUID: "app-guid"}, Name: "my-app", State: "STARTED"})
		case "/v3/apps":
			result := capi.ListResponse[capi.App]{}
			if r.URL.Query().Get("names") == "my-app" {
				result.Pagination.TotalResults = 1
				result.Resources = []capi.App{{Resource: capi.Resource{GUID: "app-guid"}, Name: "my-app"}}
			}

			_ = json.NewEncoder(w).Encode(result)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[{"code":10010,"title":"CF-ResourceNotFound","detail":"App not found"}]}`))
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func TestAppsClient_Get(t *testing.T) {
	t.Parallel()

	server := newAppsServer(t)
	apps := NewAppsClient(internalhttp.NewClient(server.URL, nil), "")

	tests := []struct {
		name     string
		guid     string
		required bool
		wantApp  bool
		wantErr  error
	}{
		{name: "found", guid: "app-guid", required: true, wantApp: true},
		{name: "missing optional", guid: "missing", required: false},
		{name: "missing required", guid: "missing", required: true, wantErr: capi.ErrResourceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, err := apps.Get(context.Background(), tt.guid, tt.required)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, app)

				return
			}

			require.NoError(t, err)

			if tt.wantApp {
				require.NotNil(t, app)
				assert.Equal(t, "my-app", app.Name)
			} else {
				assert.Nil(t, app)
			}
		})
	}
}

func TestAppsClient_GetByName(t *testing.T) {
	t.Parallel()

	server := newAppsServer(t)
	apps := NewAppsClient(internalhttp.NewClient(server.URL, nil), "")

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		app, err := apps.GetByName(context.Background(), "my-app", true)
		require.NoError(t, err)
		assert.Equal(t, "app-guid", app.GUID)
	})

	t.Run("missing optional returns nil", func(t *testing.T) {
		t.Parallel()

		app, err := apps.GetByName(context.Background(), "missing", false)
		require.NoError(t, err)
		assert.Nil(t, app)
	})

	t.Run("missing required is not found", func(t *testing.T) {
		t.Parallel()

		app, err := apps.GetByName(context.Background(), "missing", true)
		require.ErrorIs(t, err, capi.ErrResourceNotFound)
		assert.True(t, capi.IsNotFound(err))
		assert.Contains(t, err.Error(), `"missing"`)
		assert.Nil(t, app)
	})
}

func TestAppsClient_GetByName_ScopedToSpace(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/apps", r.URL.Path)
		assert.Equal(t, "my-app", r.URL.Query().Get("names"))
		assert.Equal(t, "space-guid", r.URL.Query().Get("space_guids"))

		_ = json.NewEncoder(w).Encode(capi.ListResponse[capi.App]{})
	}))
	defer server.Close()

	apps := NewAppsClient(internalhttp.NewClient(server.URL, nil), "space-guid")

	app, err := apps.GetByName(context.Background(), "my-app", false)
	require.NoError(t, err)
	assert.Nil(t, app)
}

func TestAppsClient_List_PlatformError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"code":10003,"title":"CF-NotAuthorized","detail":"You are not authorized to perform the requested action"}]}`))
	}))
	defer server.Close()

	apps := NewAppsClient(internalhttp.NewClient(server.URL, nil), "")

	_, err := apps.GetByName(context.Background(), "my-app", false)
	require.ErrorIs(t, err, capi.ErrPlatform)
	assert.True(t, capi.IsForbidden(err))
}

func TestAppsClient_Get_MalformedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"guid":`))
	}))
	defer server.Close()

	apps := NewAppsClient(internalhttp.NewClient(server.URL, nil), "")

	_, err := apps.Get(context.Background(), "app-guid", true)
	require.ErrorIs(t, err, capi.ErrTransport)
	assert.True(t, capi.IsRetryable(err))
	assert.Contains(t, err.Error(), "malformed app response")

	_, err = apps.GetByName(context.Background(), "my-app", false)
	require.ErrorIs(t, err, capi.ErrTransport)
	assert.Contains(t, err.Error(), "malformed apps list response")
}
