package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeTestConfig resets viper and writes a config file holding apis.
func writeTestConfig(t *testing.T, current string, apis map[string]*APIConfig) string {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	configFile := filepath.Join(t.TempDir(), "config.yml")

	data, err := yaml.Marshal(&Config{APIs: apis, CurrentAPI: current})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, data, constants.ConfigFilePerm))

	return configFile
}

func runCLI(t *testing.T, configFile string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand("1.2.3", "abc123", "2026-01-01")

	var out bytes.Buffer

	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configFile}, args...))

	err := root.Execute()

	return out.String(), err
}

func readTestConfig(t *testing.T, configFile string) *Config {
	t.Helper()

	data, err := os.ReadFile(configFile)
	require.NoError(t, err)

	var config Config
	require.NoError(t, yaml.Unmarshal(data, &config))

	return &config
}

func storedAPI(endpoint string) *APIConfig {
	expiresAt := time.Now().Add(time.Hour)

	return &APIConfig{
		Endpoint:       endpoint,
		Token:          "stored-token",
		TokenExpiresAt: &expiresAt,
	}
}

func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

func TestNewRootCommand(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := NewRootCommand("1.2.3", "abc123", "2026-01-01")

	for _, name := range []string{"version", "login", "logout", "info", "token", "jobs", "apps", "services"} {
		assert.NotNil(t, findSubcommand(root, name), "command %s should exist", name)
	}

	services := findSubcommand(root, "services")
	for _, name := range []string{"bind", "unbind", "create-key", "delete-key", "delete-instance"} {
		sub := findSubcommand(services, name)
		if assert.NotNil(t, sub, "services %s should exist", name) {
			assert.NotNil(t, sub.Flags().Lookup("wait"), "services %s should accept --wait", name)
		}
	}

	apps := findSubcommand(root, "apps")
	get := findSubcommand(apps, "get")
	require.NotNil(t, get)
	assert.NotNil(t, get.Flags().Lookup("required"))

	for _, name := range []string{"config", "api", "token", "output", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "flag %s should exist", name)
	}
}

func TestRenderOutput(t *testing.T) {
	data := map[string]string{"name": "value"}
	rows := func() [][]string { return [][]string{{"Name", "value"}} }

	tests := []struct {
		format   string
		contains string
		wantErr  error
	}{
		{format: OutputFormatJSON, contains: `"name": "value"`},
		{format: OutputFormatYAML, contains: "name: value"},
		{format: OutputFormatTable, contains: "value"},
		{format: "xml", wantErr: constants.ErrInvalidOutputFormat},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			viper.Set("output", tt.format)

			var out bytes.Buffer

			err := renderOutput(&out, data, rows)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.contains)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	configFile := writeTestConfig(t, "", nil)

	out, err := runCLI(t, configFile, "version", "-o", "json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc123", info["commit"])
}

func TestConfigPersister(t *testing.T) {
	configFile := writeTestConfig(t, "api.example.com", map[string]*APIConfig{
		"api.example.com": {Endpoint: "https://api.example.com", Token: "old"},
	})
	viper.SetConfigFile(configFile)

	persister := NewConfigPersister()
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	err := persister.UpdateAPIToken("api.example.com", "new-token", expiresAt, "new-refresh")
	require.NoError(t, err)

	config := readTestConfig(t, configFile)
	apiConfig := config.APIs["api.example.com"]
	require.NotNil(t, apiConfig)
	assert.Equal(t, "new-token", apiConfig.Token)
	assert.Equal(t, "new-refresh", apiConfig.RefreshToken)
	require.NotNil(t, apiConfig.TokenExpiresAt)
	assert.True(t, expiresAt.Equal(*apiConfig.TokenExpiresAt))
	assert.NotNil(t, apiConfig.LastRefreshed)

	err = persister.UpdateAPIToken("other.example.com", "token", time.Time{}, "")
	require.ErrorIs(t, err, constants.ErrAPIConfigNotFound)
}

func TestGetAPIConfigByFlag(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	config := &Config{
		CurrentAPI: "api.example.com",
		APIs: map[string]*APIConfig{
			"api.example.com": {Endpoint: "https://api.example.com"},
		},
	}

	domain, apiConfig, err := getAPIConfigByFlag(config, "")
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", domain)
	assert.Equal(t, "https://api.example.com", apiConfig.Endpoint)

	domain, apiConfig, err = getAPIConfigByFlag(config, "https://api.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", domain)
	assert.Same(t, config.APIs["api.example.com"], apiConfig)

	domain, apiConfig, err = getAPIConfigByFlag(config, "api.other.com:8443")
	require.NoError(t, err)
	assert.Equal(t, "api.other.com:8443", domain)
	assert.Equal(t, "https://api.other.com:8443", apiConfig.Endpoint)

	_, _, err = getAPIConfigByFlag(&Config{}, "")
	require.ErrorIs(t, err, constants.ErrNoAPIConfigured)
}

func TestJobsGetCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/jobs/job-guid", r.URL.Path)
		assert.Equal(t, "Bearer stored-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(capi.Job{
			Resource:  capi.Resource{GUID: "job-guid"},
			Operation: "service_instance.delete",
			State:     capi.JobStateProcessing,
		})
	}))
	defer server.Close()

	domain := extractDomainFromEndpoint(server.URL)
	configFile := writeTestConfig(t, domain, map[string]*APIConfig{domain: storedAPI(server.URL)})

	out, err := runCLI(t, configFile, "jobs", "get", "job-guid", "-o", "json")
	require.NoError(t, err)

	var job capi.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, capi.JobStateProcessing, job.State)
	assert.Equal(t, "service_instance.delete", job.Operation)
}

func TestJobsWaitCommand_Failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(capi.Job{
			Resource: capi.Resource{GUID: "job-guid"},
			State:    capi.JobStateFailed,
			Errors:   []capi.APIError{{Code: 10009, Title: "CF-UnableToPerform", Detail: "Broker went away"}},
		})
	}))
	defer server.Close()

	domain := extractDomainFromEndpoint(server.URL)
	configFile := writeTestConfig(t, domain, map[string]*APIConfig{domain: storedAPI(server.URL)})

	out, err := runCLI(t, configFile, "jobs", "wait", "job-guid", "--interval", "1ms", "-o", "json")
	require.ErrorIs(t, err, capi.ErrJobFailed)
	assert.Contains(t, out, "Broker went away")
}

func TestAppsGetCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/apps":
			_ = json.NewEncoder(w).Encode(capi.ListResponse[capi.App]{})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[{"code":10010,"title":"CF-ResourceNotFound","detail":"App not found"}]}`))
		}
	}))
	defer server.Close()

	domain := extractDomainFromEndpoint(server.URL)
	configFile := writeTestConfig(t, domain, map[string]*APIConfig{domain: storedAPI(server.URL)})

	out, err := runCLI(t, configFile, "apps", "get", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "App 'missing' not found")

	_, err = runCLI(t, configFile, "apps", "get", "missing", "--required")
	require.ErrorIs(t, err, capi.ErrResourceNotFound)
}

func TestServicesBindCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v3/apps":
			assert.Equal(t, "my-app", r.URL.Query().Get("names"))
			_ = json.NewEncoder(w).Encode(capi.ListResponse[capi.App]{
				Resources: []capi.App{{Resource: capi.Resource{GUID: "app-guid"}, Name: "my-app"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v3/service_credential_bindings":
			var request capi.ServiceCredentialBindingCreateRequest

			assert.NoError(t, json.NewDecoder(r.Body).Decode(&request))
			assert.Equal(t, "app-guid", request.Relationships.App.Data.GUID)
			assert.Equal(t, "instance-guid", request.Relationships.ServiceInstance.Data.GUID)
			assert.Equal(t, "bar", request.Parameters["foo"])

			w.Header().Set("Location", "/v3/jobs/bind-job")
			w.WriteHeader(http.StatusAccepted)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	domain := extractDomainFromEndpoint(server.URL)
	configFile := writeTestConfig(t, domain, map[string]*APIConfig{domain: storedAPI(server.URL)})

	out, err := runCLI(t, configFile, "services", "bind", "my-app", "instance-guid", "--parameters", `{"foo":"bar"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Binding started, job bind-job")

	_, err = runCLI(t, configFile, "services", "bind", "my-app", "instance-guid", "--parameters", `[1]`)
	require.ErrorIs(t, err, constants.ErrInvalidParameters)
}

func TestTokenRefreshCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "stored-refresh", r.Form.Get("refresh_token"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "refreshed-token",
			"refresh_token": "next-refresh",
			"token_type":    "bearer",
			"expires_in":    600,
		})
	}))
	defer server.Close()

	domain := extractDomainFromEndpoint(server.URL)
	apiConfig := storedAPI(server.URL)
	apiConfig.RefreshToken = "stored-refresh"
	apiConfig.TokenURL = server.URL + "/oauth/token"

	configFile := writeTestConfig(t, domain, map[string]*APIConfig{domain: apiConfig})

	out, err := runCLI(t, configFile, "token", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Token refreshed for "+domain)

	stored := readTestConfig(t, configFile).APIs[domain]
	require.NotNil(t, stored)
	assert.Equal(t, "refreshed-token", stored.Token)
	assert.Equal(t, "next-refresh", stored.RefreshToken)
}

func TestTokenStatusCommand(t *testing.T) {
	domain := "api.example.com"
	configFile := writeTestConfig(t, domain, map[string]*APIConfig{domain: storedAPI("https://api.example.com")})

	out, err := runCLI(t, configFile, "token", "status", "-o", "json")
	require.NoError(t, err)

	var status TokenStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, domain, status.API)
	assert.Equal(t, "Bearer", status.TokenType)
	assert.True(t, status.Valid)
	assert.NotNil(t, status.ExpiresAt)
	assert.False(t, status.HasRefreshToken)
}

func TestLogoutCommand(t *testing.T) {
	domain := "api.example.com"
	apiConfig := storedAPI("https://api.example.com")
	apiConfig.RefreshToken = "refresh"

	configFile := writeTestConfig(t, domain, map[string]*APIConfig{domain: apiConfig})

	out, err := runCLI(t, configFile, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully logged out")

	stored := readTestConfig(t, configFile).APIs[domain]
	require.NotNil(t, stored)
	assert.Empty(t, stored.Token)
	assert.Empty(t, stored.RefreshToken)
	assert.Nil(t, stored.TokenExpiresAt)
	assert.Equal(t, "https://api.example.com", stored.Endpoint)
}

func TestLoginCommand_ClientCredentials(t *testing.T) {
	var server *httptest.Server

	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/info":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"api_version":            "2.250.0",
				"authorization_endpoint": server.URL,
			})
		case "/oauth/token":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "client-token",
				"token_type":   "bearer",
				"expires_in":   3600,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	configFile := writeTestConfig(t, "", nil)

	out, err := runCLI(t, configFile, "login", "--api", server.URL, "--client-id", "admin", "--client-secret", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully logged in")
	assert.Contains(t, out, "API version: 2.250.0")

	domain := extractDomainFromEndpoint(server.URL)
	config := readTestConfig(t, configFile)
	assert.Equal(t, domain, config.CurrentAPI)

	stored := config.APIs[domain]
	require.NotNil(t, stored)
	assert.Equal(t, "client-token", stored.Token)
	assert.Equal(t, server.URL+"/oauth/token", stored.TokenURL)
	assert.Equal(t, "admin", stored.ClientID)
	assert.NotNil(t, stored.TokenExpiresAt)
}

func TestJobsWaitCommand_RejectsNonPositiveInterval(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	domain := extractDomainFromEndpoint(server.URL)
	configFile := writeTestConfig(t, domain, map[string]*APIConfig{domain: storedAPI(server.URL)})

	_, err := runCLI(t, configFile, "jobs", "wait", "job-guid", "--interval", "0s")
	require.ErrorIs(t, err, constants.ErrInvalidPollInterval)
	assert.Zero(t, calls)
}

func TestInfoCommand_CacheSettings(t *testing.T) {
	var discoveries int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/info", r.URL.Path)
		discoveries++

		_ = json.NewEncoder(w).Encode(map[string]string{
			"api_version":            "2.250.0",
			"authorization_endpoint": "https://login.example.com",
		})
	}))
	defer server.Close()

	domain := extractDomainFromEndpoint(server.URL)
	configFile := writeTestConfig(t, domain, nil)

	writeConfig := func(cache *CacheSettings) {
		data, err := yaml.Marshal(&Config{
			APIs:       map[string]*APIConfig{domain: storedAPI(server.URL)},
			CurrentAPI: domain,
			Cache:      cache,
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(configFile, data, constants.ConfigFilePerm))
	}

	writeConfig(&CacheSettings{Type: "none"})

	out, err := runCLI(t, configFile, "info", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "https://login.example.com")
	assert.Equal(t, 1, discoveries)

	stored := readTestConfig(t, configFile)
	require.NotNil(t, stored.Cache)
	assert.Equal(t, "none", stored.Cache.Type)

	writeConfig(&CacheSettings{Type: "redis"})

	_, err = runCLI(t, configFile, "info")
	require.ErrorIs(t, err, capi.ErrUnsupportedCacheType)
	assert.Equal(t, 1, discoveries)
}

func TestCacheSettings_CacheConfig(t *testing.T) {
	var settings *CacheSettings
	assert.Nil(t, settings.cacheConfig())

	settings = &CacheSettings{Type: "tiered", MaxSize: 50, NATSURL: "nats://127.0.0.1:4222", Bucket: "cf_info", TTL: time.Hour}
	config := settings.cacheConfig()
	assert.Equal(t, capi.CacheTypeTiered, config.Type)
	assert.Equal(t, 50, config.MaxSize)
	require.NotNil(t, config.NATS)
	assert.Equal(t, "nats://127.0.0.1:4222", config.NATS.URL)
	assert.Equal(t, "cf_info", config.NATS.Bucket)
	assert.Equal(t, time.Hour, config.NATS.TTL)

	assert.Nil(t, (&CacheSettings{Type: "memory"}).cacheConfig().NATS)
}
