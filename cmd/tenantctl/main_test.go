package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratekl/api/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginThenListDomains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth-v2":
			assert.Equal(t, "acme.com", r.Header.Get("X-Forwarded-Host"))
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		case "/domains-v2":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode([]domain.Domain{{Hostname: "acme.com", Database: "acme_db", Active: true}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	cfgPath := filepath.Join(t.TempDir(), "config.json")

	_, err := run(t, "--config", cfgPath, "--api", srv.URL, "login", "--host", "acme.com", "--user", "alice", "--password", "pw")
	require.NoError(t, err)

	cfg, err := loadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cfg.AccessToken)
	assert.Equal(t, "acme.com", cfg.Tenant)

	out, err := run(t, "--config", cfgPath, "--api", srv.URL, "domains", "list")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "acme_db"), out)
}

func TestCommandsRequireLogin(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	_, err := run(t, "--config", cfgPath, "domains", "get", "acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login first")
}
