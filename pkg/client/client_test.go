package client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New("127.0.0.1", 37880)
	assert.Equal(t, "http://127.0.0.1:37880", c.baseURL)
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_ = json.NewEncoder(w).Encode(Health{Status: "ready", Version: "1.2.3", Uptime: "5s", Store: &StoreHealth{Backend: "sqlite", OK: true}})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewWithURL(server.URL)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", h.Version)
	require.NotNil(t, h.Store)
	assert.Equal(t, "sqlite", h.Store.Backend)
	assert.True(t, c.IsRunning(context.Background()))
}

func TestHealth_NotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(Health{Status: "starting"})
	}))
	defer server.Close()

	c := NewWithURL(server.URL)
	h, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "starting", h.Status)
	assert.False(t, c.IsRunning(context.Background()))
}

func TestIsRunning_NoServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	assert.False(t, NewWithURL("http://"+addr).IsRunning(context.Background()))
}

func TestVersion(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse func(w http.ResponseWriter, r *http.Request)
		expectedResult string
	}{
		{
			name: "returns version from server",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/version" {
					_ = json.NewEncoder(w).Encode(map[string]string{"version": "1.2.3"})
				}
			},
			expectedResult: "1.2.3",
		},
		{
			name: "returns empty on 404",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"not found"}`))
			},
			expectedResult: "",
		},
		{
			name: "returns empty on invalid JSON",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			expectedResult: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			assert.Equal(t, tt.expectedResult, NewWithURL(server.URL).Version(context.Background()))
		})
	}
}
