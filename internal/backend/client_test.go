package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/polyglot-chat/internal/backend"
)

func TestClient_URL(t *testing.T) {
	c := backend.New("http://127.0.0.1:8000/")

	assert.Equal(t, "http://127.0.0.1:8000/history/lobby", c.URL("history", "lobby"))
	assert.Equal(t, "http://127.0.0.1:8000/history/a%2Fb%20c", c.URL("history", "a/b c"))
	assert.Equal(t, "http://127.0.0.1:8000", c.URL())
}

func TestClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"name":"lobby"}`))
	}))
	defer server.Close()

	c := backend.New(server.URL)
	var got struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), c.URL("rooms"), &got))
	assert.Equal(t, "lobby", got.Name)
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room is gone", http.StatusNotFound)
	}))
	defer server.Close()

	c := backend.New(server.URL)
	err := c.GetJSON(context.Background(), c.URL("history", "x"), &struct{}{})

	var statusErr *backend.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "room is gone", statusErr.Body)
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	c := backend.New(server.URL)
	var got map[string]string
	require.NoError(t, c.PostJSON(context.Background(), c.URL("echo"), "text/plain", strings.NewReader("hi"), &got))
	assert.Equal(t, "ok", got["status"])

	require.NoError(t, c.PostJSON(context.Background(), c.URL("echo"), "text/plain", strings.NewReader("hi"), nil))
}

func TestClient_DecodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	c := backend.New(server.URL)
	err := c.GetJSON(context.Background(), c.URL("history", "lobby"), &[]any{})
	assert.ErrorContains(t, err, "failed to decode response")
}
