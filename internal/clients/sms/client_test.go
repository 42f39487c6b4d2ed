package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gw-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "gw-key").Send(context.Background(), "+919876543210", "🆘 EMERGENCY ALERT 🆘")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", got.To)
	assert.Equal(t, "🆘 EMERGENCY ALERT 🆘", got.Message)
}

func TestSend_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Send(context.Background(), "123", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid number")
}
