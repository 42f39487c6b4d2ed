package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/synthesize", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req synthesizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hi-IN", req.Language)
		assert.Equal(t, 0.7, req.Rate)

		w.Header().Set("Content-Type", "audio/ogg")
		w.Write([]byte("OggS audio"))
	}))
	defer srv.Close()

	audio, err := NewClient(srv.URL, "key").Synthesize(context.Background(), "दवा लेने का समय", "hi-IN", 0.7, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS audio"), audio)
}

func TestSynthesize_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Synthesize(context.Background(), "hello", "en-IN", 1, 1)
	assert.Error(t, err)

	_, err = c.Synthesize(context.Background(), "", "en-IN", 1, 1)
	assert.Error(t, err)
}
