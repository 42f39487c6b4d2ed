package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "eng", r.PostForm.Get("language"))
		assert.True(t, strings.HasPrefix(r.PostForm.Get("base64Image"), "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ParsedResults":[{"ParsedText":"Metformin 500 mg"}],"OCRExitCode":1,"IsErroredOnProcessing":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "")
	text, err := c.Recognize(context.Background(), []byte("\x89PNG\r\n\x1a\n rest of image"))
	require.NoError(t, err)
	assert.Equal(t, "Metformin 500 mg", text)
}

func TestRecognize_ProcessingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":["Unable to recognize the file type"]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", "eng").Recognize(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to recognize the file type")
}

func TestRecognize_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", "eng").Recognize(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "a; b", errorText([]byte(`["a","b"]`)))
	assert.Equal(t, "single", errorText([]byte(`"single"`)))
}
