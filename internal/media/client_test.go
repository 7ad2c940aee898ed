package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/upload/avatar", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "me.png", fh.Filename)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"url": "http://media.local/api/files/avatar/x.png"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	url, err := c.Upload(context.Background(), "avatar", "me.png", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "http://media.local/api/files/avatar/x.png", url)
}

func TestUploadNotConfigured(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	_, err := c.Upload(context.Background(), "avatar", "me.png", strings.NewReader("data"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Upload(context.Background(), "message", "a.png", strings.NewReader("data"))
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	called := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/files", r.URL.Path)
		var req struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		called <- req.URL
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.Delete(context.Background(), "http://media.local/api/files/avatar/x.png")
	assert.Equal(t, "http://media.local/api/files/avatar/x.png", <-called)
}
