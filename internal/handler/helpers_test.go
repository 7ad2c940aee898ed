package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeSuccess(w, http.StatusCreated, "Message sent", map[string]string{"id": "m1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"message":"Message sent","metadata":{"id":"m1"}}`, w.Body.String())
}

func TestWriteSuccessOmitsEmptyMetadata(t *testing.T) {
	w := httptest.NewRecorder()
	writeSuccess(w, http.StatusOK, "Seen", nil)

	assert.JSONEq(t, `{"success":true,"message":"Seen"}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusForbidden, msgInvalidConversation)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Invalid conversation or permission denied"}`, w.Body.String())
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=abc", nil)

	assert.Equal(t, 25, queryInt(req, "limit", 10))
	assert.Equal(t, 10, queryInt(req, "missing", 10))
	assert.Equal(t, 10, queryInt(req, "bad", 10))
}
