package mediaserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(t.TempDir(), "http://media.local", 1<<20)
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, svc *Service, category, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/"+category, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	svc.Upload(w, req, category)
	return w
}

func TestUploadServeDelete(t *testing.T) {
	svc := newTestService(t)
	content := append(append([]byte{}, pngHeader...), []byte("pixel data")...)

	w := upload(t, svc, "message", "photo.png", content)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.URL, "http://media.local/api/files/message/"), resp.URL)
	assert.True(t, strings.HasSuffix(resp.FileName, ".png"))

	filename := resp.URL[strings.LastIndex(resp.URL, "/")+1:]

	// Serve returns the original bytes, decompressed.
	sw := httptest.NewRecorder()
	sreq := httptest.NewRequest(http.MethodGet, "/api/files/message/"+filename, nil)
	svc.Serve(sw, sreq, "message", filename)
	require.Equal(t, http.StatusOK, sw.Code)
	assert.Equal(t, "image/png", sw.Header().Get("Content-Type"))
	got, _ := io.ReadAll(sw.Body)
	assert.Equal(t, content, got)

	// Delete by public URL, then serving 404s.
	delBody, _ := json.Marshal(map[string]string{"url": resp.URL})
	dw := httptest.NewRecorder()
	dreq := httptest.NewRequest(http.MethodDelete, "/api/files", bytes.NewReader(delBody))
	svc.Delete(dw, dreq)
	require.Equal(t, http.StatusNoContent, dw.Code)

	sw = httptest.NewRecorder()
	svc.Serve(sw, sreq, "message", filename)
	assert.Equal(t, http.StatusNotFound, sw.Code)
}

func TestUploadRejectsUnknownCategory(t *testing.T) {
	svc := newTestService(t)
	w := upload(t, svc, "stuff", "a.png", pngHeader)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRejectsBlockedExtension(t *testing.T) {
	svc := newTestService(t)
	w := upload(t, svc, "message", "payload.exe", []byte("MZ..."))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRejectsNonImageAvatar(t *testing.T) {
	svc := newTestService(t)
	w := upload(t, svc, "avatar", "resume.pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRejectsMismatchedMagic(t *testing.T) {
	svc := newTestService(t)
	// .png extension but JPEG bytes.
	w := upload(t, svc, "message", "fake.png", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteIgnoresForeignURL(t *testing.T) {
	svc := newTestService(t)
	body, _ := json.Marshal(map[string]string{"url": "http://elsewhere.example/img.png"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/files", bytes.NewReader(body))
	svc.Delete(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePublicURL(t *testing.T) {
	category, filename, ok := parsePublicURL("http://media.local/api/files/avatar/x.png")
	require.True(t, ok)
	assert.Equal(t, "avatar", category)
	assert.Equal(t, "x.png", filename)

	_, _, ok = parsePublicURL("http://media.local/api/files/unknown/x.png")
	assert.False(t, ok)
	_, _, ok = parsePublicURL("http://media.local/other/x.png")
	assert.False(t, ok)
}
