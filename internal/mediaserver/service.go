// Package mediaserver stores uploaded media on disk, grouped by category
// (avatar, thumb, message), and serves it back over HTTP.
package mediaserver

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/agora/internal/logger"
	"github.com/google/uuid"
)

// Categories the API is allowed to upload into. Avatars and conversation
// thumbnails must be images; message attachments may be arbitrary files.
var Categories = map[string]bool{
	"avatar":  true,
	"thumb":   true,
	"message": true,
}

var imageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

// Executable and script extensions are rejected in every category.
var blockedExt = map[string]bool{
	".exe": true, ".sh": true, ".js": true, ".bat": true, ".cmd": true,
	".php": true, ".py": true, ".rb": true,
}

type UploadResponse struct {
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// Service handles upload, serving and deletion of stored media.
type Service struct {
	UploadDir     string
	PublicBaseURL string
	MaxUploadSize int64
}

func New(uploadDir, publicBaseURL string, maxUploadSize int64) *Service {
	return &Service{
		UploadDir:     uploadDir,
		PublicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		MaxUploadSize: maxUploadSize,
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("mediaserver writeJSON: %v", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Upload handles POST multipart/form-data with a "file" field. The category
// comes from the URL path.
func (s *Service) Upload(w http.ResponseWriter, r *http.Request, category string) {
	ctx := r.Context()
	if !Categories[category] {
		s.writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize)

	if err := r.ParseMultipartForm(s.MaxUploadSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if blockedExt[ext] {
		s.writeError(w, http.StatusBadRequest, "file type not allowed")
		return
	}
	if (category == "avatar" || category == "thumb") && !imageExt[ext] {
		s.writeError(w, http.StatusBadRequest, "category accepts images only")
		return
	}

	head := make([]byte, 512)
	n, _ := io.ReadAtLeast(file, head, len(head))
	head = head[:n]
	if !matchMagic(ext, head) {
		s.writeError(w, http.StatusBadRequest, "file content does not match type")
		return
	}

	newName := uuid.New().String() + ext
	dir := filepath.Join(s.UploadDir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create upload dir")
		return
	}

	// Stored gzip-compressed to save disk.
	dstPath := filepath.Join(dir, newName+".gz")
	dst, err := os.Create(dstPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	gz := gzip.NewWriter(dst)
	if _, err := gz.Write(head); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(dstPath)
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	if err := copyWithContext(ctx, gz, file); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(dstPath)
		if ctx.Err() != nil {
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	s.writeJSON(w, http.StatusCreated, UploadResponse{
		URL:      s.PublicBaseURL + "/api/files/" + category + "/" + newName,
		FileName: newName,
		FileSize: header.Size,
	})
}

func matchMagic(ext string, head []byte) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case ".png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case ".gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case ".webp":
		return len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP"))
	case ".heic":
		return len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp"))
	case ".pdf":
		return len(head) >= 5 && bytes.Equal(head[:5], []byte("%PDF-"))
	}
	return true
}

// Serve streams a stored file back, decompressing on the fly.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, category, filename string) {
	if !Categories[category] {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	filename = filepath.Base(filename)
	gzPath := filepath.Join(s.UploadDir, category, filename+".gz")

	if ct := contentTypeByExt(filepath.Ext(filename)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	f, err := os.Open(gzPath)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer gz.Close()
	w.WriteHeader(http.StatusOK)
	io.Copy(w, gz)
}

type deleteRequest struct {
	URL string `json:"url"`
}

// Delete removes a stored file addressed by its public URL. Unknown files
// return 204 as well, deletion is idempotent.
func (s *Service) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	category, filename, ok := parsePublicURL(req.URL)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "not a media url")
		return
	}
	path := filepath.Join(s.UploadDir, category, filepath.Base(filename)+".gz")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Errorf("mediaserver delete %s: %v", path, err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parsePublicURL pulls category and filename out of a URL ending in
// /api/files/{category}/{filename}.
func parsePublicURL(u string) (category, filename string, ok bool) {
	idx := strings.Index(u, "/api/files/")
	if idx < 0 {
		return "", "", false
	}
	rest := u[idx+len("/api/files/"):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	if !Categories[parts[0]] {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func contentTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("upload cancelled: %w", ctx.Err())
		default:
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read: %w", readErr)
		}
	}
}
