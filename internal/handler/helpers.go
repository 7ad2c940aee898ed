package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/agora/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// successResponse is the envelope every successful endpoint returns.
type successResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Metadata any    `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSuccess(w http.ResponseWriter, status int, msg string, metadata any) {
	writeJSON(w, status, successResponse{Success: true, Message: msg, Metadata: metadata})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
