package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agora/internal/service"
)

// Auth validates the Bearer access token and puts the user id into the
// request context. 401 with a JSON body on anything else.
func Auth(tokens *service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "Missing access token")
				return
			}
			userID, err := tokens.VerifyAccess(token)
			if err != nil {
				unauthorized(w, "Invalid or expired access token")
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
