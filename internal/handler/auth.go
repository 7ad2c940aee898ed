package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/agora/internal/config"
	"github.com/agora/internal/email"
	"github.com/agora/internal/logger"
	"github.com/agora/internal/middleware"
	"github.com/agora/internal/model"
	"github.com/agora/internal/realtime"
	"github.com/agora/internal/repository"
	"github.com/agora/internal/service"
	"github.com/agora/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Simplified email check, not full RFC.
var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type AuthHandler struct {
	userRepo *repository.UserRepository
	convRepo *repository.ConversationRepository
	tokens   *service.TokenService
	store    storage.TokenStore
	mailer   *email.Sender
	relay    *realtime.Client
	cfg      *config.Config
}

func NewAuthHandler(userRepo *repository.UserRepository, convRepo *repository.ConversationRepository, tokens *service.TokenService, store storage.TokenStore, mailer *email.Sender, relay *realtime.Client, cfg *config.Config) *AuthHandler {
	return &AuthHandler{userRepo: userRepo, convRepo: convRepo, tokens: tokens, store: store, mailer: mailer, relay: relay, cfg: cfg}
}

type RegisterRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !emailRegexp.MatchString(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		writeError(w, http.StatusBadRequest, "First and last name are required")
		return
	}
	if _, err := h.userRepo.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "Email already in use")
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Errorf("register: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	allowed, err := h.store.CheckRateLimit(r.Context(), req.Email)
	if err != nil {
		logger.Errorf("register rate limit: %v", err)
	} else if !allowed {
		writeError(w, http.StatusTooManyRequests, "Too many requests, try again later")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorf("register hash: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	display := strings.TrimSpace(req.DisplayName)
	if display == "" {
		display = strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName)
	}
	user := &model.User{
		ID:           uuid.New().String(),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		DisplayName:  display,
		Email:        req.Email,
		PasswordHash: string(hash),
		Status:       model.StatusNotVerified,
		Role:         model.RoleUser,
		AccountType:  model.AccountTypeLocal,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.userRepo.Create(r.Context(), user); err != nil {
		logger.Errorf("register create: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	token, err := h.tokens.IssueVerify(user.ID)
	if err != nil {
		logger.Errorf("register verify token: %v", err)
	} else {
		link := h.cfg.ClientURL + "/verify?token=" + token
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.mailer.SendVerification(ctx, user.Email, link); err != nil {
				logger.Errorf("send verification to %s: %v", user.Email, err)
			}
		}()
	}
	writeSuccess(w, http.StatusCreated, "Registered, check your email to verify the account", nil)
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := h.tokens.VerifyPurpose(token, service.PurposeVerify)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired verification link")
		return
	}
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired verification link")
		return
	}
	if user.Status == model.StatusNotVerified {
		if err := h.userRepo.UpdateStatus(r.Context(), userID, model.StatusActive); err != nil {
			logger.Errorf("verify update status: %v", err)
			writeError(w, http.StatusInternalServerError, "Verification failed")
			return
		}
	}
	writeSuccess(w, http.StatusOK, "Email verified", nil)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPair struct {
	User         model.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	user, err := h.userRepo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	switch user.Status {
	case model.StatusBlocked:
		writeError(w, http.StatusForbidden, "Account blocked")
		return
	case model.StatusNotVerified:
		writeError(w, http.StatusForbidden, "Email not verified")
		return
	}
	access, err := h.tokens.IssueAccess(user.ID)
	if err != nil {
		logger.Errorf("login access: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	refresh, err := h.tokens.IssueRefresh(r.Context(), user.ID)
	if err != nil {
		logger.Errorf("login refresh: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	writeSuccess(w, http.StatusOK, "Logged in", tokenPair{User: *user, AccessToken: access, RefreshToken: refresh})
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	access, refresh, err := h.tokens.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrTokenReuse) {
			writeError(w, http.StatusUnauthorized, "Session revoked, log in again")
			return
		}
		if errors.Is(err, service.ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
			return
		}
		logger.Errorf("refresh: %v", err)
		writeError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}
	writeSuccess(w, http.StatusOK, "Tokens refreshed", map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if err := h.tokens.Logout(r.Context(), req.RefreshToken); err != nil && !errors.Is(err, service.ErrTokenInvalid) {
		logger.Errorf("logout: %v", err)
	}
	writeSuccess(w, http.StatusOK, "Logged out", nil)
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !emailRegexp.MatchString(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	allowed, err := h.store.CheckRateLimit(r.Context(), req.Email)
	if err != nil {
		logger.Errorf("forgot rate limit: %v", err)
	} else if !allowed {
		writeError(w, http.StatusTooManyRequests, "Too many requests, try again later")
		return
	}
	user, err := h.userRepo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	token, err := h.tokens.IssueReset(user.ID)
	if err != nil {
		logger.Errorf("forgot reset token: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not send reset link")
		return
	}
	link := h.cfg.ClientURL + "/reset-password?token=" + token
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
			logger.Errorf("send reset to %s: %v", user.Email, err)
		}
	}()
	writeSuccess(w, http.StatusOK, "Reset link sent", nil)
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	userID, err := h.tokens.VerifyPurpose(req.Token, service.PurposeReset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset link")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorf("reset hash: %v", err)
		writeError(w, http.StatusInternalServerError, "Reset failed")
		return
	}
	if err := h.userRepo.UpdatePassword(r.Context(), userID, string(hash)); err != nil {
		logger.Errorf("reset update: %v", err)
		writeError(w, http.StatusInternalServerError, "Reset failed")
		return
	}
	// A changed password invalidates every live session.
	if err := h.store.RevokeUserTokens(r.Context(), userID); err != nil {
		logger.Errorf("reset revoke: %v", err)
	}
	writeSuccess(w, http.StatusOK, "Password updated", nil)
}

type RelayAuthRequest struct {
	SocketID string `json:"socket_id"`
	Channel  string `json:"channel_name"`
}

// RelayAuth grants a channel subscription: the personal channel is always the
// caller's own id, broadcast channels require conversation membership.
func (h *AuthHandler) RelayAuth(w http.ResponseWriter, r *http.Request) {
	var req RelayAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if req.SocketID == "" || req.Channel == "" {
		writeError(w, http.StatusBadRequest, "socket_id and channel_name are required")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if req.Channel != userID {
		if _, err := h.convRepo.GetMember(r.Context(), req.Channel, userID); err != nil {
			writeError(w, http.StatusForbidden, "Channel access denied")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"auth": h.relay.AuthorizeChannel(req.SocketID, req.Channel),
	})
}
