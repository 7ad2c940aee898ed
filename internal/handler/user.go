package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/media"
	"github.com/agora/internal/middleware"
	"github.com/agora/internal/model"
	"github.com/agora/internal/realtime"
	"github.com/agora/internal/repository"
)

const strangersLimit = 20

type UserHandler struct {
	userRepo   *repository.UserRepository
	friendRepo *repository.FriendRepository
	relay      *realtime.Client
	media      *media.Client
}

func NewUserHandler(userRepo *repository.UserRepository, friendRepo *repository.FriendRepository, relay *realtime.Client, mediaClient *media.Client) *UserHandler {
	return &UserHandler{userRepo: userRepo, friendRepo: friendRepo, relay: relay, media: mediaClient}
}

// GetMe assembles the full profile: user, friends, pending requests both
// ways, and a slice of strangers for discovery.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	friends, err := h.friendRepo.ListFriends(r.Context(), userID)
	if err != nil {
		logger.Errorf("getMe friends: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load profile")
		return
	}
	incoming, err := h.friendRepo.ListIncoming(r.Context(), userID)
	if err != nil {
		logger.Errorf("getMe incoming: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load profile")
		return
	}
	outgoing, err := h.friendRepo.ListOutgoing(r.Context(), userID)
	if err != nil {
		logger.Errorf("getMe outgoing: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load profile")
		return
	}
	strangers, err := h.friendRepo.ListStrangers(r.Context(), userID, strangersLimit)
	if err != nil {
		logger.Errorf("getMe strangers: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load profile")
		return
	}
	writeSuccess(w, http.StatusOK, "Profile loaded", model.Profile{
		User:           *user,
		Friends:        friends,
		FriendRequests: incoming,
		SentRequests:   outgoing,
		Strangers:      strangers,
	})
}

func (h *UserHandler) GetStrangers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit := queryInt(r, "limit", strangersLimit)
	strangers, err := h.friendRepo.ListStrangers(r.Context(), userID, limit)
	if err != nil {
		logger.Errorf("strangers: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load users")
		return
	}
	writeSuccess(w, http.StatusOK, "Users loaded", strangers)
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Search query is required")
		return
	}
	limit := queryInt(r, "limit", 20)
	users, err := h.userRepo.Search(r.Context(), query, limit)
	if err != nil {
		logger.Errorf("user search: %v", err)
		writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	writeSuccess(w, http.StatusOK, "Users found", users)
}

const maxAvatarSize = 10 << 20

// UploadAvatar stores the new avatar in the media store, persists its URL
// and deletes the previous file best-effort.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Avatar file is required")
		return
	}
	defer file.Close()
	url, err := h.media.Upload(r.Context(), "avatar", header.Filename, file)
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "Media service not configured")
			return
		}
		logger.Errorf("avatar upload: %v", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	old, err := h.userRepo.UpdateAvatar(r.Context(), userID, url)
	if err != nil {
		logger.Errorf("avatar update: %v", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	if old != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			h.media.Delete(ctx, old)
		}()
	}
	writeSuccess(w, http.StatusOK, "Avatar updated", map[string]string{"avatar": url})
}

type friendTarget struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (h *UserHandler) notifyFriend(targetID string, tag realtime.FriendTag, sender model.UserPublic) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.relay.Trigger(ctx, targetID, realtime.EventFriendRequest, realtime.FriendRequestPayload{
			Tag:    tag,
			Sender: sender,
		})
	}()
}

func (h *UserHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	var req friendTarget
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if req.UserID == userID {
		writeError(w, http.StatusBadRequest, "Cannot add yourself")
		return
	}
	target, err := h.userRepo.GetByID(r.Context(), req.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	already, err := h.friendRepo.AreFriends(r.Context(), userID, target.ID)
	if err != nil {
		logger.Errorf("addFriend check: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not send request")
		return
	}
	if already {
		writeError(w, http.StatusConflict, "Already friends")
		return
	}
	pending, err := h.friendRepo.RequestExists(r.Context(), userID, target.ID)
	if err != nil {
		logger.Errorf("addFriend pending: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not send request")
		return
	}
	if pending {
		writeError(w, http.StatusConflict, "Request already sent")
		return
	}
	if err := h.friendRepo.CreateRequest(r.Context(), userID, target.ID, strings.TrimSpace(req.Message)); err != nil {
		logger.Errorf("addFriend create: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not send request")
		return
	}
	me, err := h.userRepo.GetByID(r.Context(), userID)
	if err == nil {
		h.notifyFriend(target.ID, realtime.TagAddFriend, me.ToPublic())
	}
	writeSuccess(w, http.StatusOK, "Friend request sent", nil)
}

// AcceptFriend accepts a pending request from req.UserID. The request delete
// and the friendship insert are independent writes, there is no wrapping
// transaction.
func (h *UserHandler) AcceptFriend(w http.ResponseWriter, r *http.Request) {
	var req friendTarget
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	pending, err := h.friendRepo.RequestExists(r.Context(), req.UserID, userID)
	if err != nil {
		logger.Errorf("acceptFriend pending: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not accept request")
		return
	}
	if !pending {
		writeError(w, http.StatusNotFound, "Friend request not found")
		return
	}
	if err := h.friendRepo.AddFriend(r.Context(), userID, req.UserID); err != nil {
		logger.Errorf("acceptFriend add: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not accept request")
		return
	}
	if err := h.friendRepo.DeleteRequest(r.Context(), req.UserID, userID); err != nil {
		logger.Errorf("acceptFriend delete: %v", err)
	}
	me, err := h.userRepo.GetByID(r.Context(), userID)
	if err == nil {
		h.notifyFriend(req.UserID, realtime.TagAcceptFriendRequest, me.ToPublic())
	}
	writeSuccess(w, http.StatusOK, "Friend request accepted", nil)
}

func (h *UserHandler) RejectFriend(w http.ResponseWriter, r *http.Request) {
	var req friendTarget
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.friendRepo.DeleteRequest(r.Context(), req.UserID, userID); err != nil {
		logger.Errorf("rejectFriend: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not reject request")
		return
	}
	writeSuccess(w, http.StatusOK, "Friend request rejected", nil)
}

func (h *UserHandler) CancelFriend(w http.ResponseWriter, r *http.Request) {
	var req friendTarget
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.friendRepo.DeleteRequest(r.Context(), userID, req.UserID); err != nil {
		logger.Errorf("cancelFriend: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not cancel request")
		return
	}
	me, err := h.userRepo.GetByID(r.Context(), userID)
	if err == nil {
		h.notifyFriend(req.UserID, realtime.TagCancelFriendRequest, me.ToPublic())
	}
	writeSuccess(w, http.StatusOK, "Friend request cancelled", nil)
}

func (h *UserHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	var req friendTarget
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.friendRepo.RemoveFriend(r.Context(), userID, req.UserID); err != nil {
		logger.Errorf("removeFriend: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not remove friend")
		return
	}
	me, err := h.userRepo.GetByID(r.Context(), userID)
	if err == nil {
		h.notifyFriend(req.UserID, realtime.TagRemoveFriend, me.ToPublic())
	}
	writeSuccess(w, http.StatusOK, "Friend removed", nil)
}
