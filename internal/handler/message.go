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
	"github.com/agora/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxMessageImages = 5
	maxMessageSize   = 50 << 20
	defaultPageLimit = 10
	defaultRange     = 25
)

type MessageHandler struct {
	msgRepo    *repository.MessageRepository
	convRepo   *repository.ConversationRepository
	userRepo   *repository.UserRepository
	msgService *service.MessageService
	relay      *realtime.Client
	media      *media.Client
}

func NewMessageHandler(msgRepo *repository.MessageRepository, convRepo *repository.ConversationRepository, userRepo *repository.UserRepository, msgService *service.MessageService, relay *realtime.Client, mediaClient *media.Client) *MessageHandler {
	return &MessageHandler{msgRepo: msgRepo, convRepo: convRepo, userRepo: userRepo, msgService: msgService, relay: relay, media: mediaClient}
}

// Create accepts a multipart message: a conversation_id and content field
// plus up to 5 attached images. Existence of the conversation is checked,
// membership of the sender is not re-validated beyond that.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMessageSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	conversationID := r.FormValue("conversation_id")
	content := strings.TrimSpace(r.FormValue("content"))
	files := r.MultipartForm.File["images"]
	if len(files) > maxMessageImages {
		writeError(w, http.StatusBadRequest, "Too many images (max 5)")
		return
	}
	if content == "" && len(files) == 0 {
		writeError(w, http.StatusBadRequest, "Message content or images required")
		return
	}
	if _, err := h.convRepo.GetByID(r.Context(), conversationID); err != nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	sender, err := h.userRepo.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	images := []string{}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid image attachment")
			return
		}
		url, err := h.media.Upload(r.Context(), "message", fh.Filename, f)
		f.Close()
		if err != nil {
			if errors.Is(err, media.ErrNotConfigured) {
				writeError(w, http.StatusServiceUnavailable, "Media service not configured")
				return
			}
			logger.Errorf("message image upload: %v", err)
			writeError(w, http.StatusInternalServerError, "Upload failed")
			return
		}
		images = append(images, url)
	}

	msgType := model.MessageTypeText
	if len(images) > 0 {
		msgType = model.MessageTypeImage
	}
	msg, err := h.msgService.Create(r.Context(), sender, conversationID, content, images, msgType)
	if err != nil {
		logger.Errorf("createMessage: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not send message")
		return
	}
	writeSuccess(w, http.StatusCreated, "Message sent", msg)
}

type TypingRequest struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// Typing relays a transient typing notification. Only conversation
// existence is required, nothing persists.
func (h *MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if _, err := h.convRepo.GetByID(r.Context(), req.ConversationID); err != nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	user, err := h.userRepo.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.relay.Trigger(ctx, req.ConversationID, realtime.EventMessageTyping, realtime.TypingPayload{
			ConversationID: req.ConversationID,
			User:           user.ToPublic(),
			IsTyping:       req.IsTyping,
			At:             time.Now().UTC(),
		})
	}()
	writeSuccess(w, http.StatusOK, "Typing", nil)
}

func (h *MessageHandler) member(w http.ResponseWriter, r *http.Request, conversationID string) (*model.ConversationMember, bool) {
	userID := middleware.GetUserID(r.Context())
	member, err := h.convRepo.GetMember(r.Context(), conversationID, userID)
	if err != nil {
		writeError(w, http.StatusForbidden, msgInvalidConversation)
		return nil, false
	}
	return member, true
}

// GetAll returns the conversation's full history, newest first, without the
// hidden-window filter. No pagination.
func (h *MessageHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	if _, ok := h.member(w, r, conversationID); !ok {
		return
	}
	msgs, err := h.msgRepo.ListAll(r.Context(), conversationID)
	if err != nil {
		logger.Errorf("getAllMessages: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load messages")
		return
	}
	writeSuccess(w, http.StatusOK, "Messages loaded", msgs)
}

// Get pages through the history around an optional cursor: direction "up"
// walks older messages (newest first), "down" walks newer ones
// (chronological). The caller's hidden window applies.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	member, ok := h.member(w, r, conversationID)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", defaultPageLimit)
	direction := r.URL.Query().Get("direction")
	if direction == "" {
		direction = "up"
	}
	cursor := r.URL.Query().Get("cursor")

	var msgs []model.Message
	var err error
	if cursor == "" {
		if direction == "down" {
			msgs, err = h.msgRepo.ListAfter(r.Context(), conversationID, time.Time{}, zeroUUID, limit)
		} else {
			msgs, err = h.msgRepo.ListLatest(r.Context(), conversationID, limit)
			if err == nil {
				reverseMessages(msgs)
			}
		}
	} else {
		if _, parseErr := uuid.Parse(cursor); parseErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid cursor")
			return
		}
		anchor, anchorErr := h.msgRepo.GetByID(r.Context(), cursor)
		if anchorErr != nil {
			if errors.Is(anchorErr, repository.ErrNotFound) {
				// A well-formed cursor that matches nothing yields an
				// empty page, only a malformed id is an error.
				writeSuccess(w, http.StatusOK, "Messages loaded", []model.Message{})
				return
			}
			logger.Errorf("getMessages cursor: %v", anchorErr)
			writeError(w, http.StatusInternalServerError, "Could not load messages")
			return
		}
		if direction == "down" {
			msgs, err = h.msgRepo.ListAfter(r.Context(), conversationID, anchor.CreatedAt, anchor.ID, limit)
		} else {
			msgs, err = h.msgRepo.ListBefore(r.Context(), conversationID, anchor.CreatedAt, anchor.ID, limit)
		}
	}
	if err != nil {
		logger.Errorf("getMessages: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load messages")
		return
	}
	writeSuccess(w, http.StatusOK, "Messages loaded", model.FilterVisible(msgs, member.Window()))
}

// Range fetches text/image messages around an anchor: up to range older
// ones (hidden-window filtered) followed by range+1 from the anchor on
// (unfiltered). The anchor must exist before membership is considered.
func (h *MessageHandler) Range(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	messageID := r.URL.Query().Get("message_id")
	anchor, err := h.msgRepo.GetByID(r.Context(), messageID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Invalid message")
		return
	}
	member, ok := h.member(w, r, conversationID)
	if !ok {
		return
	}
	n := queryInt(r, "range", defaultRange)
	older, err := h.msgRepo.ListRangeOlder(r.Context(), conversationID, anchor.CreatedAt, anchor.ID, n)
	if err != nil {
		logger.Errorf("getMessagesRange older: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load messages")
		return
	}
	newer, err := h.msgRepo.ListRangeNewer(r.Context(), conversationID, anchor.CreatedAt, anchor.ID, n+1)
	if err != nil {
		logger.Errorf("getMessagesRange newer: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load messages")
		return
	}
	out := append(model.FilterVisible(older, member.Window()), newer...)
	writeSuccess(w, http.StatusOK, "Messages loaded", out)
}

// Search matches text/image messages by content, newest first, hidden
// window applied. Unpaginated.
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	member, ok := h.member(w, r, conversationID)
	if !ok {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Search query is required")
		return
	}
	msgs, err := h.msgRepo.Search(r.Context(), conversationID, query)
	if err != nil {
		logger.Errorf("searchMessages: %v", err)
		writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	visible := model.FilterVisible(msgs, member.Window())
	writeSuccess(w, http.StatusOK, "Messages found", model.SearchResult{Result: visible, Total: len(visible)})
}

const zeroUUID = "00000000-0000-0000-0000-000000000000"

func reverseMessages(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
