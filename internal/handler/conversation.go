package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// Membership failures and missing conversations share one message so the
// response does not leak whether the conversation exists.
const msgInvalidConversation = "Invalid conversation or permission denied"

const conversationPreviewLimit = 20

type ConversationHandler struct {
	convRepo   *repository.ConversationRepository
	userRepo   *repository.UserRepository
	msgRepo    *repository.MessageRepository
	msgService *service.MessageService
	relay      *realtime.Client
	media      *media.Client
}

func NewConversationHandler(convRepo *repository.ConversationRepository, userRepo *repository.UserRepository, msgRepo *repository.MessageRepository, msgService *service.MessageService, relay *realtime.Client, mediaClient *media.Client) *ConversationHandler {
	return &ConversationHandler{convRepo: convRepo, userRepo: userRepo, msgRepo: msgRepo, msgService: msgService, relay: relay, media: mediaClient}
}

// buildView populates a conversation for the client: member profiles, admin
// ids, and the latest messages filtered through the viewer's window.
func (h *ConversationHandler) buildView(ctx context.Context, conv *model.Conversation, window model.VisibilityWindow) (*model.ConversationView, error) {
	members, err := h.convRepo.ListMembers(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	profiles, err := h.convRepo.ListMemberProfiles(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	adminIDs := []string{}
	for _, m := range members {
		if m.Role == model.MemberRoleAdmin {
			adminIDs = append(adminIDs, m.UserID)
		}
	}
	msgs, err := h.msgRepo.ListLatest(ctx, conv.ID, conversationPreviewLimit)
	if err != nil {
		return nil, err
	}
	return &model.ConversationView{
		Conversation: *conv,
		Members:      profiles,
		AdminIDs:     adminIDs,
		Messages:     model.FilterVisible(msgs, window),
	}, nil
}

// requireMember loads the conversation and the caller's membership, answering
// the collapsed error itself when either is missing.
func (h *ConversationHandler) requireMember(w http.ResponseWriter, r *http.Request) (*model.Conversation, *model.ConversationMember, bool) {
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())
	conv, err := h.convRepo.GetByID(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusForbidden, msgInvalidConversation)
		return nil, nil, false
	}
	member, err := h.convRepo.GetMember(r.Context(), conversationID, userID)
	if err != nil {
		writeError(w, http.StatusForbidden, msgInvalidConversation)
		return nil, nil, false
	}
	return conv, member, true
}

func (h *ConversationHandler) trigger(channel, event string, payload any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.relay.Trigger(ctx, channel, event, payload)
	}()
}

// fanOutUpdate delivers a conversation:update to every member's personal
// channel, so members not currently viewing the conversation still refresh
// their previews.
func (h *ConversationHandler) fanOutUpdate(ctx context.Context, conversationID string, payload realtime.ConversationUpdatePayload) {
	members, err := h.convRepo.ListMembers(ctx, conversationID)
	if err != nil {
		logger.Errorf("fan out %s: %v", conversationID, err)
		return
	}
	for _, m := range members {
		h.trigger(m.UserID, realtime.EventConversationUpdate, payload)
	}
}

// systemMessage records a membership/metadata change through the shared
// create-message flow (best-effort, failures are logged only).
func (h *ConversationHandler) systemMessage(ctx context.Context, actor *model.User, conversationID, content string, msgType model.MessageType) {
	if _, err := h.msgService.Create(ctx, actor, conversationID, content, nil, msgType); err != nil {
		logger.Errorf("system message %s: %v", msgType, err)
	}
}

type CreateConversationRequest struct {
	Name    string   `json:"name"`
	IsGroup bool     `json:"is_group"`
	Members []string `json:"members"`
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	members := make([]string, 0, len(req.Members)+1)
	for _, id := range req.Members {
		if id != userID && id != "" {
			members = append(members, id)
		}
	}
	if req.IsGroup && len(members) < 2 {
		writeError(w, http.StatusBadRequest, "Group conversations require at least 2 other members")
		return
	}
	if !req.IsGroup && len(members) != 1 {
		writeError(w, http.StatusBadRequest, "Direct conversations require exactly one other member")
		return
	}
	n, err := h.userRepo.CountExisting(r.Context(), members)
	if err != nil {
		logger.Errorf("createConversation members: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not create conversation")
		return
	}
	if n != len(members) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if !req.IsGroup {
		if _, err := h.convRepo.FindDirect(r.Context(), userID, members[0]); err == nil {
			writeError(w, http.StatusConflict, "Conversation already exists")
			return
		} else if !errors.Is(err, repository.ErrNotFound) {
			logger.Errorf("createConversation direct lookup: %v", err)
			writeError(w, http.StatusInternalServerError, "Could not create conversation")
			return
		}
	}
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:            uuid.New().String(),
		Name:          strings.TrimSpace(req.Name),
		IsGroup:       req.IsGroup,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	all := append(members, userID)
	if err := h.convRepo.Create(r.Context(), conv, all, userID); err != nil {
		logger.Errorf("createConversation: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not create conversation")
		return
	}
	view, err := h.buildView(r.Context(), conv, model.VisibilityWindow{})
	if err != nil {
		logger.Errorf("createConversation view: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not create conversation")
		return
	}
	for _, uid := range all {
		h.trigger(uid, realtime.EventConversationNew, view)
	}
	writeSuccess(w, http.StatusCreated, "Conversation created", view)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ucs, err := h.convRepo.ListForUser(r.Context(), userID)
	if err != nil {
		logger.Errorf("listConversations: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load conversations")
		return
	}
	views := make([]model.ConversationView, 0, len(ucs))
	for i := range ucs {
		view, err := h.buildView(r.Context(), &ucs[i].Conversation, ucs[i].Member.Window())
		if err != nil {
			logger.Errorf("listConversations view %s: %v", ucs[i].ID, err)
			writeError(w, http.StatusInternalServerError, "Could not load conversations")
			return
		}
		views = append(views, *view)
	}
	writeSuccess(w, http.StatusOK, "Conversations loaded", views)
}

func (h *ConversationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	conv, member, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	view, err := h.buildView(r.Context(), conv, member.Window())
	if err != nil {
		logger.Errorf("getConversation view: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load conversation")
		return
	}
	writeSuccess(w, http.StatusOK, "Conversation loaded", view)
}

// Seen marks the latest message as seen by the caller. A conversation with
// no messages, an own last message or an already-seen one is a no-op.
func (h *ConversationHandler) Seen(w http.ResponseWriter, r *http.Request) {
	conv, member, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	userID := member.UserID
	latest, err := h.msgRepo.ListLatest(r.Context(), conv.ID, 1)
	if err != nil {
		logger.Errorf("seen latest: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not mark as seen")
		return
	}
	if len(latest) == 0 || latest[0].SenderID == userID {
		writeSuccess(w, http.StatusOK, "Seen", nil)
		return
	}
	for _, u := range latest[0].SeenUsers {
		if u.ID == userID {
			writeSuccess(w, http.StatusOK, "Seen", nil)
			return
		}
	}
	msg, err := h.msgRepo.SeenLatest(r.Context(), conv.ID, userID)
	if err != nil {
		logger.Errorf("seen mark: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not mark as seen")
		return
	}
	h.trigger(userID, realtime.EventConversationUpdate, realtime.ConversationUpdatePayload{
		Tag:            realtime.TagSeen,
		ConversationID: conv.ID,
		Seen:           msg,
	})
	h.trigger(conv.ID, realtime.EventMessageUpdate, msg)
	writeSuccess(w, http.StatusOK, "Seen", msg)
}

// requireGroupAdmin layers the group and admin-role checks used by the
// metadata and membership operations.
func (h *ConversationHandler) requireGroupAdmin(w http.ResponseWriter, r *http.Request) (*model.Conversation, *model.ConversationMember, bool) {
	conv, member, ok := h.requireMember(w, r)
	if !ok {
		return nil, nil, false
	}
	if !conv.IsGroup {
		writeError(w, http.StatusBadRequest, "Cannot update a direct conversation")
		return nil, nil, false
	}
	if member.Role != model.MemberRoleAdmin {
		writeError(w, http.StatusForbidden, msgInvalidConversation)
		return nil, nil, false
	}
	return conv, member, true
}

const maxThumbSize = 10 << 20

func (h *ConversationHandler) UpdateThumb(w http.ResponseWriter, r *http.Request) {
	conv, member, ok := h.requireGroupAdmin(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxThumbSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Thumbnail file is required")
		return
	}
	defer file.Close()
	url, err := h.media.Upload(r.Context(), "thumb", header.Filename, file)
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "Media service not configured")
			return
		}
		logger.Errorf("thumb upload: %v", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	old, err := h.convRepo.UpdateThumb(r.Context(), conv.ID, url)
	if err != nil {
		logger.Errorf("thumb update: %v", err)
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
	conv.Thumb = url
	actor, err := h.userRepo.GetByID(r.Context(), member.UserID)
	if err == nil {
		h.systemMessage(r.Context(), actor, conv.ID,
			fmt.Sprintf("%s changed the conversation photo", actor.DisplayName), model.MessageTypeUpdateThumb)
	}
	h.fanOutUpdate(r.Context(), conv.ID, realtime.ConversationUpdatePayload{
		Tag:            realtime.TagUpdateThumb,
		ConversationID: conv.ID,
		Conversation:   conv,
	})
	writeSuccess(w, http.StatusOK, "Thumbnail updated", map[string]string{"thumb": url})
}

type UpdateInfoRequest struct {
	Name string `json:"name"`
}

func (h *ConversationHandler) UpdateInfo(w http.ResponseWriter, r *http.Request) {
	conv, member, ok := h.requireGroupAdmin(w, r)
	if !ok {
		return
	}
	var req UpdateInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if err := h.convRepo.UpdateInfo(r.Context(), conv.ID, name); err != nil {
		logger.Errorf("updateInfo: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not update conversation")
		return
	}
	conv.Name = name
	actor, err := h.userRepo.GetByID(r.Context(), member.UserID)
	if err == nil {
		h.systemMessage(r.Context(), actor, conv.ID,
			fmt.Sprintf("%s renamed the conversation to %s", actor.DisplayName, name), model.MessageTypeUpdateInfo)
	}
	h.fanOutUpdate(r.Context(), conv.ID, realtime.ConversationUpdatePayload{
		Tag:            realtime.TagUpdateInfo,
		ConversationID: conv.ID,
		Conversation:   conv,
	})
	writeSuccess(w, http.StatusOK, "Conversation updated", conv)
}

type AddMembersRequest struct {
	MemberIDs []string `json:"member_ids"`
}

func (h *ConversationHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	var req AddMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	for _, id := range req.MemberIDs {
		if id == userID {
			writeError(w, http.StatusBadRequest, "Cannot add yourself")
			return
		}
	}
	conv, member, ok := h.requireGroupAdmin(w, r)
	if !ok {
		return
	}
	if len(req.MemberIDs) == 0 {
		writeError(w, http.StatusBadRequest, "No new members to add")
		return
	}
	existing, err := h.convRepo.ListMembers(r.Context(), conv.ID)
	if err != nil {
		logger.Errorf("addMembers list: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not add members")
		return
	}
	present := make(map[string]bool, len(existing))
	for _, m := range existing {
		present[m.UserID] = true
	}
	newIDs := []string{}
	for _, id := range req.MemberIDs {
		if !present[id] {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		writeError(w, http.StatusBadRequest, "No new members to add")
		return
	}
	profiles, err := h.userRepo.ListPublicByIDs(r.Context(), newIDs)
	if err != nil {
		logger.Errorf("addMembers users: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not add members")
		return
	}
	if len(profiles) != len(newIDs) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err := h.convRepo.AddMembers(r.Context(), conv.ID, newIDs); err != nil {
		logger.Errorf("addMembers: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not add members")
		return
	}
	actor, err := h.userRepo.GetByID(r.Context(), member.UserID)
	if err == nil {
		h.systemMessage(r.Context(), actor, conv.ID,
			fmt.Sprintf("%s added %d member(s)", actor.DisplayName, len(newIDs)), model.MessageTypeAddMember)
	}
	view, err := h.buildView(r.Context(), conv, member.Window())
	if err != nil {
		logger.Errorf("addMembers view: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not add members")
		return
	}
	for _, id := range newIDs {
		h.trigger(id, realtime.EventConversationNew, view)
	}
	for _, m := range existing {
		h.trigger(m.UserID, realtime.EventConversationUpdate, realtime.ConversationUpdatePayload{
			Tag:            realtime.TagAddMembers,
			ConversationID: conv.ID,
			Conversation:   view,
			UserIDs:        newIDs,
		})
	}
	writeSuccess(w, http.StatusOK, "Members added", view)
}

type memberTarget struct {
	MemberID string `json:"member_id"`
}

func (h *ConversationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	conv, member, ok := h.requireGroupAdmin(w, r)
	if !ok {
		return
	}
	var req memberTarget
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	target, err := h.convRepo.GetMember(r.Context(), conv.ID, req.MemberID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	if target.Role == model.MemberRoleAdmin {
		writeError(w, http.StatusBadRequest, "Cannot remove an admin")
		return
	}
	if err := h.convRepo.RemoveMembers(r.Context(), conv.ID, []string{req.MemberID}); err != nil {
		logger.Errorf("removeMember: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not remove member")
		return
	}
	actor, err := h.userRepo.GetByID(r.Context(), member.UserID)
	if err == nil {
		h.systemMessage(r.Context(), actor, conv.ID,
			fmt.Sprintf("%s removed a member", actor.DisplayName), model.MessageTypeRmMember)
	}
	h.trigger(req.MemberID, realtime.EventConversationUpdate, realtime.ConversationUpdatePayload{
		Tag:            realtime.TagIsLeaveConversation,
		ConversationID: conv.ID,
	})
	h.fanOutUpdate(r.Context(), conv.ID, realtime.ConversationUpdatePayload{
		Tag:            realtime.TagRemoveMembers,
		ConversationID: conv.ID,
		UserIDs:        []string{req.MemberID},
	})
	writeSuccess(w, http.StatusOK, "Member removed", nil)
}

func (h *ConversationHandler) Leave(w http.ResponseWriter, r *http.Request) {
	conv, member, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	if !conv.IsGroup {
		writeError(w, http.StatusBadRequest, "Cannot leave a direct conversation")
		return
	}
	if member.Role == model.MemberRoleAdmin {
		members, err := h.convRepo.ListMembers(r.Context(), conv.ID)
		if err != nil {
			logger.Errorf("leave list: %v", err)
			writeError(w, http.StatusInternalServerError, "Could not leave conversation")
			return
		}
		admins := 0
		for _, m := range members {
			if m.Role == model.MemberRoleAdmin {
				admins++
			}
		}
		if admins == 1 {
			writeError(w, http.StatusBadRequest, "Cannot leave as the only admin")
			return
		}
	}
	actor, actorErr := h.userRepo.GetByID(r.Context(), member.UserID)
	if err := h.convRepo.RemoveMembers(r.Context(), conv.ID, []string{member.UserID}); err != nil {
		logger.Errorf("leave: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not leave conversation")
		return
	}
	if actorErr == nil {
		h.systemMessage(r.Context(), actor, conv.ID,
			fmt.Sprintf("%s left the conversation", actor.DisplayName), model.MessageTypeLeave)
	}
	h.trigger(member.UserID, realtime.EventConversationUpdate, realtime.ConversationUpdatePayload{
		Tag:            realtime.TagIsLeaveConversation,
		ConversationID: conv.ID,
	})
	h.fanOutUpdate(r.Context(), conv.ID, realtime.ConversationUpdatePayload{
		Tag:            realtime.TagLeaveConversation,
		ConversationID: conv.ID,
		UserIDs:        []string{member.UserID},
	})
	writeSuccess(w, http.StatusOK, "Left conversation", nil)
}

func (h *ConversationHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	var req memberTarget
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if req.MemberID == userID {
		writeError(w, http.StatusBadRequest, "Cannot add yourself")
		return
	}
	conv, member, ok := h.requireGroupAdmin(w, r)
	if !ok {
		return
	}
	target, err := h.convRepo.GetMember(r.Context(), conv.ID, req.MemberID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	if target.Role == model.MemberRoleAdmin {
		writeError(w, http.StatusConflict, "Already an admin")
		return
	}
	// Read the member list before the promotion: the admin set in the
	// response is the pre-promotion admins plus the target, independent of
	// any post-write read.
	members, err := h.convRepo.ListMembers(r.Context(), conv.ID)
	if err != nil {
		logger.Errorf("addAdmin list: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not add admin")
		return
	}
	if err := h.convRepo.AddAdmins(r.Context(), conv.ID, []string{req.MemberID}); err != nil {
		logger.Errorf("addAdmin: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not add admin")
		return
	}
	actor, err := h.userRepo.GetByID(r.Context(), member.UserID)
	if err == nil {
		h.systemMessage(r.Context(), actor, conv.ID,
			fmt.Sprintf("%s promoted a member to admin", actor.DisplayName), model.MessageTypeAddAdmin)
	}
	adminIDs := []string{}
	for _, m := range members {
		if m.Role == model.MemberRoleAdmin {
			adminIDs = append(adminIDs, m.UserID)
		}
	}
	adminIDs = append(adminIDs, req.MemberID)
	payload := realtime.ConversationUpdatePayload{
		Tag:            realtime.TagUpdateAdmins,
		ConversationID: conv.ID,
		UserIDs:        adminIDs,
	}
	for _, m := range members {
		h.trigger(m.UserID, realtime.EventConversationUpdate, payload)
	}
	writeSuccess(w, http.StatusOK, "Admin added", map[string][]string{"admins": adminIDs})
}

func (h *ConversationHandler) Images(w http.ResponseWriter, r *http.Request) {
	conv, _, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	images, err := h.msgRepo.ListImages(r.Context(), conv.ID)
	if err != nil {
		logger.Errorf("images: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load images")
		return
	}
	writeSuccess(w, http.StatusOK, "Images loaded", images)
}

func (h *ConversationHandler) Links(w http.ResponseWriter, r *http.Request) {
	conv, _, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	msgs, err := h.msgRepo.ListWithLinks(r.Context(), conv.ID)
	if err != nil {
		logger.Errorf("links: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load links")
		return
	}
	links := []model.MessageLink{}
	for i := range msgs {
		for _, link := range model.ExtractLinks(msgs[i].Content) {
			links = append(links, model.MessageLink{
				MessageID: msgs[i].ID,
				Sender:    msgs[i].Sender,
				Link:      link,
				CreatedAt: msgs[i].CreatedAt,
			})
		}
	}
	writeSuccess(w, http.StatusOK, "Links loaded", links)
}

func (h *ConversationHandler) SearchByName(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Search query is required")
		return
	}
	userID := middleware.GetUserID(r.Context())
	ucs, err := h.convRepo.SearchByName(r.Context(), userID, query)
	if err != nil {
		logger.Errorf("searchByName: %v", err)
		writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	convs := make([]model.Conversation, 0, len(ucs))
	for _, uc := range ucs {
		convs = append(convs, uc.Conversation)
	}
	writeSuccess(w, http.StatusOK, "Conversations found", convs)
}

type notSeenEntry struct {
	ConversationID string `json:"conversation_id"`
	Count          int    `json:"count"`
}

// NotSeen returns the unseen-message count per conversation, scoped to the
// caller's visibility window.
func (h *ConversationHandler) NotSeen(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ucs, err := h.convRepo.ListForUser(r.Context(), userID)
	if err != nil {
		logger.Errorf("notSeen list: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not count messages")
		return
	}
	out := make([]notSeenEntry, 0, len(ucs))
	for _, uc := range ucs {
		n, err := h.msgRepo.CountNotSeen(r.Context(), uc.ID, userID, uc.Member.Window().Since)
		if err != nil {
			logger.Errorf("notSeen count %s: %v", uc.ID, err)
			writeError(w, http.StatusInternalServerError, "Could not count messages")
			return
		}
		out = append(out, notSeenEntry{ConversationID: uc.ID, Count: n})
	}
	writeSuccess(w, http.StatusOK, "Unseen counts loaded", out)
}

// LeavePer soft-leaves a direct conversation: the caller's membership row is
// dropped but the conversation itself stays.
func (h *ConversationHandler) LeavePer(w http.ResponseWriter, r *http.Request) {
	conv, member, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	if conv.IsGroup {
		writeError(w, http.StatusBadRequest, "Not a direct conversation")
		return
	}
	if err := h.convRepo.RemoveMembers(r.Context(), conv.ID, []string{member.UserID}); err != nil {
		logger.Errorf("leavePer: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not leave conversation")
		return
	}
	writeSuccess(w, http.StatusOK, "Left conversation", nil)
}

// Hidden opens the caller's visibility window on a direct conversation:
// history up to now disappears for them until a new message arrives.
func (h *ConversationHandler) Hidden(w http.ResponseWriter, r *http.Request) {
	conv, member, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	if conv.IsGroup {
		writeError(w, http.StatusBadRequest, "Not a direct conversation")
		return
	}
	if err := h.convRepo.SetHidden(r.Context(), conv.ID, member.UserID, time.Now().UTC()); err != nil {
		logger.Errorf("hidden: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not hide conversation")
		return
	}
	writeSuccess(w, http.StatusOK, "Conversation hidden", nil)
}
