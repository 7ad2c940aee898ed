package service

import (
	"context"
	"time"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/agora/internal/realtime"
	"github.com/agora/internal/repository"
	"github.com/google/uuid"
)

// MessageService is the shared create-message flow: user messages and
// server-generated system messages go through the same persistence, window
// reset and fan-out.
type MessageService struct {
	msgRepo  *repository.MessageRepository
	convRepo *repository.ConversationRepository
	relay    *realtime.Client
}

func NewMessageService(msgRepo *repository.MessageRepository, convRepo *repository.ConversationRepository, relay *realtime.Client) *MessageService {
	return &MessageService{msgRepo: msgRepo, convRepo: convRepo, relay: relay}
}

// Create persists the message, bumps the conversation's activity timestamp,
// clears every member's hidden flag and fans out message:new on the
// conversation channel plus conversation:update on each member's personal
// channel, so members not currently viewing the conversation still refresh
// their previews. The steps after the insert are best-effort: a failed bump
// or relay call logs and moves on, the message itself is already stored.
func (s *MessageService) Create(ctx context.Context, sender *model.User, conversationID, content string, images []string, msgType model.MessageType) (*model.Message, error) {
	defer logger.DeferLogDuration("messageService.Create", time.Now())()
	if images == nil {
		images = []string{}
	}
	now := time.Now().UTC()
	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		Content:        content,
		Images:         images,
		Type:           msgType,
		CreatedAt:      now,
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	sp := sender.ToPublic()
	msg.Sender = &sp
	msg.SeenUsers = []model.UserPublic{}

	if err := s.convRepo.BumpLastMessage(ctx, conversationID, now); err != nil {
		logger.Errorf("bump last message %s: %v", conversationID, err)
	}
	if err := s.convRepo.ClearHiddenAll(ctx, conversationID); err != nil {
		logger.Errorf("clear hidden %s: %v", conversationID, err)
	}
	members, err := s.convRepo.ListMembers(ctx, conversationID)
	if err != nil {
		logger.Errorf("list members %s: %v", conversationID, err)
	}

	go func() {
		fanCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.relay.Trigger(fanCtx, conversationID, realtime.EventMessageNew, realtime.NewMessagePayload{
			ConversationID: conversationID,
			Message:        *msg,
		})
		update := realtime.ConversationUpdatePayload{
			Tag:            realtime.TagNewMessage,
			ConversationID: conversationID,
			Message:        msg,
		}
		for _, m := range members {
			s.relay.Trigger(fanCtx, m.UserID, realtime.EventConversationUpdate, update)
		}
	}()
	return msg, nil
}
