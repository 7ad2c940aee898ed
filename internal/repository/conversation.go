package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationCols = `id, name, is_group, thumb, last_message_at, created_at`

const memberCols = `conversation_id, user_id, role, hidden, hidden_at, joined_at`

// prefixedConversationCols is conversationCols qualified with the "c" alias.
const prefixedConversationCols = `c.id, c.name, c.is_group, c.thumb, c.last_message_at, c.created_at`

// UserConversation pairs a conversation with the requesting user's own
// membership row (role and visibility window).
type UserConversation struct {
	model.Conversation
	Member model.ConversationMember
}

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	return s.Scan(&c.ID, &c.Name, &c.IsGroup, &c.Thumb, &c.LastMessageAt, &c.CreatedAt)
}

func scanMember(s interface{ Scan(dest ...any) error }, m *model.ConversationMember) error {
	return s.Scan(&m.ConversationID, &m.UserID, &m.Role, &m.Hidden, &m.HiddenAt, &m.JoinedAt)
}

// Create inserts the conversation and its member rows. For groups only the
// creator gets the admin role; in a direct conversation both sides are
// admins.
func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation, memberIDs []string, creatorID string) error {
	defer logger.DeferLogDuration("conversation.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, name, is_group, thumb, last_message_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.IsGroup, c.Thumb, c.LastMessageAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.Create: %w", err)
	}
	for _, uid := range memberIDs {
		role := model.MemberRoleAdmin
		if c.IsGroup && uid != creatorID {
			role = model.MemberRoleMember
		}
		_, err := r.pool.Exec(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			c.ID, uid, role, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("conversationRepo.Create member: %w", err)
		}
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.GetByID", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", err)
	}
	return c, nil
}

// GetMember returns the membership row or ErrNotFound when the user is not a
// member (permission checks hang off this).
func (r *ConversationRepository) GetMember(ctx context.Context, conversationID, userID string) (*model.ConversationMember, error) {
	defer logger.DeferLogDuration("conversation.GetMember", time.Now())()
	m := &model.ConversationMember{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+memberCols+` FROM conversation_members WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err := scanMember(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversationRepo.GetMember: %w", err)
	}
	return m, nil
}

// ListForUser returns every conversation the user belongs to, newest activity
// first, each with the user's own membership row.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]UserConversation, error) {
	defer logger.DeferLogDuration("conversation.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.name, c.is_group, c.thumb, c.last_message_at, c.created_at,
		        m.conversation_id, m.user_id, m.role, m.hidden, m.hidden_at, m.joined_at
		 FROM conversations c
		 JOIN conversation_members m ON m.conversation_id = c.id
		 WHERE m.user_id = $1
		 ORDER BY c.last_message_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.ListForUser query: %w", err)
	}
	defer rows.Close()
	out := []UserConversation{}
	for rows.Next() {
		var uc UserConversation
		if err := rows.Scan(
			&uc.ID, &uc.Name, &uc.IsGroup, &uc.Thumb, &uc.LastMessageAt, &uc.CreatedAt,
			&uc.Member.ConversationID, &uc.Member.UserID, &uc.Member.Role, &uc.Member.Hidden, &uc.Member.HiddenAt, &uc.Member.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("conversationRepo.ListForUser scan: %w", err)
		}
		out = append(out, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversationRepo.ListForUser rows: %w", err)
	}
	return out, nil
}

func (r *ConversationRepository) ListMembers(ctx context.Context, conversationID string) ([]model.ConversationMember, error) {
	defer logger.DeferLogDuration("conversation.ListMembers", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+memberCols+` FROM conversation_members WHERE conversation_id = $1 ORDER BY joined_at`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.ListMembers query: %w", err)
	}
	defer rows.Close()
	members := []model.ConversationMember{}
	for rows.Next() {
		var m model.ConversationMember
		if err := scanMember(rows, &m); err != nil {
			return nil, fmt.Errorf("conversationRepo.ListMembers scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversationRepo.ListMembers rows: %w", err)
	}
	return members, nil
}

func (r *ConversationRepository) ListMemberProfiles(ctx context.Context, conversationID string) ([]model.UserPublic, error) {
	defer logger.DeferLogDuration("conversation.ListMemberProfiles", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userPublicColsU+`
		 FROM conversation_members m JOIN users u ON u.id = m.user_id
		 WHERE m.conversation_id = $1
		 ORDER BY m.joined_at`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.ListMemberProfiles query: %w", err)
	}
	defer rows.Close()
	users := []model.UserPublic{}
	for rows.Next() {
		var u model.UserPublic
		if err := scanUserPublic(rows, &u); err != nil {
			return nil, fmt.Errorf("conversationRepo.ListMemberProfiles scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversationRepo.ListMemberProfiles rows: %w", err)
	}
	return users, nil
}

func (r *ConversationRepository) AddMembers(ctx context.Context, conversationID string, userIDs []string) error {
	defer logger.DeferLogDuration("conversation.AddMembers", time.Now())()
	now := time.Now().UTC()
	for _, uid := range userIDs {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
			 VALUES ($1, $2, 'member', $3) ON CONFLICT DO NOTHING`,
			conversationID, uid, now,
		)
		if err != nil {
			return fmt.Errorf("conversationRepo.AddMembers: %w", err)
		}
	}
	return nil
}

func (r *ConversationRepository) RemoveMembers(ctx context.Context, conversationID string, userIDs []string) error {
	defer logger.DeferLogDuration("conversation.RemoveMembers", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM conversation_members WHERE conversation_id = $1 AND user_id = ANY($2)`,
		conversationID, userIDs,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.RemoveMembers: %w", err)
	}
	return nil
}

func (r *ConversationRepository) AddAdmins(ctx context.Context, conversationID string, userIDs []string) error {
	defer logger.DeferLogDuration("conversation.AddAdmins", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversation_members SET role = 'admin'
		 WHERE conversation_id = $1 AND user_id = ANY($2)`,
		conversationID, userIDs,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.AddAdmins: %w", err)
	}
	return nil
}

func (r *ConversationRepository) UpdateInfo(ctx context.Context, conversationID, name string) error {
	defer logger.DeferLogDuration("conversation.UpdateInfo", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET name = $2 WHERE id = $1`, conversationID, name)
	if err != nil {
		return fmt.Errorf("conversationRepo.UpdateInfo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateThumb swaps the thumbnail and returns the previous URL so the caller
// can delete the old file from the media store.
func (r *ConversationRepository) UpdateThumb(ctx context.Context, conversationID, thumb string) (string, error) {
	defer logger.DeferLogDuration("conversation.UpdateThumb", time.Now())()
	var old string
	row := r.pool.QueryRow(ctx,
		`UPDATE conversations c SET thumb = $2
		 FROM (SELECT id, thumb FROM conversations WHERE id = $1) prev
		 WHERE c.id = prev.id
		 RETURNING prev.thumb`,
		conversationID, thumb,
	)
	if err := row.Scan(&old); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("conversationRepo.UpdateThumb: %w", err)
	}
	return old, nil
}

// SetHidden opens a visibility window for the user: history up to now
// disappears for them until the next message clears the flag.
func (r *ConversationRepository) SetHidden(ctx context.Context, conversationID, userID string, at time.Time) error {
	defer logger.DeferLogDuration("conversation.SetHidden", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversation_members SET hidden = TRUE, hidden_at = $3
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.SetHidden: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearHiddenAll drops the hidden flag for every member but keeps hidden_at,
// so pre-hide history stays out of sight.
func (r *ConversationRepository) ClearHiddenAll(ctx context.Context, conversationID string) error {
	defer logger.DeferLogDuration("conversation.ClearHiddenAll", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversation_members SET hidden = FALSE WHERE conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.ClearHiddenAll: %w", err)
	}
	return nil
}

func (r *ConversationRepository) BumpLastMessage(ctx context.Context, conversationID string, at time.Time) error {
	defer logger.DeferLogDuration("conversation.BumpLastMessage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_message_at = $2 WHERE id = $1`,
		conversationID, at,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.BumpLastMessage: %w", err)
	}
	return nil
}

// FindDirect returns the existing one-to-one conversation between two users.
func (r *ConversationRepository) FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.FindDirect", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+prefixedConversationCols+`
		 FROM conversations c
		 JOIN conversation_members ma ON ma.conversation_id = c.id AND ma.user_id = $1
		 JOIN conversation_members mb ON mb.conversation_id = c.id AND mb.user_id = $2
		 WHERE c.is_group = FALSE
		 LIMIT 1`,
		userA, userB,
	)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversationRepo.FindDirect: %w", err)
	}
	return c, nil
}

// SearchByName matches the user's conversations by name, case-insensitive.
func (r *ConversationRepository) SearchByName(ctx context.Context, userID, query string) ([]UserConversation, error) {
	defer logger.DeferLogDuration("conversation.SearchByName", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.name, c.is_group, c.thumb, c.last_message_at, c.created_at,
		        m.conversation_id, m.user_id, m.role, m.hidden, m.hidden_at, m.joined_at
		 FROM conversations c
		 JOIN conversation_members m ON m.conversation_id = c.id
		 WHERE m.user_id = $1 AND c.name ILIKE $2
		 ORDER BY c.last_message_at DESC`,
		userID, "%"+query+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.SearchByName query: %w", err)
	}
	defer rows.Close()
	out := []UserConversation{}
	for rows.Next() {
		var uc UserConversation
		if err := rows.Scan(
			&uc.ID, &uc.Name, &uc.IsGroup, &uc.Thumb, &uc.LastMessageAt, &uc.CreatedAt,
			&uc.Member.ConversationID, &uc.Member.UserID, &uc.Member.Role, &uc.Member.Hidden, &uc.Member.HiddenAt, &uc.Member.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("conversationRepo.SearchByName scan: %w", err)
		}
		out = append(out, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversationRepo.SearchByName rows: %w", err)
	}
	return out, nil
}
