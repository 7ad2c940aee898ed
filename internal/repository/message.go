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

const messageCols = `m.id, m.conversation_id, m.sender_id, m.content, m.images, m.type, m.created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// messageSelect joins the sender profile onto every message row.
const messageSelect = `SELECT ` + messageCols + `, ` + userPublicColsU + `
	 FROM messages m JOIN users u ON u.id = m.sender_id`

func scanMessage(s interface{ Scan(dest ...any) error }, msg *model.Message) error {
	var sender model.UserPublic
	err := s.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Images, &msg.Type, &msg.CreatedAt,
		&sender.ID, &sender.FirstName, &sender.LastName, &sender.DisplayName, &sender.Email, &sender.Avatar,
	)
	if err != nil {
		return err
	}
	msg.Sender = &sender
	if msg.Images == nil {
		msg.Images = []string{}
	}
	msg.SeenUsers = []model.UserPublic{}
	return nil
}

func (r *MessageRepository) collectMessages(rows pgx.Rows, op string) ([]model.Message, error) {
	defer rows.Close()
	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("messageRepo.%s scan: %w", op, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messageRepo.%s rows: %w", op, err)
	}
	return msgs, nil
}

// populateSeen fills SeenUsers for the given messages in one extra query.
func (r *MessageRepository) populateSeen(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	idx := make(map[string]int, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		idx[msgs[i].ID] = i
	}
	rows, err := r.pool.Query(ctx,
		`SELECT ms.message_id, `+userPublicColsU+`
		 FROM message_seen ms JOIN users u ON u.id = ms.user_id
		 WHERE ms.message_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("messageRepo.populateSeen query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var msgID string
		var u model.UserPublic
		if err := rows.Scan(&msgID, &u.ID, &u.FirstName, &u.LastName, &u.DisplayName, &u.Email, &u.Avatar); err != nil {
			return fmt.Errorf("messageRepo.populateSeen scan: %w", err)
		}
		if i, ok := idx[msgID]; ok {
			msgs[i].SeenUsers = append(msgs[i].SeenUsers, u)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("messageRepo.populateSeen rows: %w", err)
	}
	return nil
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("message.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, images, type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.Images, m.Type, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("messageRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("messageRepo.GetByID: %w", err)
	}
	seen, err := r.seenFor(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	m.SeenUsers = seen
	return m, nil
}

func (r *MessageRepository) seenFor(ctx context.Context, messageID string) ([]model.UserPublic, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userPublicColsU+`
		 FROM message_seen ms JOIN users u ON u.id = ms.user_id
		 WHERE ms.message_id = $1`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.seenFor query: %w", err)
	}
	defer rows.Close()
	users := []model.UserPublic{}
	for rows.Next() {
		var u model.UserPublic
		if err := scanUserPublic(rows, &u); err != nil {
			return nil, fmt.Errorf("messageRepo.seenFor scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messageRepo.seenFor rows: %w", err)
	}
	return users, nil
}

// ListAll returns every message of the conversation, newest first.
func (r *MessageRepository) ListAll(ctx context.Context, conversationID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListAll", time.Now())()
	rows, err := r.pool.Query(ctx,
		messageSelect+` WHERE m.conversation_id = $1 ORDER BY m.created_at DESC, m.id DESC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListAll query: %w", err)
	}
	msgs, err := r.collectMessages(rows, "ListAll")
	if err != nil {
		return nil, err
	}
	if err := r.populateSeen(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListLatest returns the newest limit messages in chronological order.
func (r *MessageRepository) ListLatest(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListLatest", time.Now())()
	rows, err := r.pool.Query(ctx,
		messageSelect+` WHERE m.conversation_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListLatest query: %w", err)
	}
	msgs, err := r.collectMessages(rows, "ListLatest")
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	if err := r.populateSeen(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListBefore returns up to limit messages older than the cursor, newest
// first.
func (r *MessageRepository) ListBefore(ctx context.Context, conversationID string, cursorAt time.Time, cursorID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListBefore", time.Now())()
	rows, err := r.pool.Query(ctx,
		messageSelect+` WHERE m.conversation_id = $1 AND (m.created_at, m.id) < ($2, $3)
		 ORDER BY m.created_at DESC, m.id DESC LIMIT $4`,
		conversationID, cursorAt, cursorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListBefore query: %w", err)
	}
	msgs, err := r.collectMessages(rows, "ListBefore")
	if err != nil {
		return nil, err
	}
	if err := r.populateSeen(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListAfter returns up to limit messages newer than the cursor in
// chronological order.
func (r *MessageRepository) ListAfter(ctx context.Context, conversationID string, cursorAt time.Time, cursorID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListAfter", time.Now())()
	rows, err := r.pool.Query(ctx,
		messageSelect+` WHERE m.conversation_id = $1 AND (m.created_at, m.id) > ($2, $3)
		 ORDER BY m.created_at, m.id LIMIT $4`,
		conversationID, cursorAt, cursorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListAfter query: %w", err)
	}
	msgs, err := r.collectMessages(rows, "ListAfter")
	if err != nil {
		return nil, err
	}
	if err := r.populateSeen(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRangeOlder returns up to n text/image messages strictly before the
// anchor, flipped to chronological order.
func (r *MessageRepository) ListRangeOlder(ctx context.Context, conversationID string, anchorAt time.Time, anchorID string, n int) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListRangeOlder", time.Now())()
	rows, err := r.pool.Query(ctx,
		messageSelect+` WHERE m.conversation_id = $1 AND m.type IN ('TEXT', 'IMAGE')
		   AND (m.created_at, m.id) < ($2, $3)
		 ORDER BY m.created_at DESC, m.id DESC LIMIT $4`,
		conversationID, anchorAt, anchorID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListRangeOlder query: %w", err)
	}
	msgs, err := r.collectMessages(rows, "ListRangeOlder")
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	if err := r.populateSeen(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRangeNewer returns up to n text/image messages at or after the anchor,
// anchor included, in chronological order.
func (r *MessageRepository) ListRangeNewer(ctx context.Context, conversationID string, anchorAt time.Time, anchorID string, n int) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListRangeNewer", time.Now())()
	rows, err := r.pool.Query(ctx,
		messageSelect+` WHERE m.conversation_id = $1 AND m.type IN ('TEXT', 'IMAGE')
		   AND (m.created_at, m.id) >= ($2, $3)
		 ORDER BY m.created_at, m.id LIMIT $4`,
		conversationID, anchorAt, anchorID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListRangeNewer query: %w", err)
	}
	msgs, err := r.collectMessages(rows, "ListRangeNewer")
	if err != nil {
		return nil, err
	}
	if err := r.populateSeen(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Search matches text/image messages by content, newest first, unpaginated.
func (r *MessageRepository) Search(ctx context.Context, conversationID, query string) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.Search", time.Now())()
	rows, err := r.pool.Query(ctx,
		messageSelect+` WHERE m.conversation_id = $1 AND m.type IN ('TEXT', 'IMAGE')
		   AND m.content ILIKE $2
		 ORDER BY m.created_at DESC, m.id DESC`,
		conversationID, "%"+query+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.Search query: %w", err)
	}
	msgs, err := r.collectMessages(rows, "Search")
	if err != nil {
		return nil, err
	}
	if err := r.populateSeen(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SeenLatest marks the newest message of the conversation as seen by the
// user. Returns the marked message, or ErrNotFound for an empty conversation.
func (r *MessageRepository) SeenLatest(ctx context.Context, conversationID, userID string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.SeenLatest", time.Now())()
	var id string
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		conversationID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("messageRepo.SeenLatest: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO message_seen (message_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.SeenLatest insert: %w", err)
	}
	return r.GetByID(ctx, id)
}

// CountNotSeen counts messages from others the user has not marked seen,
// restricted to the visible window (since zero means no restriction).
func (r *MessageRepository) CountNotSeen(ctx context.Context, conversationID, userID string, since time.Time) (int, error) {
	defer logger.DeferLogDuration("message.CountNotSeen", time.Now())()
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 WHERE m.conversation_id = $1 AND m.sender_id <> $2
		   AND ($3::timestamptz IS NULL OR m.created_at > $3)
		   AND NOT EXISTS (SELECT 1 FROM message_seen ms WHERE ms.message_id = m.id AND ms.user_id = $2)`,
		conversationID, userID, nullableTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("messageRepo.CountNotSeen: %w", err)
	}
	return n, nil
}

// ListImages flattens the image arrays of the conversation into gallery
// entries, newest first.
func (r *MessageRepository) ListImages(ctx context.Context, conversationID string) ([]model.MessageImage, error) {
	defer logger.DeferLogDuration("message.ListImages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, img, m.created_at, `+userPublicColsU+`
		 FROM messages m
		 CROSS JOIN unnest(m.images) AS img
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.conversation_id = $1
		 ORDER BY m.created_at DESC, m.id DESC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListImages query: %w", err)
	}
	defer rows.Close()
	images := []model.MessageImage{}
	for rows.Next() {
		var mi model.MessageImage
		var sender model.UserPublic
		if err := rows.Scan(&mi.MessageID, &mi.Image, &mi.CreatedAt,
			&sender.ID, &sender.FirstName, &sender.LastName, &sender.DisplayName, &sender.Email, &sender.Avatar); err != nil {
			return nil, fmt.Errorf("messageRepo.ListImages scan: %w", err)
		}
		mi.Sender = &sender
		images = append(images, mi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messageRepo.ListImages rows: %w", err)
	}
	return images, nil
}

// ListWithLinks returns text messages that look like they contain a URL;
// the caller extracts the actual links.
func (r *MessageRepository) ListWithLinks(ctx context.Context, conversationID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListWithLinks", time.Now())()
	rows, err := r.pool.Query(ctx,
		messageSelect+` WHERE m.conversation_id = $1 AND m.type = 'TEXT' AND m.content ILIKE '%http%'
		 ORDER BY m.created_at DESC, m.id DESC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListWithLinks query: %w", err)
	}
	return r.collectMessages(rows, "ListWithLinks")
}

func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// nullableTime maps the zero time to NULL for optional SQL filters.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
