package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FriendRepository struct {
	pool *pgxpool.Pool
}

func NewFriendRepository(pool *pgxpool.Pool) *FriendRepository {
	return &FriendRepository{pool: pool}
}

// AddFriend inserts both directions of the friendship. Duplicate rows are
// ignored so a double accept stays idempotent.
func (r *FriendRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	defer logger.DeferLogDuration("friend.AddFriend", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO friends (user_id, friend_id) VALUES ($1, $2), ($2, $1)
		 ON CONFLICT DO NOTHING`,
		userID, friendID,
	)
	if err != nil {
		return fmt.Errorf("friendRepo.AddFriend: %w", err)
	}
	return nil
}

func (r *FriendRepository) RemoveFriend(ctx context.Context, userID, friendID string) error {
	defer logger.DeferLogDuration("friend.RemoveFriend", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM friends
		 WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
		userID, friendID,
	)
	if err != nil {
		return fmt.Errorf("friendRepo.RemoveFriend: %w", err)
	}
	return nil
}

func (r *FriendRepository) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	defer logger.DeferLogDuration("friend.AreFriends", time.Now())()
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2)`,
		userID, friendID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("friendRepo.AreFriends: %w", err)
	}
	return ok, nil
}

func (r *FriendRepository) ListFriends(ctx context.Context, userID string) ([]model.UserPublic, error) {
	defer logger.DeferLogDuration("friend.ListFriends", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userPublicColsU+`
		 FROM friends f JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = $1
		 ORDER BY u.display_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("friendRepo.ListFriends query: %w", err)
	}
	defer rows.Close()
	friends := []model.UserPublic{}
	for rows.Next() {
		var u model.UserPublic
		if err := scanUserPublic(rows, &u); err != nil {
			return nil, fmt.Errorf("friendRepo.ListFriends scan: %w", err)
		}
		friends = append(friends, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("friendRepo.ListFriends rows: %w", err)
	}
	return friends, nil
}

func (r *FriendRepository) CreateRequest(ctx context.Context, senderID, receiverID, message string) error {
	defer logger.DeferLogDuration("friend.CreateRequest", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id, message, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		senderID, receiverID, message, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("friendRepo.CreateRequest: %w", err)
	}
	return nil
}

// DeleteRequest removes the request regardless of which side triggers it
// (accept, reject, cancel all end here).
func (r *FriendRepository) DeleteRequest(ctx context.Context, senderID, receiverID string) error {
	defer logger.DeferLogDuration("friend.DeleteRequest", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2`,
		senderID, receiverID,
	)
	if err != nil {
		return fmt.Errorf("friendRepo.DeleteRequest: %w", err)
	}
	return nil
}

func (r *FriendRepository) RequestExists(ctx context.Context, senderID, receiverID string) (bool, error) {
	defer logger.DeferLogDuration("friend.RequestExists", time.Now())()
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2)`,
		senderID, receiverID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("friendRepo.RequestExists: %w", err)
	}
	return ok, nil
}

func (r *FriendRepository) ListIncoming(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	defer logger.DeferLogDuration("friend.ListIncoming", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userPublicColsU+`, fr.message, fr.created_at
		 FROM friend_requests fr JOIN users u ON u.id = fr.sender_id
		 WHERE fr.receiver_id = $1
		 ORDER BY fr.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("friendRepo.ListIncoming query: %w", err)
	}
	defer rows.Close()
	reqs := []model.FriendRequest{}
	for rows.Next() {
		var fr model.FriendRequest
		if err := rows.Scan(&fr.Sender.ID, &fr.Sender.FirstName, &fr.Sender.LastName, &fr.Sender.DisplayName, &fr.Sender.Email, &fr.Sender.Avatar, &fr.Message, &fr.CreatedAt); err != nil {
			return nil, fmt.Errorf("friendRepo.ListIncoming scan: %w", err)
		}
		reqs = append(reqs, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("friendRepo.ListIncoming rows: %w", err)
	}
	return reqs, nil
}

func (r *FriendRepository) ListOutgoing(ctx context.Context, userID string) ([]model.SentRequest, error) {
	defer logger.DeferLogDuration("friend.ListOutgoing", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userPublicColsU+`, fr.message, fr.created_at
		 FROM friend_requests fr JOIN users u ON u.id = fr.receiver_id
		 WHERE fr.sender_id = $1
		 ORDER BY fr.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("friendRepo.ListOutgoing query: %w", err)
	}
	defer rows.Close()
	reqs := []model.SentRequest{}
	for rows.Next() {
		var sr model.SentRequest
		if err := rows.Scan(&sr.Receiver.ID, &sr.Receiver.FirstName, &sr.Receiver.LastName, &sr.Receiver.DisplayName, &sr.Receiver.Email, &sr.Receiver.Avatar, &sr.Message, &sr.CreatedAt); err != nil {
			return nil, fmt.Errorf("friendRepo.ListOutgoing scan: %w", err)
		}
		reqs = append(reqs, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("friendRepo.ListOutgoing rows: %w", err)
	}
	return reqs, nil
}

// ListStrangers returns users who are neither the user nor their friends,
// annotated with a pending-request flag. Mutual friends are filled by a
// second query keyed by stranger id.
func (r *FriendRepository) ListStrangers(ctx context.Context, userID string, limit int) ([]model.Stranger, error) {
	defer logger.DeferLogDuration("friend.ListStrangers", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userPublicColsU+`,
		        EXISTS (SELECT 1 FROM friend_requests fr WHERE fr.sender_id = $1 AND fr.receiver_id = u.id)
		 FROM users u
		 WHERE u.id <> $1
		   AND NOT EXISTS (SELECT 1 FROM friends f WHERE f.user_id = $1 AND f.friend_id = u.id)
		 ORDER BY u.display_name
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("friendRepo.ListStrangers query: %w", err)
	}
	defer rows.Close()
	strangers := []model.Stranger{}
	for rows.Next() {
		var s model.Stranger
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.DisplayName, &s.Email, &s.Avatar, &s.IsWaitingAccept); err != nil {
			return nil, fmt.Errorf("friendRepo.ListStrangers scan: %w", err)
		}
		s.MutualFriends = []model.UserPublic{}
		strangers = append(strangers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("friendRepo.ListStrangers rows: %w", err)
	}
	if len(strangers) == 0 {
		return strangers, nil
	}

	ids := make([]string, len(strangers))
	idx := make(map[string]int, len(strangers))
	for i, s := range strangers {
		ids[i] = s.ID
		idx[s.ID] = i
	}
	mrows, err := r.pool.Query(ctx,
		`SELECT sf.user_id, `+userPublicColsU+`
		 FROM friends sf
		 JOIN friends mf ON mf.user_id = $1 AND mf.friend_id = sf.friend_id
		 JOIN users u ON u.id = sf.friend_id
		 WHERE sf.user_id = ANY($2)`,
		userID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("friendRepo.ListStrangers mutual query: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var strangerID string
		var u model.UserPublic
		if err := mrows.Scan(&strangerID, &u.ID, &u.FirstName, &u.LastName, &u.DisplayName, &u.Email, &u.Avatar); err != nil {
			return nil, fmt.Errorf("friendRepo.ListStrangers mutual scan: %w", err)
		}
		if i, ok := idx[strangerID]; ok {
			strangers[i].MutualFriends = append(strangers[i].MutualFriends, u)
		}
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("friendRepo.ListStrangers mutual rows: %w", err)
	}
	return strangers, nil
}
