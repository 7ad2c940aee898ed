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

var ErrNotFound = errors.New("not found")

const userCols = `id, first_name, last_name, display_name, email, password_hash, avatar, status, role, account_type, created_at`

const userPublicCols = `id, first_name, last_name, display_name, email, avatar`

// userPublicColsU is userPublicCols qualified with the "u" alias for joins.
const userPublicColsU = `u.id, u.first_name, u.last_name, u.display_name, u.email, u.avatar`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser scans a row into model.User (order matches userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.FirstName, &u.LastName, &u.DisplayName, &u.Email, &u.PasswordHash, &u.Avatar, &u.Status, &u.Role, &u.AccountType, &u.CreatedAt)
}

func scanUserPublic(s interface{ Scan(dest ...any) error }, u *model.UserPublic) error {
	return s.Scan(&u.ID, &u.FirstName, &u.LastName, &u.DisplayName, &u.Email, &u.Avatar)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, first_name, last_name, display_name, email, password_hash, avatar, status, role, account_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.FirstName, u.LastName, u.DisplayName, u.Email, u.PasswordHash, u.Avatar, u.Status, u.Role, u.AccountType, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	defer logger.DeferLogDuration("user.UpdateStatus", time.Now())()
	tag, err := r.pool.Exec(ctx, `UPDATE users SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("userRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	defer logger.DeferLogDuration("user.UpdatePassword", time.Now())()
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("userRepo.UpdatePassword: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAvatar swaps the avatar URL and returns the previous one so the
// caller can delete the old file from the media store.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id, avatar string) (string, error) {
	defer logger.DeferLogDuration("user.UpdateAvatar", time.Now())()
	var old string
	row := r.pool.QueryRow(ctx,
		`UPDATE users u SET avatar = $2
		 FROM (SELECT id, avatar FROM users WHERE id = $1) prev
		 WHERE u.id = prev.id
		 RETURNING prev.avatar`,
		id, avatar,
	)
	if err := row.Scan(&old); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("userRepo.UpdateAvatar: %w", err)
	}
	return old, nil
}

func (r *UserRepository) Search(ctx context.Context, query string, limit int) ([]model.UserPublic, error) {
	defer logger.DeferLogDuration("user.Search", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userPublicCols+` FROM users
		 WHERE display_name ILIKE $1 OR email ILIKE $1
		 ORDER BY display_name LIMIT $2`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.Search query: %w", err)
	}
	defer rows.Close()
	users := make([]model.UserPublic, 0, limit)
	for rows.Next() {
		var u model.UserPublic
		if err := scanUserPublic(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.Search scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.Search rows: %w", err)
	}
	return users, nil
}

// ListPublicByIDs returns basic profiles for the given ids (order not
// guaranteed). Unknown ids are silently skipped.
func (r *UserRepository) ListPublicByIDs(ctx context.Context, ids []string) ([]model.UserPublic, error) {
	defer logger.DeferLogDuration("user.ListPublicByIDs", time.Now())()
	if len(ids) == 0 {
		return []model.UserPublic{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+userPublicCols+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListPublicByIDs query: %w", err)
	}
	defer rows.Close()
	users := make([]model.UserPublic, 0, len(ids))
	for rows.Next() {
		var u model.UserPublic
		if err := scanUserPublic(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListPublicByIDs scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListPublicByIDs rows: %w", err)
	}
	return users, nil
}

// CountExisting returns how many of the given ids exist in users.
func (r *UserRepository) CountExisting(ctx context.Context, ids []string) (int, error) {
	defer logger.DeferLogDuration("user.CountExisting", time.Now())()
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE id = ANY($1)`, ids).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("userRepo.CountExisting: %w", err)
	}
	return n, nil
}
