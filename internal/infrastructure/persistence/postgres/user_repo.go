package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
)

// UserRepository implements access.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

var _ access.Repository = (*UserRepository)(nil)

// Find looks the user up by Telegram ID first and by username second.
func (r *UserRepository) Find(ctx context.Context, id access.Identity) (*access.User, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var (
		telegramID *int64
		username   *string
		u          access.User
		role       string
	)
	err := r.conn.QueryRow(ctx, `
		SELECT telegram_id, username, role, granted_by, created_at
		FROM bot_users
		WHERE ($1 <> 0 AND telegram_id = $1)
		   OR ($2 <> '' AND lower(username) = $2)
		ORDER BY (telegram_id = $1) DESC NULLS LAST
		LIMIT 1`,
		id.TelegramID.Int64(), access.NormalizeUsername(id.Username),
	).Scan(&telegramID, &username, &role, &u.GrantedBy, &u.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("access", "Find", shared.ErrNotFound, "bot user not found")
		}
		return nil, fmt.Errorf("failed to find bot user: %w", err)
	}

	if telegramID != nil {
		u.TelegramID = shared.TelegramID(*telegramID)
	}
	if username != nil {
		u.Username = *username
	}
	u.Role = access.Role(role)
	return &u, nil
}

// Upsert stores the user keyed by Telegram ID when known, by username otherwise.
// An existing row keeps the higher of the two roles.
func (r *UserRepository) Upsert(ctx context.Context, u *access.User) error {
	if !u.Role.IsValid() {
		return shared.NewDomainError("access", "Upsert", shared.ErrInvalidInput, "unknown role "+string(u.Role))
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	username := access.NormalizeUsername(u.Username)

	var err error
	switch {
	case u.TelegramID.IsValid():
		err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
			// A row granted by username alone adopts the Telegram ID first.
			if username != "" {
				if _, err := tx.Exec(ctx, `
					UPDATE bot_users SET telegram_id = $1
					WHERE telegram_id IS NULL AND lower(username) = $2
					  AND NOT EXISTS (SELECT 1 FROM bot_users WHERE telegram_id = $1)`,
					u.TelegramID.Int64(), username); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO bot_users (telegram_id, username, role, granted_by, created_at)
				VALUES ($1, NULLIF($2, ''), $3, $4, $5)
				ON CONFLICT (telegram_id) WHERE telegram_id IS NOT NULL DO UPDATE SET
					username = COALESCE(EXCLUDED.username, bot_users.username),
					role = CASE WHEN bot_users.role = 'admin' THEN 'admin' ELSE EXCLUDED.role END`,
				u.TelegramID.Int64(), username, string(u.Role), u.GrantedBy, u.CreatedAt)
			return err
		})
	case username != "":
		_, err = r.conn.Exec(ctx, `
			INSERT INTO bot_users (username, role, granted_by, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (lower(username)) WHERE username IS NOT NULL DO UPDATE SET
				role = CASE WHEN bot_users.role = 'admin' THEN 'admin' ELSE EXCLUDED.role END`,
			username, string(u.Role), u.GrantedBy, u.CreatedAt)
	default:
		return shared.NewDomainError("access", "Upsert", shared.ErrInvalidInput, "telegram id or username is required")
	}
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("access", "Upsert", shared.ErrAlreadyExists, "username belongs to another telegram account")
		}
		return fmt.Errorf("failed to upsert bot user: %w", err)
	}
	return nil
}
