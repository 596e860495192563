package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
)

const userColumns = `id, username, password_hash, mfa_secret, mfa_enabled, mfa_pending_secret, created_at, updated_at`

type usersRepo struct {
	q   querier
	d   Dialect
	now func() time.Time
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.PasswordHash,
		mapOptionalString(u.MFASecret),
		u.MFASecret != nil,
		mapOptionalString(u.MFAPendingSecret),
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	return mapWriteError(r.d, err)
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return requireRow(r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id))
}

func (r *usersRepo) UpdateMFA(ctx context.Context, userID string, state domain.MFAState) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE users SET mfa_secret = ?, mfa_enabled = ?, mfa_pending_secret = ?, updated_at = ? WHERE id = ?`,
		mapOptionalString(state.Secret),
		state.Enabled(),
		mapOptionalString(state.Pending),
		toMillis(r.now()),
		userID,
	))
}

func (r *usersRepo) PromotePendingMFA(ctx context.Context, userID, pending string) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE users SET mfa_secret = ?, mfa_enabled = ?, mfa_pending_secret = NULL, updated_at = ?
		 WHERE id = ? AND mfa_pending_secret = ?`,
		pending,
		true,
		toMillis(r.now()),
		userID,
		pending,
	))
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                domain.User
		secret, pending  sql.NullString
		created, updated int64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&secret,
		&u.MFAEnabled,
		&pending,
		&created,
		&updated,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.MFASecret = mapNullStringPtr(secret)
	u.MFAPendingSecret = mapNullStringPtr(pending)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}
