package sqldb

import (
	"context"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
)

type sessionsRepo struct {
	q    querier
	d    Dialect
	ping func(context.Context) error
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (id, token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID,
		s.TokenHash,
		s.UserID,
		toMillis(s.CreatedAt),
		toMillis(s.ExpiresAt),
	)
	return mapWriteError(r.d, err)
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	var (
		s                domain.Session
		created, expires int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, token_hash, user_id, created_at, expires_at FROM sessions WHERE token_hash = ?`,
		hash,
	).Scan(&s.ID, &s.TokenHash, &s.UserID, &created, &expires)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.CreatedAt = fromMillis(created)
	s.ExpiresAt = fromMillis(expires)
	return s, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, hash string) error {
	return requireRow(r.q.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, hash))
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sessionsRepo) Ping(ctx context.Context) error { return r.ping(ctx) }
