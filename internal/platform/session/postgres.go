package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// PGExecutor is the part of *pgxpool.Pool used by PGStore.
type PGExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps sessions in the ui_session table (migrations/001_ui_session.sql).
type PGStore struct {
	db PGExecutor
}

// NewPGStore returns a Store backed by PostgreSQL.
func NewPGStore(db PGExecutor) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Load(ctx context.Context, id string) (*Session, error) {
	var data []byte
	var expiresAt time.Time
	err := p.db.QueryRow(ctx,
		`SELECT data, expires_at FROM ui_session WHERE id = $1 AND expires_at > NOW()`, id,
	).Scan(&data, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return Restore(id, data, expiresAt)
}

func (p *PGStore) Save(ctx context.Context, s *Session) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO ui_session (id, data, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		s.ID, data, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *PGStore) Delete(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM ui_session WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Sweep deletes expired sessions and returns how many rows were removed.
func (p *PGStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM ui_session WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Run sweeps expired sessions every interval until ctx is cancelled.
func (p *PGStore) Run(ctx context.Context, interval time.Duration) {
	logger := zerolog.Ctx(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Sweep(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("removed", n).Msg("expired sessions removed")
			}
		}
	}
}
