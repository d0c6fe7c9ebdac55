package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

const createProgressTable = `
CREATE TABLE IF NOT EXISTS user_progress (
	user_id     TEXT PRIMARY KEY,
	storage_key TEXT NOT NULL,
	payload     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps each user's ledger as a JSONB row.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the progress table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createProgressTable); err != nil {
		return fmt.Errorf("create user_progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, userID string) (reward.UserProgress, bool, error) {
	if err := checkUserID(userID); err != nil {
		return reward.UserProgress{}, false, err
	}
	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT payload FROM user_progress WHERE user_id = $1`, userID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return reward.UserProgress{}, false, nil
	}
	if err != nil {
		return reward.UserProgress{}, false, err
	}
	p, err := reward.Decode(payload)
	if err != nil {
		return reward.UserProgress{}, true, err
	}
	return p, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, userID string, p reward.UserProgress) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	data, err := reward.Encode(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO user_progress (user_id, storage_key, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = NOW()`,
		userID, reward.StorageKey, data)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM user_progress WHERE user_id = $1`, userID)
	return err
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
