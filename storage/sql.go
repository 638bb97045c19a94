package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"eduauthd/core"
)

// sqlDialect holds the statements that differ between backends
type sqlDialect struct {
	upsert string
	// take, when set, reads and deletes a row in one statement. Otherwise
	// Take runs a select and a delete in one serializable transaction.
	take string
	// YDB does not report affected rows
	rowsAffected bool
}

// sqlStore implements core.SessionStore over database/sql. Expired rows are
// invisible to Get and removed by DeleteExpired.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
	now     func() time.Time
}

func (s *sqlStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx, s.dialect.upsert, key, value, expiresAt)
	return err
}

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value, expires_at FROM sessions WHERE key = ?`

	var value []byte
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !expiresAt.Valid || expiresAt.Int64 <= s.now().UnixMilli() {
		return nil, core.ErrNotFound
	}

	return value, nil
}

func (s *sqlStore) Take(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullInt64

	if s.dialect.take != "" {
		err := s.db.QueryRowContext(ctx, s.dialect.take, key).Scan(&value, &expiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
	} else {
		found, err := s.takeInTx(ctx, key, &value, &expiresAt)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, core.ErrNotFound
		}
	}

	if !expiresAt.Valid || expiresAt.Int64 <= s.now().UnixMilli() {
		return nil, core.ErrNotFound
	}
	return value, nil
}

func (s *sqlStore) takeInTx(ctx context.Context, key string, value *[]byte, expiresAt *sql.NullInt64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT value, expires_at FROM sessions WHERE key = ?`, key).Scan(value, expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM sessions WHERE key = ?`
	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

func (s *sqlStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= ?`
	result, err := s.db.ExecContext(ctx, query, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}

	if !s.dialect.rowsAffected {
		return 0, nil
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
