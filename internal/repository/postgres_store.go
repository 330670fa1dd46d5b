// internal/repository/postgres_store.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"pos-sync-service/internal/database"
)

// postgresStore keeps records in the local_records table. Each Put is a
// single upsert statement, which makes the record write atomic.
type postgresStore struct {
	db     *database.DB
	logger *zap.Logger
}

// NewPostgresStore creates a durable store backed by the local database
func NewPostgresStore(db *database.DB, logger *zap.Logger) DurableStore {
	return &postgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *postgresStore) Put(ctx context.Context, collection string, rec Record) error {
	query := `
		INSERT INTO local_records (collection, key, value, indexes, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, key) DO UPDATE
		SET value = EXCLUDED.value, indexes = EXCLUDED.indexes, updated_at = CURRENT_TIMESTAMP
	`

	indexes, err := encodeIndexes(rec.Indexes)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, collection, rec.Key, string(rec.Value), indexes); err != nil {
		s.logger.Error("Failed to put record",
			zap.String("collection", collection),
			zap.String("key", rec.Key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to put record: %w", err)
	}

	return nil
}

func (s *postgresStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	query := `SELECT key, value, indexes FROM local_records WHERE collection = $1 AND key = $2`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, collection, key))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (s *postgresStore) Delete(ctx context.Context, collection, key string) error {
	query := `DELETE FROM local_records WHERE collection = $1 AND key = $2`

	if _, err := s.db.ExecContext(ctx, query, collection, key); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *postgresStore) Scan(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	query := `SELECT key, value, indexes FROM local_records WHERE collection = $1`
	args := []interface{}{collection}
	if filter.Index != "" {
		query += ` AND indexes ->> $2 = $3`
		args = append(args, filter.Index, filter.Value)
	}
	query += ` ORDER BY key ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if filter.Predicate != nil && !filter.Predicate(*rec) {
			continue
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

func (s *postgresStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	if filter.Predicate != nil {
		records, err := s.Scan(ctx, collection, filter)
		if err != nil {
			return 0, err
		}
		return len(records), nil
	}

	query := `SELECT COUNT(*) FROM local_records WHERE collection = $1`
	args := []interface{}{collection}
	if filter.Index != "" {
		query += ` AND indexes ->> $2 = $3`
		args = append(args, filter.Index, filter.Value)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func (s *postgresStore) ReplaceAll(ctx context.Context, collection string, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM local_records WHERE collection = $1`, collection); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO local_records (collection, key, value, indexes, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		indexes, err := encodeIndexes(rec.Indexes)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, collection, rec.Key, string(rec.Value), indexes); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collection replace: %w", err)
	}

	s.logger.Info("Replaced cached collection",
		zap.String("collection", collection),
		zap.Int("records", len(recs)),
	)
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec     Record
		value   []byte
		indexes []byte
	)
	if err := row.Scan(&rec.Key, &value, &indexes); err != nil {
		return nil, err
	}
	rec.Value = value
	if len(indexes) > 0 {
		if err := json.Unmarshal(indexes, &rec.Indexes); err != nil {
			return nil, fmt.Errorf("failed to decode indexes: %w", err)
		}
	}
	return &rec, nil
}

func encodeIndexes(indexes map[string]string) (string, error) {
	if len(indexes) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(indexes)
	if err != nil {
		return "", fmt.Errorf("failed to encode indexes: %w", err)
	}
	return string(data), nil
}
