package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-sync-service/internal/database"
)

func newMockPostgresStore(t *testing.T) (DurableStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresStore(&database.DB{DB: db}, zap.NewNop()), mock
}

func TestEncodeIndexes(t *testing.T) {
	tests := []struct {
		name    string
		indexes map[string]string
		want    string
	}{
		{name: "nil", indexes: nil, want: "{}"},
		{name: "empty", indexes: map[string]string{}, want: "{}"},
		{name: "synced flag", indexes: map[string]string{IndexSynced: "false"}, want: `{"synced":"false"}`},
		{name: "sorted keys", indexes: map[string]string{"b": "2", "a": "1"}, want: `{"a":"1","b":"2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeIndexes(tt.indexes)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

type fakeRow struct {
	key     string
	value   []byte
	indexes []byte
	err     error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	*dest[1].(*[]byte) = r.value
	*dest[2].(*[]byte) = r.indexes
	return nil
}

func TestScanRecord(t *testing.T) {
	tests := []struct {
		name        string
		row         fakeRow
		wantIndexes map[string]string
		wantErr     bool
	}{
		{
			name:        "with indexes",
			row:         fakeRow{key: "offline_1", value: []byte(`{"id":"offline_1"}`), indexes: []byte(`{"synced":"true"}`)},
			wantIndexes: map[string]string{IndexSynced: "true"},
		},
		{
			name: "null indexes",
			row:  fakeRow{key: "p1", value: []byte(`{"id":"p1"}`)},
		},
		{
			name:    "corrupt indexes",
			row:     fakeRow{key: "offline_2", value: []byte(`{}`), indexes: []byte(`{"synced":`)},
			wantErr: true,
		},
		{
			name:    "scan error",
			row:     fakeRow{err: errors.New("connection reset")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := scanRecord(tt.row)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.row.key, rec.Key)
			assert.Equal(t, tt.row.value, rec.Value)
			assert.Equal(t, tt.wantIndexes, rec.Indexes)
		})
	}
}

func TestPostgresPutUpsertsRecord(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO local_records (collection, key, value, indexes, updated_at)")).
		WithArgs(CollectionOrders, "offline_1", `{"id":"offline_1"}`, `{"synced":"false"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Put(context.Background(), CollectionOrders, Record{
		Key:     "offline_1",
		Value:   []byte(`{"id":"offline_1"}`),
		Indexes: map[string]string{IndexSynced: "false"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissingRecord(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value, indexes FROM local_records WHERE collection = $1 AND key = $2")).
		WithArgs(CollectionOrders, "offline_9").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "indexes"}))

	_, err := store.Get(context.Background(), CollectionOrders, "offline_9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresScanFiltersOnIndex(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows([]string{"key", "value", "indexes"}).
		AddRow("offline_1", []byte(`{"id":"offline_1"}`), []byte(`{"synced":"false"}`)).
		AddRow("offline_2", []byte(`{"id":"offline_2"}`), []byte(`{"synced":"false"}`))

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT key, value, indexes FROM local_records WHERE collection = $1 AND indexes ->> $2 = $3 ORDER BY key ASC",
	)).
		WithArgs(CollectionOrders, IndexSynced, "false").
		WillReturnRows(rows)

	records, err := store.Scan(context.Background(), CollectionOrders, Filter{
		Index:     IndexSynced,
		Value:     "false",
		Predicate: func(rec Record) bool { return rec.Key != "offline_2" },
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "offline_1", records[0].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountUnsyncedOrders(t *testing.T) {
	durable, mock := newMockPostgresStore(t)
	store := NewLocalStore(durable, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM local_records WHERE collection = $1 AND indexes ->> $2 = $3",
	)).
		WithArgs(CollectionOrders, IndexSynced, "false").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.CountUnsyncedOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplaceAllRunsInTransaction(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM local_records WHERE collection = $1")).
		WithArgs(CollectionProducts).
		WillReturnResult(sqlmock.NewResult(0, 3))
	prepared := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO local_records (collection, key, value, indexes, updated_at)"))
	prepared.ExpectExec().
		WithArgs(CollectionProducts, "p1", `{"id":"p1"}`, "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prepared.ExpectExec().
		WithArgs(CollectionProducts, "p2", `{"id":"p2"}`, "{}").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.ReplaceAll(context.Background(), CollectionProducts, []Record{
		{Key: "p1", Value: []byte(`{"id":"p1"}`)},
		{Key: "p2", Value: []byte(`{"id":"p2"}`)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p2")
	assert.NoError(t, mock.ExpectationsWereMet())
}
