package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyTime accepts any value, used for timestamps we can't predict exactly.
var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mockPool.ExpectPing()
	mockPool.ExpectExec(flexibleSQLMatcher(sqlEnsureSchema)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should create the kv table on startup", func(t *testing.T) {
		_, mockPool := newMockStore(t)
		defer mockPool.Close()
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestStoreGet(t *testing.T) {
	t.Run("returns value and found for present key", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		payload := []byte(`{"substitute":"Guardar"}`)
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT value FROM pilot_kv WHERE key = $1`)).
			WithArgs("tm/app/Save").
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(payload))

		got, found, err := s.Get(context.Background(), "tm/app/Save")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, string(payload), string(got))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("reports absent key without error", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT value FROM pilot_kv WHERE key = $1`)).
			WithArgs("tm/app/Missing").
			WillReturnRows(pgxmock.NewRows([]string{"value"}))

		_, found, err := s.Get(context.Background(), "tm/app/Missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestStoreSet(t *testing.T) {
	t.Run("upserts the value", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs("pref/app/save", json.RawMessage(`{"weight":3}`), anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.Set(context.Background(), "pref/app/save", json.RawMessage(`{"weight":3}`))
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("replaces null payload with empty object", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs("pref/app/save", json.RawMessage(`{}`), anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.Set(context.Background(), "pref/app/save", nil)
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestStoreList(t *testing.T) {
	s, mockPool := newMockStore(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT key FROM pilot_kv WHERE key LIKE $1 || '%' ORDER BY key`)).
		WithArgs("tm/app/").
		WillReturnRows(pgxmock.NewRows([]string{"key"}).
			AddRow("tm/app/Cancel").
			AddRow("tm/app/Save"))

	keys, err := s.List(context.Background(), "tm/app/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tm/app/Cancel", "tm/app/Save"}, keys)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStoreDelete(t *testing.T) {
	s, mockPool := newMockStore(t)
	defer mockPool.Close()

	mockPool.ExpectExec(flexibleSQLMatcher(`DELETE FROM pilot_kv WHERE key = $1`)).
		WithArgs("tm/app/Save").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.Delete(context.Background(), "tm/app/Save"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStoreTxSet(t *testing.T) {
	t.Run("commits all writes", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs("k1", json.RawMessage(`{"a":1}`), anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback()

		err := s.TxSet(context.Background(), map[string]json.RawMessage{
			"k1": json.RawMessage(`{"a":1}`),
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rolls back on write failure", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		defer mockPool.Close()

		writeErr := errors.New("disk full")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs("k1", json.RawMessage(`{"a":1}`), anyTime).
			WillReturnError(writeErr)
		mockPool.ExpectRollback()

		err := s.TxSet(context.Background(), map[string]json.RawMessage{
			"k1": json.RawMessage(`{"a":1}`),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, writeErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	_, found, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, "tm/app/Save", json.RawMessage(`{"s":"Guardar"}`)))
	require.NoError(t, m.Set(ctx, "tm/app/Cancel", json.RawMessage(`{"s":"Cancelar"}`)))
	require.NoError(t, m.Set(ctx, "pref/app/save", json.RawMessage(`{"w":1}`)))

	got, found, err := m.Get(ctx, "tm/app/Save")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"s":"Guardar"}`, string(got))

	keys, err := m.List(ctx, "tm/app/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tm/app/Cancel", "tm/app/Save"}, keys)

	require.NoError(t, m.Delete(ctx, "tm/app/Save"))
	_, found, err = m.Get(ctx, "tm/app/Save")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Clear(ctx))
	keys, err = m.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
