package postgres_test

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/platform/postgres"
	"github.com/phrazzld/taskrelay/internal/store"
	"github.com/phrazzld/taskrelay/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonArg matches a JSONB argument by decoded value.
type jsonArg struct{ want map[string]any }

func (a jsonArg) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	return reflect.DeepEqual(a.want, got)
}

func newMockJournal(t *testing.T) (*postgres.PostgresJournal, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.NewPostgresJournal(db), mock
}

func TestPostgresJournal_Save(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	insert := regexp.QuoteMeta("INSERT INTO task_journal (work_id, task_type, group_id, args)")

	t.Run("inserts entry", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectExec(insert).
			WithArgs(id.String(), "echo", int64(3), jsonArg{want: map[string]any{"n": 1.0}}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := journal.Save(ctx, task.Descriptor{
			WorkID:   id,
			TaskType: "echo",
			GroupID:  3,
			Args:     task.Args{"n": 1},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil args stored as empty object", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectExec(insert).
			WithArgs(id.String(), "sleep", int64(0), jsonArg{want: map[string]any{}}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, journal.Save(ctx, task.Descriptor{WorkID: id, TaskType: "sleep"}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate maps to store error", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectExec(insert).WillReturnError(newPgError("23505"))

		err := journal.Save(ctx, task.Descriptor{WorkID: id, TaskType: "echo"})
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrDuplicate)

		var storeErr *store.StoreError
		require.True(t, errors.As(err, &storeErr))
		assert.Equal(t, "save", storeErr.Operation)
	})

	t.Run("unencodable args", func(t *testing.T) {
		journal, mock := newMockJournal(t)

		err := journal.Save(ctx, task.Descriptor{
			WorkID:   id,
			TaskType: "echo",
			Args:     task.Args{"ch": make(chan int)},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to encode args")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresJournal_Remove(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	del := regexp.QuoteMeta("DELETE FROM task_journal WHERE work_id = $1")

	t.Run("deletes entry", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectExec(del).WithArgs(id.String()).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, journal.Remove(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectExec(del).WithArgs(id.String()).WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, journal.Remove(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectExec(del).WillReturnError(errors.New("connection reset"))

		err := journal.Remove(ctx, id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remove operation on task journal failed")
	})
}

func TestPostgresJournal_Pending(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta("SELECT work_id, task_type, group_id, args")
	columns := []string{"work_id", "task_type", "group_id", "args"}

	t.Run("returns entries in order", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		first, second := uuid.New(), uuid.New()
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(columns).
			AddRow(first.String(), "echo", int64(0), []byte(`{"msg":"hi"}`)).
			AddRow(second.String(), "sleep", int64(7), []byte(`{}`)))

		descs, err := journal.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, descs, 2)

		assert.Equal(t, first, descs[0].WorkID)
		assert.Equal(t, "echo", descs[0].TaskType)
		assert.Equal(t, "hi", descs[0].Args.String("msg", ""))

		assert.Equal(t, second, descs[1].WorkID)
		assert.Equal(t, int64(7), descs[1].GroupID)
		assert.NotNil(t, descs[1].Args)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty journal", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(columns))

		descs, err := journal.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, descs)
	})

	t.Run("corrupt args", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.New().String(), "echo", int64(0), []byte(`{not json`)))

		_, err := journal.Pending(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode args")
	})

	t.Run("query error", func(t *testing.T) {
		journal, mock := newMockJournal(t)
		mock.ExpectQuery(query).WillReturnError(errors.New("connection reset"))

		_, err := journal.Pending(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query entries")
	})
}

func TestDrop(t *testing.T) {
	ctx := context.Background()
	del := regexp.QuoteMeta("DELETE FROM task_journal WHERE work_id = $1")
	known, unknown := uuid.New(), uuid.New()

	t.Run("counts existing entries", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectBegin()
		mock.ExpectExec(del).WithArgs(known.String()).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(del).WithArgs(unknown.String()).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		n, err := postgres.Drop(ctx, db, []uuid.UUID{known, unknown})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectBegin()
		mock.ExpectExec(del).WithArgs(known.String()).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(del).WithArgs(unknown.String()).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		n, err := postgres.Drop(ctx, db, []uuid.UUID{known, unknown})
		require.Error(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
