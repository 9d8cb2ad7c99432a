package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/store"
	"github.com/phrazzld/taskrelay/internal/task"
)

const journalEntity = "task journal"

// PostgresJournal implements task.Journal on the task_journal table.
type PostgresJournal struct {
	db store.DBTX
}

var _ task.Journal = (*PostgresJournal)(nil)

// NewPostgresJournal creates a journal bound to db, which may be a pool or a
// transaction.
func NewPostgresJournal(db store.DBTX) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// Save records a queued unit. Args are stored as JSONB.
func (j *PostgresJournal) Save(ctx context.Context, desc task.Descriptor) error {
	log := logger.FromContextOrDefault(ctx)

	args, err := json.Marshal(desc.Args.Clone())
	if err != nil {
		return store.NewStoreError(journalEntity, "save", "failed to encode args", err)
	}

	query := `
		INSERT INTO task_journal (work_id, task_type, group_id, args)
		VALUES ($1, $2, $3, $4)
	`

	_, err = j.db.ExecContext(ctx, query, desc.WorkID, desc.TaskType, desc.GroupID, args)
	if err != nil {
		log.Error("failed to save journal entry",
			"work_id", desc.WorkID,
			"task_type", desc.TaskType,
			"error", err)
		return store.NewStoreError(journalEntity, "save", "failed to insert entry", MapError(err))
	}

	log.Debug("journal entry saved", "work_id", desc.WorkID, "task_type", desc.TaskType)
	return nil
}

// Remove forgets workID. Unknown ids are a no-op.
func (j *PostgresJournal) Remove(ctx context.Context, workID uuid.UUID) error {
	_, err := j.remove(ctx, workID)
	return err
}

func (j *PostgresJournal) remove(ctx context.Context, workID uuid.UUID) (int64, error) {
	result, err := j.db.ExecContext(ctx, `DELETE FROM task_journal WHERE work_id = $1`, workID)
	if err != nil {
		logger.FromContextOrDefault(ctx).Error("failed to remove journal entry",
			"work_id", workID,
			"error", err)
		return 0, store.NewStoreError(journalEntity, "remove", "failed to delete entry", MapError(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Pending returns every recorded unit in submission order.
func (j *PostgresJournal) Pending(ctx context.Context) ([]task.Descriptor, error) {
	query := `
		SELECT work_id, task_type, group_id, args
		FROM task_journal
		ORDER BY seq ASC
	`

	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, store.NewStoreError(journalEntity, "list", "failed to query entries", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var descs []task.Descriptor
	for rows.Next() {
		var (
			desc task.Descriptor
			raw  []byte
		)
		if err := rows.Scan(&desc.WorkID, &desc.TaskType, &desc.GroupID, &raw); err != nil {
			return nil, store.NewStoreError(journalEntity, "list", "failed to scan entry", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &desc.Args); err != nil {
				return nil, store.NewStoreError(journalEntity, "list",
					fmt.Sprintf("failed to decode args of %s", desc.WorkID), err)
			}
		}
		if desc.Args == nil {
			desc.Args = task.Args{}
		}
		descs = append(descs, desc)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError(journalEntity, "list", "failed to iterate entries", err)
	}

	return descs, nil
}

// Drop removes the given entries in one transaction and returns how many
// existed. Operators use it to discard units that should not be redelivered.
func Drop(ctx context.Context, db *sql.DB, ids []uuid.UUID) (int64, error) {
	var dropped int64
	err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		journal := NewPostgresJournal(tx)
		for _, id := range ids {
			n, err := journal.remove(ctx, id)
			if err != nil {
				return err
			}
			dropped += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return dropped, nil
}
