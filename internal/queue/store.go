package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"smsrelay/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS delivery_tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	payload BLOB NOT NULL,
	device_id TEXT NOT NULL,
	api_key TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL DEFAULT 'pending',
	next_attempt_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_delivery_tasks_due ON delivery_tasks(state, next_attempt_at);
`

// Store persists delivery tasks so the queue survives process restarts. A
// task is owned by exactly one execution slot between Claim and
// MarkDone/Reschedule; the state column enforces that plus the
// replace-while-in-flight semantics of collapsible tasks.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}
	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping task database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping task database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize task schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize task schema: %w", err)
	}

	// Tasks left in flight by a crash belong to no one now.
	if _, err := db.Exec(`UPDATE delivery_tasks SET state = 'pending' WHERE state = 'in_flight'`); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to recover in-flight tasks: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to recover in-flight tasks: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds a task under a fresh unique name. Used for inbound-forward
// tasks, which are never collapsed.
func (s *Store) Insert(ctx context.Context, task *models.DeliveryTask, runAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_tasks (name, kind, payload, device_id, api_key, retry_count, state, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 'pending', ?, ?)`,
		task.Name, task.Kind, []byte(task.Payload), task.DeviceID, task.APIKey,
		runAt.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", task.Name, err)
	}
	return nil
}

// Upsert adds a task or replaces an existing one with the same name,
// resetting its retry state. Used for status-update and heartbeat tasks,
// where only the latest submission matters.
func (s *Store) Upsert(ctx context.Context, task *models.DeliveryTask, runAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_tasks (name, kind, payload, device_id, api_key, retry_count, state, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 'pending', ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			device_id = excluded.device_id,
			api_key = excluded.api_key,
			retry_count = 0,
			state = 'pending',
			next_attempt_at = excluded.next_attempt_at`,
		task.Name, task.Kind, []byte(task.Payload), task.DeviceID, task.APIKey,
		runAt.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.Name, err)
	}
	return nil
}

// ClaimDue atomically transitions up to limit due pending tasks to in-flight
// and returns them. Claimed tasks are invisible to other callers until
// MarkDone or Reschedule.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, kind, payload, device_id, api_key, retry_count
		FROM delivery_tasks
		WHERE state = 'pending' AND next_attempt_at <= ?
		ORDER BY next_attempt_at
		LIMIT ?`,
		now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}

	var tasks []*models.DeliveryTask
	for rows.Next() {
		var t models.DeliveryTask
		var payload []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Kind, &payload, &t.DeviceID, &t.APIKey, &t.RetryCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Payload = payload
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate due tasks: %w", err)
	}
	rows.Close()

	for _, t := range tasks {
		if _, err := tx.ExecContext(ctx, `UPDATE delivery_tasks SET state = 'in_flight' WHERE id = ?`, t.ID); err != nil {
			return nil, fmt.Errorf("failed to claim task %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return tasks, nil
}

// MarkDone removes a completed or terminally failed task. It only touches
// the in-flight row, so a collapsible task that was replaced mid-execution
// keeps its fresh pending incarnation.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM delivery_tasks WHERE id = ? AND state = 'in_flight'`, id)
	if err != nil {
		return fmt.Errorf("failed to remove task %d: %w", id, err)
	}
	return nil
}

// Reschedule returns a task to pending with an incremented retry count and a
// new due time. Skipped silently when the task was replaced mid-execution.
func (s *Store) Reschedule(ctx context.Context, id int64, retryCount int, nextAttempt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_tasks SET state = 'pending', retry_count = ?, next_attempt_at = ?
		WHERE id = ? AND state = 'in_flight'`,
		retryCount, nextAttempt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule task %d: %w", id, err)
	}
	return nil
}

// PendingCount returns the number of tasks not yet completed. Used by the
// metrics gauge and tests.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}
