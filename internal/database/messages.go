package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"smsrelay/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const messagesSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT NOT NULL,
	body TEXT NOT NULL,
	received_at INTEGER NOT NULL,
	protocol TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at DESC);
`

// MessageDB is the relay's local message store, a small sqlite table holding
// recently observed inbound messages. The broadcast source writes into it;
// the store observer and the notification source's sender resolution read
// from it. It is a working set, not an archive: Prune keeps it bounded.
type MessageDB struct {
	db *sql.DB
}

func NewMessageDB(path string) (*MessageDB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open message database: %w", err)
	}

	if _, err := db.Exec(messagesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize message schema: %w", err)
	}

	return &MessageDB{db: db}, nil
}

func (m *MessageDB) Close() error {
	return m.db.Close()
}

// Insert records one observed message.
func (m *MessageDB) Insert(ctx context.Context, msg models.StoredMessage) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO messages (address, body, received_at, protocol, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.Address, msg.Body, msg.ReceivedAtMillis, msg.Protocol, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages, newest first.
func (m *MessageDB) Recent(ctx context.Context, limit int) ([]models.StoredMessage, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, address, body, received_at, protocol FROM messages ORDER BY received_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	var messages []models.StoredMessage
	for rows.Next() {
		var id int64
		var msg models.StoredMessage
		if err := rows.Scan(&id, &msg.Address, &msg.Body, &msg.ReceivedAtMillis, &msg.Protocol); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.ID = strconv.FormatInt(id, 10)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Prune removes messages received before the cutoff.
func (m *MessageDB) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := m.db.ExecContext(ctx,
		`DELETE FROM messages WHERE received_at < ?`, olderThan.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune messages: %w", err)
	}
	return res.RowsAffected()
}
