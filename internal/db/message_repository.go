package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tOgg1/tasker/internal/models"
)

// ErrNoSnapshot is returned when no snapshot has been stored for a user.
var ErrNoSnapshot = errors.New("no cached snapshot")

// Snapshot describes the last stored message list for a user.
type Snapshot struct {
	OwnerID      int64
	SyncedAt     time.Time
	MessageCount int
}

// MessageRepository stores the last fetched message list per user so the
// conversation list can be shown offline.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ReplaceSnapshot atomically replaces the cached messages for ownerID.
func (r *MessageRepository) ReplaceSnapshot(ctx context.Context, ownerID int64, messages []models.Message, syncedAt time.Time) error {
	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE owner_id = ?`, ownerID); err != nil {
			return fmt.Errorf("failed to clear snapshot: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO messages (
				owner_id, id, sender_id, receiver_id, sender_name, receiver_name,
				sender_role, receiver_role, content, task_id, created_at, read
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare message insert: %w", err)
		}
		defer stmt.Close()

		for _, msg := range messages {
			var taskID sql.NullInt64
			if msg.TaskID != nil {
				taskID = sql.NullInt64{Int64: *msg.TaskID, Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				ownerID,
				msg.ID,
				msg.SenderID,
				msg.ReceiverID,
				msg.SenderName,
				msg.ReceiverName,
				string(msg.SenderRole),
				string(msg.ReceiverRole),
				msg.Content,
				taskID,
				msg.CreatedAt.UTC().Format(timeLayout),
				boolToInt(msg.Read),
			)
			if err != nil {
				return fmt.Errorf("failed to store message %d: %w", msg.ID, err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshots (owner_id, synced_at, message_count) VALUES (?, ?, ?)
			ON CONFLICT(owner_id) DO UPDATE SET synced_at = excluded.synced_at, message_count = excluded.message_count
		`, ownerID, syncedAt.UTC().Format(timeLayout), len(messages))
		if err != nil {
			return fmt.Errorf("failed to record snapshot: %w", err)
		}
		return nil
	})
}

// List returns the cached messages for ownerID, newest first.
func (r *MessageRepository) List(ctx context.Context, ownerID int64) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, sender_name, receiver_name, sender_role,
		       receiver_role, content, task_id, created_at, read
		FROM messages
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			msg          models.Message
			senderRole   string
			receiverRole string
			taskID       sql.NullInt64
			createdRaw   string
			read         int
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.SenderName,
			&msg.ReceiverName,
			&senderRole,
			&receiverRole,
			&msg.Content,
			&taskID,
			&createdRaw,
			&read,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.SenderRole = models.Role(senderRole)
		msg.ReceiverRole = models.Role(receiverRole)
		if taskID.Valid {
			msg.TaskID = models.Int64Ptr(taskID.Int64)
		}
		if t, err := time.Parse(timeLayout, createdRaw); err == nil {
			msg.CreatedAt = t
		}
		msg.Read = read != 0
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// Snapshot returns metadata for the stored snapshot of ownerID.
func (r *MessageRepository) Snapshot(ctx context.Context, ownerID int64) (*Snapshot, error) {
	var syncedRaw string
	snap := &Snapshot{OwnerID: ownerID}
	err := r.db.QueryRowContext(ctx, `
		SELECT synced_at, message_count FROM snapshots WHERE owner_id = ?
	`, ownerID).Scan(&syncedRaw, &snap.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if t, err := time.Parse(timeLayout, syncedRaw); err == nil {
		snap.SyncedAt = t
	}
	return snap, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
