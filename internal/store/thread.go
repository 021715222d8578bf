package store

import (
	"database/sql"
	"fmt"

	"github.com/ombra-im/ombra-go/internal/wire"
)

// Thread is the mirror row for one conversation.
type Thread struct {
	ThreadID    string
	Variant     wire.ThreadVariant
	CreatedAtMs int64
}

// UpsertThread creates the thread row if it does not exist yet and
// reports whether it was created. Redelivery never duplicates a thread.
func (t *Tx) UpsertThread(th *Thread) (created bool, err error) {
	existing, err := t.GetThread(th.ThreadID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	_, err = t.tx.Exec(
		"INSERT INTO threads (thread_id, variant, created_at_ms) VALUES (?, ?, ?)",
		th.ThreadID, int(th.Variant), th.CreatedAtMs,
	)
	if err != nil {
		return false, fmt.Errorf("store: upsert thread: %w", err)
	}
	return true, nil
}

// GetThread retrieves a thread row, or nil if absent.
func (t *Tx) GetThread(threadID string) (*Thread, error) {
	var th Thread
	var variant int
	err := t.tx.QueryRow(
		"SELECT thread_id, variant, created_at_ms FROM threads WHERE thread_id = ?",
		threadID,
	).Scan(&th.ThreadID, &variant, &th.CreatedAtMs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get thread: %w", err)
	}
	th.Variant = wire.ThreadVariant(variant)
	return &th, nil
}

// DeleteThread removes a thread row and all its interactions.
func (t *Tx) DeleteThread(threadID string) error {
	if _, err := t.tx.Exec("DELETE FROM interactions WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("store: delete thread interactions: %w", err)
	}
	if _, err := t.tx.Exec("DELETE FROM threads WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("store: delete thread: %w", err)
	}
	return nil
}
