package store

import (
	"fmt"
	"strings"
)

// InteractionVariant distinguishes user content from synthesized info
// lines in a thread.
type InteractionVariant int

const (
	InteractionStandard InteractionVariant = iota
	InfoGroupInvited
	InfoGroupCreated
	InfoNameChanged
	InfoAvatarChanged
	InfoDisappearingChanged
	InfoMembersAdded
	InfoMembersRemoved
	InfoMembersPromoted
	InfoMemberLeft
)

// Interaction is one message or info line within a thread.
type Interaction struct {
	ID          int64
	ThreadID    string
	AuthorID    string
	Variant     InteractionVariant
	Body        string
	TimestampMs int64
	ServerHash  string
}

// InsertInteraction adds an interaction row and returns its ID.
func (t *Tx) InsertInteraction(i *Interaction) (int64, error) {
	res, err := t.tx.Exec(
		`INSERT INTO interactions (thread_id, author_id, variant, body, timestamp_ms, server_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		i.ThreadID, i.AuthorID, int(i.Variant), i.Body, i.TimestampMs, i.ServerHash,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert interaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert interaction id: %w", err)
	}
	return id, nil
}

// HasInteractionVariant reports whether the thread already holds an
// interaction of the given variant. Used to keep implicit info lines
// (the "invited" message) from duplicating on redelivery.
func (t *Tx) HasInteractionVariant(threadID string, v InteractionVariant) (bool, error) {
	var n int
	err := t.tx.QueryRow(
		"SELECT COUNT(*) FROM interactions WHERE thread_id = ? AND variant = ?",
		threadID, int(v),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: count interactions: %w", err)
	}
	return n > 0, nil
}

// ListInteractions returns all interactions of a thread, oldest first.
func (t *Tx) ListInteractions(threadID string) ([]*Interaction, error) {
	rows, err := t.tx.Query(
		`SELECT id, thread_id, author_id, variant, body, timestamp_ms, server_hash
		 FROM interactions WHERE thread_id = ? ORDER BY timestamp_ms, id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("store: list interactions: %w", err)
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		var i Interaction
		var variant int
		if err := rows.Scan(&i.ID, &i.ThreadID, &i.AuthorID, &variant, &i.Body, &i.TimestampMs, &i.ServerHash); err != nil {
			return nil, fmt.Errorf("store: scan interaction: %w", err)
		}
		i.Variant = InteractionVariant(variant)
		out = append(out, &i)
	}
	return out, rows.Err()
}

// BlankInteractions clears (not deletes) the body of interactions in the
// thread that are timestamped at or before beforeMs and match the hash
// set or the author set. If onlyAuthor is non-empty, matches are further
// restricted to that author (self-serve deletion).
func (t *Tx) BlankInteractions(threadID string, hashes, authors []string, beforeMs int64, onlyAuthor string) (int64, error) {
	if len(hashes) == 0 && len(authors) == 0 {
		return 0, nil
	}

	var (
		conds []string
		args  []any
	)
	args = append(args, threadID, beforeMs)
	if len(hashes) > 0 {
		conds = append(conds, "server_hash IN ("+placeholders(len(hashes))+")")
		for _, h := range hashes {
			args = append(args, h)
		}
	}
	if len(authors) > 0 {
		conds = append(conds, "author_id IN ("+placeholders(len(authors))+")")
		for _, a := range authors {
			args = append(args, a)
		}
	}

	q := `UPDATE interactions SET body = ''
	      WHERE thread_id = ? AND timestamp_ms <= ? AND (` + strings.Join(conds, " OR ") + `)`
	if onlyAuthor != "" {
		q += " AND author_id = ?"
		args = append(args, onlyAuthor)
	}

	res, err := t.tx.Exec(q, args...)
	if err != nil {
		return 0, fmt.Errorf("store: blank interactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: blank interactions: %w", err)
	}
	return n, nil
}

// ServerHashesMatching returns, from the given candidates, the server
// hashes that actually exist in the thread at or before beforeMs. The
// admin swarm-deletion request is scoped to these.
func (t *Tx) ServerHashesMatching(threadID string, hashes, authors []string, beforeMs int64) ([]string, error) {
	var (
		conds []string
		args  []any
	)
	args = append(args, threadID, beforeMs)
	if len(hashes) > 0 {
		conds = append(conds, "server_hash IN ("+placeholders(len(hashes))+")")
		for _, h := range hashes {
			args = append(args, h)
		}
	}
	if len(authors) > 0 {
		conds = append(conds, "author_id IN ("+placeholders(len(authors))+")")
		for _, a := range authors {
			args = append(args, a)
		}
	}
	if len(conds) == 0 {
		return nil, nil
	}

	rows, err := t.tx.Query(
		`SELECT DISTINCT server_hash FROM interactions
		 WHERE thread_id = ? AND timestamp_ms <= ? AND server_hash != '' AND (`+strings.Join(conds, " OR ")+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("store: match server hashes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("store: scan server hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
