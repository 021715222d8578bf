package store

import (
	"database/sql"
	"fmt"

	"github.com/ombra-im/ombra-go/internal/configstore"
)

// SaveConfigDump persists the serialized form of one config object so the
// distributed state can be restored across restarts.
func (t *Tx) SaveConfigDump(groupID string, kind configstore.Kind, data []byte) error {
	_, err := t.tx.Exec(
		"INSERT OR REPLACE INTO config_dumps (group_id, kind, data) VALUES (?, ?, ?)",
		groupID, int(kind), data,
	)
	if err != nil {
		return fmt.Errorf("store: save config dump: %w", err)
	}
	return nil
}

// GetConfigDump retrieves a persisted config dump, or nil if absent.
func (t *Tx) GetConfigDump(groupID string, kind configstore.Kind) ([]byte, error) {
	var data []byte
	err := t.tx.QueryRow(
		"SELECT data FROM config_dumps WHERE group_id = ? AND kind = ?",
		groupID, int(kind),
	).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get config dump: %w", err)
	}
	return data, nil
}

// DeleteConfigDumps removes every cached dump of a group.
func (t *Tx) DeleteConfigDumps(groupID string) error {
	_, err := t.tx.Exec("DELETE FROM config_dumps WHERE group_id = ?", groupID)
	if err != nil {
		return fmt.Errorf("store: delete config dumps: %w", err)
	}
	return nil
}
