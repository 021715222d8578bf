package store

import (
	"database/sql"
	"fmt"
)

// Contact is the mirror row for a known account. Approved gates whether
// an invite from that account creates a live group or a message request.
type Contact struct {
	AccountID string
	Name      string
	Approved  bool
}

// UpsertContact stores or updates a contact row.
func (t *Tx) UpsertContact(c *Contact) error {
	_, err := t.tx.Exec(
		"INSERT OR REPLACE INTO contacts (account_id, name, approved) VALUES (?, ?, ?)",
		c.AccountID, c.Name, boolInt(c.Approved),
	)
	if err != nil {
		return fmt.Errorf("store: upsert contact: %w", err)
	}
	return nil
}

// GetContact retrieves a contact row, or nil if absent.
func (t *Tx) GetContact(accountID string) (*Contact, error) {
	var c Contact
	var approved int
	err := t.tx.QueryRow(
		"SELECT account_id, name, approved FROM contacts WHERE account_id = ?",
		accountID,
	).Scan(&c.AccountID, &c.Name, &approved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get contact: %w", err)
	}
	c.Approved = approved != 0
	return &c, nil
}

// IsApproved reports whether the account is an approved contact.
// Unknown accounts are not approved.
func (t *Tx) IsApproved(accountID string) (bool, error) {
	c, err := t.GetContact(accountID)
	if err != nil {
		return false, err
	}
	return c != nil && c.Approved, nil
}
