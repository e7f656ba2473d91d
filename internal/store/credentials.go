package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNoCredentials is returned when no session credential has been stored.
// The transport treats this as fatal to a connection attempt: without a
// token no dial is ever made.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is the stored session credential plus the authenticated
// user's id, needed to classify messages and typing events as self-authored.
type Credentials struct {
	Token   string
	UserID  int64
	SavedAt time.Time
}

// SaveCredentials stores the session token and user id, replacing any
// previous credential.
func (db *DB) SaveCredentials(token string, userID int64) error {
	_, err := db.Exec(`
		INSERT INTO credentials (id, token, user_id, saved_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			saved_at = excluded.saved_at`,
		token, userID, time.Now().UnixMilli())
	return err
}

// Credentials returns the stored credential, or ErrNoCredentials.
func (db *DB) Credentials() (*Credentials, error) {
	var c Credentials
	var savedAt int64
	err := db.QueryRow(`SELECT token, user_id, saved_at FROM credentials WHERE id = 1`).
		Scan(&c.Token, &c.UserID, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, err
	}
	c.SavedAt = time.UnixMilli(savedAt)
	return &c, nil
}

// ClearCredentials removes the stored credential (logout).
func (db *DB) ClearCredentials() error {
	_, err := db.Exec(`DELETE FROM credentials WHERE id = 1`)
	return err
}
