package data

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

const (
	upsertSession = `INSERT INTO session (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET updated_at = excluded.updated_at
	`

	insertMessage = `INSERT INTO message (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`

	selectSession = `SELECT id, created_at, updated_at FROM session WHERE id = ?`

	selectMessages = `SELECT role, content, created_at
		FROM message
		WHERE session_id = ?
		ORDER BY created_at, id
	`

	deleteMessages = `DELETE FROM message WHERE session_id = ?`
	deleteSession  = `DELETE FROM session WHERE id = ?`
)

// Message is one turn of a question and answer session.
type Message struct {
	Role    string    `json:"role" yaml:"role"`
	Content string    `json:"content" yaml:"content"`
	Time    time.Time `json:"time" yaml:"time"`
}

// Session is a persisted conversation with its messages, oldest first.
type Session struct {
	ID       string    `json:"id" yaml:"id"`
	Created  time.Time `json:"created" yaml:"created"`
	Updated  time.Time `json:"updated" yaml:"updated"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// AppendMessages creates the session when needed and appends msgs in one
// transaction.
func AppendMessages(db *sql.DB, sessionID string, msgs ...Message) error {
	if db == nil {
		return errDBNotInitialized
	}
	if sessionID == "" {
		return errors.New("session ID is required")
	}

	now := time.Now().UTC()
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	ts := now.Format(timeLayout)
	if _, err := tx.Exec(upsertSession, sessionID, ts, ts); err != nil {
		return errors.Wrapf(err, "failed to save session: %s", sessionID)
	}

	for _, m := range msgs {
		if m.Time.IsZero() {
			m.Time = now
		}
		if _, err := tx.Exec(insertMessage, sessionID, m.Role, m.Content, m.Time.UTC().Format(timeLayout)); err != nil {
			return errors.Wrapf(err, "failed to insert message into session: %s", sessionID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit messages")
	}
	return nil
}

// GetSession returns the session with its messages or nil when none exists.
func GetSession(db *sql.DB, id string) (*Session, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	var (
		s                Session
		created, updated string
	)
	if err := db.QueryRow(selectSession, id).Scan(&s.ID, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get session: %s", id)
	}

	var err error
	if s.Created, err = time.Parse(timeLayout, created); err != nil {
		return nil, errors.Wrapf(err, "failed to parse session time: %s", created)
	}
	if s.Updated, err = time.Parse(timeLayout, updated); err != nil {
		return nil, errors.Wrapf(err, "failed to parse session time: %s", updated)
	}

	rows, err := db.Query(selectMessages, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list messages for session: %s", id)
	}
	defer rows.Close()

	s.Messages = make([]Message, 0)
	for rows.Next() {
		var (
			m  Message
			ts string
		)
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		if m.Time, err = time.Parse(timeLayout, ts); err != nil {
			return nil, errors.Wrapf(err, "failed to parse message time: %s", ts)
		}
		s.Messages = append(s.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}

	return &s, nil
}

// DeleteSession removes the session and its messages. Deleting an unknown
// session is not an error.
func DeleteSession(db *sql.DB, id string) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(deleteMessages, id); err != nil {
		return errors.Wrapf(err, "failed to delete messages for session: %s", id)
	}
	if _, err := tx.Exec(deleteSession, id); err != nil {
		return errors.Wrapf(err, "failed to delete session: %s", id)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit session delete")
	}
	return nil
}
