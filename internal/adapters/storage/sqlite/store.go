// Package sqlite is the single-file local persistence backend, for
// development and on-prem installs that cannot reach Firestore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/consulmed/consulmed/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	hash         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	module_id    TEXT NOT NULL DEFAULT '',
	module_title TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_hash ON sessions(hash);
CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, updated_at);

CREATE TABLE IF NOT EXISTS messages (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	session_id    TEXT NOT NULL,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	att_kind      TEXT NOT NULL DEFAULT '',
	att_file_name TEXT NOT NULL DEFAULT '',
	att_text      TEXT NOT NULL DEFAULT '',
	att_duration  INTEGER NOT NULL DEFAULT 0,
	att_url       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
`

type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, owner_id, hash, title, module_id, module_title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(session.ID), string(session.OwnerID), session.Hash, session.Title,
		string(session.ModuleID), session.ModuleTitle, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		session.Title, session.UpdatedAt, string(session.ID))
	if err != nil {
		return fmt.Errorf("sqlite UpdateSession: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.getSession(ctx, `WHERE id = ?`, string(id))
}

func (s *Store) GetSessionByHash(ctx context.Context, hash string) (*domain.Session, error) {
	return s.getSession(ctx, `WHERE hash = ?`, hash)
}

func (s *Store) getSession(ctx context.Context, where string, arg any) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, hash, title, module_id, module_title, created_at, updated_at
		 FROM sessions `+where, arg)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite getSession: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessionsByOwner(ctx context.Context, ownerID domain.UserID, limit int) ([]*domain.Session, error) {
	query := `SELECT id, owner_id, hash, title, module_id, module_title, created_at, updated_at
		 FROM sessions WHERE owner_id = ? ORDER BY updated_at DESC`
	args := []any{string(ownerID)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListSessionsByOwner: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

// AppendMessage relies on the UNIQUE constraint on message id: a retried
// append is ignored and the original seq keeps the timeline order.
func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	var kind, fileName, text, url string
	var duration int
	if att := msg.Attachment; att != nil {
		kind = string(att.Kind)
		fileName = att.FileName
		text = att.ExtractedText
		duration = att.DurationSeconds
		if att.Blob != nil {
			url = att.Blob.URL()
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages
		 (id, session_id, role, content, created_at, att_kind, att_file_name, att_text, att_duration, att_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.SessionID), string(msg.Role), msg.Content, msg.CreatedAt,
		kind, fileName, text, duration, url)
	if err != nil {
		return fmt.Errorf("sqlite AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	query := `SELECT id, role, content, created_at, att_kind, att_file_name, att_text, att_duration, att_url
		 FROM messages WHERE session_id = ? ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query, string(sessionID))
	if err != nil {
		return nil, fmt.Errorf("sqlite GetMessagesBySession: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var kind, fileName, text, url string
		var duration int
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.CreatedAt,
			&kind, &fileName, &text, &duration, &url); err != nil {
			return nil, fmt.Errorf("sqlite scan message: %w", err)
		}
		msg.SessionID = sessionID
		if kind != "" {
			msg.Attachment = &domain.Attachment{
				Kind:            domain.AttachmentKind(kind),
				FileName:        fileName,
				ExtractedText:   text,
				DurationSeconds: duration,
			}
			if url != "" {
				msg.Attachment.Blob = domain.NewBlobHandle(url, nil)
			}
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	if err := row.Scan(&sess.ID, &sess.OwnerID, &sess.Hash, &sess.Title,
		&sess.ModuleID, &sess.ModuleTitle, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}
