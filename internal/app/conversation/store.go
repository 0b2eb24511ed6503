// Package conversation holds the session store and the engine that
// orchestrates one active conversation between the chat UI and the
// assistant backend.
package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consulmed/consulmed/internal/domain"
)

// titleMaxLen caps titles derived from the first user message.
const titleMaxLen = 48

// Store enforces conversation invariants on top of the persistence ports:
// append-only ordering, dedupe by message id, and title-set-exactly-once.
// Every backend inherits them because mutation never bypasses this type.
type Store struct {
	sessions domain.SessionStore
	messages domain.MessageStore
	now      func() time.Time
	newID    func() string
}

func NewStore(sessions domain.SessionStore, messages domain.MessageStore) *Store {
	return &Store{
		sessions: sessions,
		messages: messages,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SessionHash derives the stable secondary lookup key from the session id.
// Deep links carry this instead of the canonical id.
func SessionHash(id domain.SessionID) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:12]
}

// Create allocates a session with an empty message list and an optional
// module binding. Module fields are immutable afterward.
func (s *Store) Create(ctx context.Context, ownerID domain.UserID, moduleID domain.ModuleID, moduleTitle string) (*domain.Session, error) {
	now := s.now()
	sess := &domain.Session{
		ID:          domain.SessionID(s.newID()),
		OwnerID:     ownerID,
		ModuleID:    moduleID,
		ModuleTitle: moduleTitle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sess.Hash = SessionHash(sess.ID)

	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// Get returns the session record without its timeline.
func (s *Store) Get(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.sessions.GetSession(ctx, id)
}

// Append atomically adds msg to the session's timeline. A retried append
// with an already-stored message id is a no-op, so network retries cannot
// duplicate or reorder turns. The first append also fixes the session
// title: the module title when bound, otherwise a truncation of the first
// user message.
func (s *Store) Append(ctx context.Context, sessionID domain.SessionID, msg *domain.Message) error {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	existing, err := s.messages.GetMessagesBySession(ctx, sessionID, 0)
	if err != nil {
		return fmt.Errorf("loading timeline: %w", err)
	}
	for _, m := range existing {
		if m.ID == msg.ID {
			return nil
		}
	}

	msg.SessionID = sessionID
	if err := s.messages.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}

	if sess.Title == "" && len(existing) == 0 {
		sess.Title = deriveTitle(sess, msg)
	}
	sess.UpdatedAt = s.now()
	if err := s.sessions.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return nil
}

// LoadByID resumes a session and its full ordered timeline.
func (s *Store) LoadByID(ctx context.Context, id domain.SessionID) (*domain.Session, []*domain.Message, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.GetMessagesBySession(ctx, id, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("loading timeline: %w", err)
	}
	return sess, msgs, nil
}

// LoadByHash resumes via the secondary key, for deep-linked clients that
// never saw the canonical id.
func (s *Store) LoadByHash(ctx context.Context, hash string) (*domain.Session, []*domain.Message, error) {
	sess, err := s.sessions.GetSessionByHash(ctx, hash)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.GetMessagesBySession(ctx, sess.ID, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("loading timeline: %w", err)
	}
	return sess, msgs, nil
}

// ListRecent returns the owner's sessions, most recently updated first.
// Read-only.
func (s *Store) ListRecent(ctx context.Context, ownerID domain.UserID, limit int) ([]*domain.Session, error) {
	return s.sessions.ListSessionsByOwner(ctx, ownerID, limit)
}

func deriveTitle(sess *domain.Session, first *domain.Message) string {
	if sess.ModuleTitle != "" {
		return sess.ModuleTitle
	}
	title := strings.TrimSpace(first.Content)
	if title == "" && first.Attachment != nil {
		title = first.Attachment.FileName
	}
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		title = string(runes[:titleMaxLen]) + "…"
	}
	return title
}
