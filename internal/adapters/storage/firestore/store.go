// Package firestore persists conversations in the document store the rest
// of the product already lives in: one document per session, messages in a
// subcollection keyed by message id.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/consulmed/consulmed/internal/domain"
)

type Store struct {
	client *firestore.Client
}

func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

type sessionDoc struct {
	OwnerID     string    `firestore:"owner_id"`
	Hash        string    `firestore:"hash"`
	Title       string    `firestore:"title"`
	ModuleID    string    `firestore:"module_id"`
	ModuleTitle string    `firestore:"module_title"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	SessionID string    `firestore:"session_id"`
	Role      string    `firestore:"role"`
	Content   string    `firestore:"content"`
	CreatedAt time.Time `firestore:"created_at"`

	AttKind     string `firestore:"att_kind,omitempty"`
	AttFileName string `firestore:"att_file_name,omitempty"`
	AttText     string `firestore:"att_text,omitempty"`
	AttDuration int    `firestore:"att_duration,omitempty"`
	AttURL      string `firestore:"att_url,omitempty"`
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.sessionDoc(session.ID).Set(ctx, toSessionDoc(session))
	if err != nil {
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return fromSessionDoc(id, &doc), nil
}

// GetSessionByHash resolves deep links that carry only the secondary key.
func (s *Store) GetSessionByHash(ctx context.Context, hash string) (*domain.Session, error) {
	iter := s.sessionsCol().Where("hash", "==", hash).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore GetSessionByHash: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSessionByHash decode: %w", err)
	}
	return fromSessionDoc(domain.SessionID(snap.Ref.ID), &doc), nil
}

func (s *Store) ListSessionsByOwner(ctx context.Context, ownerID domain.UserID, limit int) ([]*domain.Session, error) {
	q := s.sessionsCol().
		Where("owner_id", "==", string(ownerID)).
		OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListSessionsByOwner: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		out = append(out, fromSessionDoc(domain.SessionID(snap.Ref.ID), &doc))
	}
	return out, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

// AppendMessage writes the message under its own id: a retried append with
// the same id overwrites the identical document, so the timeline cannot
// grow duplicates.
func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	doc := messageDoc{
		SessionID: string(msg.SessionID),
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if att := msg.Attachment; att != nil {
		doc.AttKind = string(att.Kind)
		doc.AttFileName = att.FileName
		doc.AttText = att.ExtractedText
		doc.AttDuration = att.DurationSeconds
		if att.Blob != nil {
			doc.AttURL = att.Blob.URL()
		}
	}

	_, err := s.messagesCol(msg.SessionID).Doc(string(msg.ID)).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := s.messagesCol(sessionID).OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		msg := &domain.Message{
			ID:        domain.MessageID(snap.Ref.ID),
			SessionID: sessionID,
			Role:      domain.Role(doc.Role),
			Content:   doc.Content,
			CreatedAt: doc.CreatedAt,
		}
		if doc.AttKind != "" {
			msg.Attachment = &domain.Attachment{
				Kind:            domain.AttachmentKind(doc.AttKind),
				FileName:        doc.AttFileName,
				ExtractedText:   doc.AttText,
				DurationSeconds: doc.AttDuration,
			}
			if doc.AttURL != "" {
				msg.Attachment.Blob = domain.NewBlobHandle(doc.AttURL, nil)
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func toSessionDoc(session *domain.Session) sessionDoc {
	return sessionDoc{
		OwnerID:     string(session.OwnerID),
		Hash:        session.Hash,
		Title:       session.Title,
		ModuleID:    string(session.ModuleID),
		ModuleTitle: session.ModuleTitle,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
	}
}

func fromSessionDoc(id domain.SessionID, doc *sessionDoc) *domain.Session {
	return &domain.Session{
		ID:          id,
		OwnerID:     domain.UserID(doc.OwnerID),
		Hash:        doc.Hash,
		Title:       doc.Title,
		ModuleID:    domain.ModuleID(doc.ModuleID),
		ModuleTitle: doc.ModuleTitle,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
