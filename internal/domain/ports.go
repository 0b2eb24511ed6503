package domain

import "context"

// ConversationContext gives the assistant backend the full conversation
// state. The backend is stateless: History carries every prior turn in
// order, on every call.
type ConversationContext struct {
	SessionID   SessionID
	OwnerID     UserID
	ModuleID    ModuleID
	ModuleTitle string
	History     []*Message
}

// LLMClient defines how the core talks to the assistant backend. The reply
// is raw text and may embed control-code tokens.
type LLMClient interface {
	GenerateReply(ctx context.Context, userMessage string, convCtx ConversationContext) (string, error)
}

// SessionStore defines session persistence.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	GetSessionByHash(ctx context.Context, hash string) (*Session, error)
	ListSessionsByOwner(ctx context.Context, ownerID UserID, limit int) ([]*Session, error)
}

// MessageStore defines message persistence. AppendMessage must be idempotent
// on Message.ID: a retried append of an already-stored message is a no-op.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessagesBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
}

// OCRResult is the extraction collaborator's response. Confidence is zero
// when the collaborator does not report one.
type OCRResult struct {
	Text       string
	Confidence float64
	FileName   string
	FileType   string
}

// OCRClient defines the document text-extraction collaborator.
type OCRClient interface {
	Extract(ctx context.Context, fileName, mimeType string, data []byte) (*OCRResult, error)
}

// TokenVerifier resolves an opaque bearer token to a user identity. The core
// performs no authentication logic of its own.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (UserID, error)
}
