package domain

// Session represents one persisted conversation thread between a physician
// and the assistant. Messages live in MessageStore, keyed by SessionID.
type Session struct {
	ID      SessionID
	OwnerID UserID

	// Hash is a stable secondary lookup key. Deep links shared outside the
	// app carry the hash instead of the canonical id.
	Hash string

	// Title is set exactly once, on the session's first append, and never
	// overwritten afterward.
	Title string

	// Optional binding to a specialized assistant module. Immutable after
	// creation.
	ModuleID    ModuleID
	ModuleTitle string

	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// Message is one turn in a conversation. Assistant content is stored with
// control codes already stripped; historical text never re-triggers commands
// on reload.
type Message struct {
	ID        MessageID
	SessionID SessionID
	Role      Role
	Content   string
	CreatedAt Timestamp

	// Attachment is owned exclusively by this message when present.
	Attachment *Attachment
}

// BlobHandle is a transient reference to binary data (object-URL-like).
// Holders must call Release when the data is no longer displayed; Release is
// idempotent for implementations in this repo.
type BlobHandle interface {
	URL() string
	Release()
}

// Attachment is the normalized wrapper around any non-text input unit.
type Attachment struct {
	Kind     AttachmentKind
	FileName string

	// Blob references the binary payload. The payload itself may be
	// externally hosted; no ownership of the remote object is implied.
	Blob BlobHandle

	// ExtractedText is present for ocr_text and transcribed audio.
	ExtractedText string

	// DurationSeconds is the canonical capture duration, present only for
	// audio. It comes from the capture controller's own counter, never from
	// decoded playback.
	DurationSeconds int
}

// Release revokes the transient blob handle, if any.
func (a *Attachment) Release() {
	if a != nil && a.Blob != nil {
		a.Blob.Release()
	}
}
