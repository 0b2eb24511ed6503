package domain

import "time"

type SessionID string
type MessageID string
type UserID string
type ModuleID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AttachmentKind classifies the multi-modal input a message carries.
type AttachmentKind string

const (
	KindAudio   AttachmentKind = "audio"
	KindImage   AttachmentKind = "image"
	KindPDF     AttachmentKind = "pdf"
	KindOCRText AttachmentKind = "ocr_text"
)

type Timestamp = time.Time
