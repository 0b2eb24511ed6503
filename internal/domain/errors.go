package domain

import "errors"

// Capture errors. Both are recoverable: the controller returns to Idle and
// the session is untouched.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no audio input device available")
)

// Ingestion errors. Rejection creates no partial state.
var (
	ErrUnsupportedType = errors.New("unsupported attachment type")
	ErrTooLarge        = errors.New("attachment exceeds size limit")
	ErrLowConfidence   = errors.New("low-confidence text extraction")
)

// Session and engine errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionBusy     = errors.New("session has a reply in flight")
)

// Backend errors. The user's message stays persisted; a retry is safe.
var (
	ErrBackendUnavailable = errors.New("assistant backend unavailable")
)
