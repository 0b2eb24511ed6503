// Package httpapi is the REST surface over the conversation engine.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consulmed/consulmed/internal/app/conversation"
	"github.com/consulmed/consulmed/internal/app/ingest"
	"github.com/consulmed/consulmed/internal/domain"
	"github.com/consulmed/consulmed/internal/observability"
)

type Server struct {
	store    *conversation.Store
	engine   *conversation.Engine
	ingestor *ingest.Ingestor
}

func NewServer(store *conversation.Store, engine *conversation.Engine, ingestor *ingest.Ingestor, verifier domain.TokenVerifier) http.Handler {
	s := &Server{store: store, engine: engine, ingestor: ingestor}

	mux := http.NewServeMux()

	// /sessions           → POST: create, GET: recent list
	mux.HandleFunc("/sessions", s.handleSessions)

	// /sessions/hash/{hash}     →  GET: resume by secondary key
	// /sessions/{id}            →  GET: session + timeline
	// /sessions/{id}/messages   → POST: submit user input
	mux.HandleFunc("/sessions/", s.handleSessionPath)

	// /attachments → POST: validate + extract, stateless preview
	mux.HandleFunc("/attachments", s.handleAttachments)

	return chainMiddlewares(mux, withAuth(verifier), withLogging, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	ModuleID    string `json:"module_id,omitempty"`
	ModuleTitle string `json:"module_title,omitempty"`
}

type sessionResponse struct {
	ID          string    `json:"id"`
	Hash        string    `json:"hash"`
	Title       string    `json:"title"`
	ModuleID    string    `json:"module_id,omitempty"`
	ModuleTitle string    `json:"module_title,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type attachmentResponse struct {
	Kind            string `json:"kind"`
	FileName        string `json:"file_name,omitempty"`
	ExtractedText   string `json:"extracted_text,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	URL             string `json:"url,omitempty"`
}

type messageResponse struct {
	ID         string              `json:"id"`
	SessionID  string              `json:"session_id"`
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	CreatedAt  time.Time           `json:"created_at"`
	Attachment *attachmentResponse `json:"attachment,omitempty"`
}

type getSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage      messageResponse `json:"user_message"`
	AssistantMessage messageResponse `json:"assistant_message"`
	Commands         []string        `json:"commands,omitempty"`
	ActiveSession    sessionResponse `json:"active_session"`
	InputLocked      bool            `json:"input_locked"`
}

// ─────────────────────────────────────────────
// Routing
// ─────────────────────────────────────────────

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodGet:
		s.handleListSessions(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSessionPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	if parts[0] == "hash" && len(parts) == 2 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleResumeByHash(w, r, parts[1])
		return
	}

	id := domain.SessionID(parts[0])

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleGetSession(w, r, id)
		return
	}

	if len(parts) == 2 && parts[1] == "messages" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleSendMessage(w, r, id)
		return
	}

	http.NotFound(w, r)
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)

	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
	}

	sess, err := s.store.Create(r.Context(), owner, domain.ModuleID(req.ModuleID), req.ModuleTitle)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := s.store.ListRecent(r.Context(), owner, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	sess, msgs, err := s.store.LoadByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.OwnerID != ownerFrom(r) {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, getSessionResponse{
		Session:  toSessionResponse(sess),
		Messages: toMessagesResponse(msgs),
	})
}

func (s *Server) handleResumeByHash(w http.ResponseWriter, r *http.Request, hash string) {
	sess, msgs, err := s.store.LoadByHash(r.Context(), hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.OwnerID != ownerFrom(r) {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, getSessionResponse{
		Session:  toSessionResponse(sess),
		Messages: toMessagesResponse(msgs),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.OwnerID != ownerFrom(r) {
		http.NotFound(w, r)
		return
	}

	text, att, err := s.readSubmission(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if strings.TrimSpace(text) == "" && att == nil {
		badRequest(w, "text or attachment is required")
		return
	}

	out, err := s.engine.SubmitUserInput(r.Context(), id, text, att)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := sendMessageResponse{
		UserMessage:      toMessageResponse(out.UserMessage),
		AssistantMessage: toMessageResponse(out.AssistantMessage),
		ActiveSession:    toSessionResponse(out.ActiveSession),
		InputLocked:      out.InputLocked,
	}
	for _, cmd := range out.Commands {
		resp.Commands = append(resp.Commands, cmd.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

// readSubmission accepts either a JSON body with text, or a multipart form
// with a text field and an optional file run through the ingestor.
func (s *Server) readSubmission(r *http.Request) (string, *domain.Attachment, error) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, errBadRequest
		}
		return req.Text, nil, nil
	}

	if err := r.ParseMultipartForm(ingest.MaxFileSize + 1<<20); err != nil {
		return "", nil, errBadRequest
	}
	text := r.FormValue("text")

	file, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return text, nil, nil
	}
	if err != nil {
		return "", nil, errBadRequest
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, ingest.MaxFileSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("reading upload: %w", err)
	}

	blob := domain.NewBlobHandle("upload://"+uuid.NewString(), nil)
	att, err := s.ingestor.IngestFile(r.Context(), header.Filename, header.Header.Get("Content-Type"), data, blob)
	if err != nil {
		blob.Release()
		return "", nil, err
	}
	return text, att, nil
}

// handleAttachments validates and extracts an upload without touching any
// session, so the UI can preview (or warn about) an extraction before the
// physician sends it.
func (s *Server) handleAttachments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if err := r.ParseMultipartForm(ingest.MaxFileSize + 1<<20); err != nil {
		badRequest(w, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, ingest.MaxFileSize+1))
	if err != nil {
		writeError(w, r, err)
		return
	}

	att, err := s.ingestor.IngestFile(r.Context(), header.Filename, header.Header.Get("Content-Type"), data, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAttachmentResponse(att))
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

var errBadRequest = errors.New("bad request")

func ownerFrom(r *http.Request) domain.UserID {
	return domain.UserID(observability.UserIDFromContext(r.Context()))
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:          string(s.ID),
		Hash:        s.Hash,
		Title:       s.Title,
		ModuleID:    string(s.ModuleID),
		ModuleTitle: s.ModuleTitle,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func toAttachmentResponse(a *domain.Attachment) *attachmentResponse {
	resp := &attachmentResponse{
		Kind:            string(a.Kind),
		FileName:        a.FileName,
		ExtractedText:   a.ExtractedText,
		DurationSeconds: a.DurationSeconds,
	}
	if a.Blob != nil {
		resp.URL = a.Blob.URL()
	}
	return resp
}

func toMessageResponse(m *domain.Message) messageResponse {
	resp := messageResponse{
		ID:        string(m.ID),
		SessionID: string(m.SessionID),
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.Attachment != nil {
		resp.Attachment = toAttachmentResponse(m.Attachment)
	}
	return resp
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, errBadRequest):
		status, msg = http.StatusBadRequest, "invalid request body"
	case errors.Is(err, domain.ErrSessionNotFound):
		status, msg = http.StatusNotFound, "session not found"
	case errors.Is(err, domain.ErrSessionBusy):
		status, msg = http.StatusConflict, "a reply is already in flight for this session"
	case errors.Is(err, domain.ErrUnsupportedType):
		status, msg = http.StatusUnsupportedMediaType, "unsupported file type"
	case errors.Is(err, domain.ErrTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "file exceeds the 10 MiB limit"
	case errors.Is(err, domain.ErrLowConfidence):
		status, msg = http.StatusUnprocessableEntity, "the document could not be read reliably"
	case errors.Is(err, domain.ErrBackendUnavailable):
		status, msg = http.StatusBadGateway, "assistant backend unavailable, retry the message"
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
