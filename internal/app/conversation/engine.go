package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consulmed/consulmed/internal/app/controlcode"
	"github.com/consulmed/consulmed/internal/domain"
	"github.com/consulmed/consulmed/internal/observability"
)

// Engine orchestrates one submit/reply round trip per session:
//
//	Ready -> AwaitingReply -> Ready
//
// Submissions are serialized per session by an in-flight guard; a second
// submit while a reply is pending fails with domain.ErrSessionBusy. A
// parallel input lock can be set by an assistant command and stays set
// until an explicit unlock command or a new conversation.
type Engine struct {
	store  *Store
	llm    domain.LLMClient
	interp *controlcode.Interpreter
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	inFlight map[domain.SessionID]struct{}
	locked   map[domain.SessionID]bool
}

func NewEngine(store *Store, llm domain.LLMClient, interp *controlcode.Interpreter) *Engine {
	return &Engine{
		store:    store,
		llm:      llm,
		interp:   interp,
		now:      time.Now,
		newID:    uuid.NewString,
		inFlight: make(map[domain.SessionID]struct{}),
		locked:   make(map[domain.SessionID]bool),
	}
}

// SubmitResult is the fully-applied post-reply state. The UI sees either
// the prior state or this, never a half-applied intermediate.
type SubmitResult struct {
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
	Commands         []controlcode.Command

	// ActiveSession is the session the UI should show next. It differs
	// from the submitted one after a start-new-conversation command; no
	// persisted data is discarded by the switch.
	ActiveSession *domain.Session
	InputLocked   bool
}

// InputLocked reports the sticky UI lock for a session.
func (e *Engine) InputLocked(id domain.SessionID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked[id]
}

// SubmitUserInput appends a user message, calls the assistant backend with
// the full ordered history, interprets the reply's control codes, appends
// the cleaned assistant message and applies commands in order.
//
// On backend failure the user message stays persisted and the session
// unwinds to Ready; retrying with a new submission will not duplicate the
// original input. The transient blob handle of the attachment is released
// on every path once the submission is accepted.
func (e *Engine) SubmitUserInput(ctx context.Context, sessionID domain.SessionID, content string, att *domain.Attachment) (*SubmitResult, error) {
	e.mu.Lock()
	if _, busy := e.inFlight[sessionID]; busy {
		e.mu.Unlock()
		return nil, domain.ErrSessionBusy
	}
	e.inFlight[sessionID] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, sessionID)
		e.mu.Unlock()
	}()

	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// The submission is accepted: from here the pending attachment handle
	// is released no matter how the round trip ends.
	defer att.Release()

	_, history, err := e.store.LoadByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	userMsg := &domain.Message{
		ID:         domain.MessageID(e.newID()),
		SessionID:  sessionID,
		Role:       domain.RoleUser,
		Content:    content,
		CreatedAt:  e.now(),
		Attachment: att,
	}
	if err := e.store.Append(ctx, sessionID, userMsg); err != nil {
		return nil, err
	}

	convCtx := domain.ConversationContext{
		SessionID:   sess.ID,
		OwnerID:     sess.OwnerID,
		ModuleID:    sess.ModuleID,
		ModuleTitle: sess.ModuleTitle,
		History:     history,
	}

	raw, err := e.llm.GenerateReply(ctx, backendInput(userMsg), convCtx)
	if err != nil {
		log.Error("assistant backend failed", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	res := e.interp.Interpret(raw)

	asstMsg := &domain.Message{
		ID:        domain.MessageID(e.newID()),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   res.CleanedText,
		CreatedAt: e.now(),
	}
	if err := e.store.Append(ctx, sessionID, asstMsg); err != nil {
		return nil, err
	}

	active := sess
	for _, cmd := range res.Commands {
		active, err = e.apply(ctx, cmd, active)
		if err != nil {
			return nil, err
		}
	}

	if len(res.Commands) > 0 {
		log.Info("applied assistant commands", "commands", len(res.Commands))
	}

	return &SubmitResult{
		UserMessage:      userMsg,
		AssistantMessage: asstMsg,
		Commands:         res.Commands,
		ActiveSession:    active,
		InputLocked:      e.InputLocked(active.ID),
	}, nil
}

// apply executes one command against the active session and returns the
// session that is active afterwards.
func (e *Engine) apply(ctx context.Context, cmd controlcode.Command, active *domain.Session) (*domain.Session, error) {
	switch cmd {
	case controlcode.CommandStartNewConversation:
		fresh, err := e.store.Create(ctx, active.OwnerID, active.ModuleID, active.ModuleTitle)
		if err != nil {
			return nil, fmt.Errorf("starting new conversation: %w", err)
		}
		return fresh, nil
	case controlcode.CommandDisableInput:
		e.setLocked(active.ID, true)
	case controlcode.CommandEnableInput:
		e.setLocked(active.ID, false)
	}
	return active, nil
}

func (e *Engine) setLocked(id domain.SessionID, v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v {
		e.locked[id] = true
	} else {
		delete(e.locked, id)
	}
}

// backendInput is the user turn as the backend sees it: attachment text is
// folded in so OCR'd documents and transcripts reach the model.
func backendInput(msg *domain.Message) string {
	if msg.Attachment == nil || msg.Attachment.ExtractedText == "" {
		return msg.Content
	}
	if msg.Content == "" {
		return msg.Attachment.ExtractedText
	}
	return msg.Content + "\n\n" + msg.Attachment.ExtractedText
}
