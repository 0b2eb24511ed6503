package memory

import (
	"context"
	"sync"

	"github.com/consulmed/consulmed/internal/domain"
)

type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.SessionID][]*domain.Message
	seen     map[domain.SessionID]map[domain.MessageID]struct{}
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[domain.SessionID][]*domain.Message),
		seen:     make(map[domain.SessionID]map[domain.MessageID]struct{}),
	}
}

// AppendMessage appends in call order. A message id already stored for the
// session is a no-op, so retried appends keep the timeline intact.
func (s *MessageStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.seen[msg.SessionID]
	if ids == nil {
		ids = make(map[domain.MessageID]struct{})
		s.seen[msg.SessionID] = ids
	}
	if _, dup := ids[msg.ID]; dup {
		return nil
	}

	ids[msg.ID] = struct{}{}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *MessageStore) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
