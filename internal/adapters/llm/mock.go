package llm

import (
	"context"
	"fmt"

	"github.com/consulmed/consulmed/internal/domain"
)

// MockLLM is the local-mode backend: deterministic replies, no network.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) GenerateReply(ctx context.Context, userMessage string, convCtx domain.ConversationContext) (string, error) {
	return fmt.Sprintf("Entendido, doutor. Você escreveu: %q. Como posso ajudar com este caso?", userMessage), nil
}
