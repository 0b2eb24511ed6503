package llm

import (
	"context"
	"fmt"

	"github.com/consulmed/consulmed/internal/config"
	"github.com/consulmed/consulmed/internal/domain"
)

// NewClientFromConfig selects the assistant backend.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (domain.LLMClient, error) {
	switch cfg.LLMProvider {
	case "openai":
		client, err := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("creating OpenAI client: %w", err)
		}
		return client, nil

	case "vertex":
		client, err := NewVertexClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.VertexModel)
		if err != nil {
			return nil, fmt.Errorf("creating Vertex client: %w", err)
		}
		return client, nil

	case "mock":
		return NewMockLLM(), nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
