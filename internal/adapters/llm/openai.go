package llm

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/consulmed/consulmed/internal/domain"
)

// OpenAIClient implements domain.LLMClient over the OpenAI chat-completions
// API (or any OpenAI-compatible endpoint via BaseURL).
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// GenerateReply sends the system prompt, the full ordered history and the
// new user turn. The backend is stateless; nothing is cached between calls.
func (c *OpenAIClient) GenerateReply(ctx context.Context, userMessage string, convCtx domain.ConversationContext) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(convCtx.History)+2)

	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: BuildSystemPrompt(convCtx),
	})

	for _, m := range convCtx.History {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case domain.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		content := m.Content
		if m.Attachment != nil && m.Attachment.ExtractedText != "" {
			if content != "" {
				content += "\n\n"
			}
			content += m.Attachment.ExtractedText
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: content})
	}

	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	temperature := float32(0.3)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
