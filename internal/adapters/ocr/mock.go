package ocr

import (
	"context"
	"fmt"

	"github.com/consulmed/consulmed/internal/domain"
)

// MockClient is the local-mode extraction backend.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Extract(ctx context.Context, fileName, mimeType string, data []byte) (*domain.OCRResult, error) {
	return &domain.OCRResult{
		Text:       fmt.Sprintf("[conteúdo extraído de %s]", fileName),
		Confidence: 0.99,
		FileName:   fileName,
		FileType:   mimeType,
	}, nil
}
