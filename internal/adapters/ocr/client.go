// Package ocr talks to the document text-extraction collaborator, a plain
// JSON-over-HTTP service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/consulmed/consulmed/internal/domain"
)

// Client implements domain.OCRClient against the extraction service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type extractResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	FileName   string  `json:"file_name"`
	FileType   string  `json:"file_type"`
}

// Extract uploads the file and returns the collaborator's result verbatim.
// Classification of low-confidence output belongs to the ingestor, not
// here: the collaborator may answer 200 with boilerplate failure text.
func (c *Client) Extract(ctx context.Context, fileName, mimeType string, data []byte) (*domain.OCRResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("writing upload payload: %w", err)
	}
	if err := w.WriteField("mime_type", mimeType); err != nil {
		return nil, fmt.Errorf("writing mime field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("building extract request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, payload)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding extraction response: %w", err)
	}

	return &domain.OCRResult{
		Text:       out.Text,
		Confidence: out.Confidence,
		FileName:   out.FileName,
		FileType:   out.FileType,
	}, nil
}
