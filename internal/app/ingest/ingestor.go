// Package ingest normalizes uploaded and recorded media into the uniform
// attachment unit the conversation engine consumes. Validation happens
// before any state is created: a rejected file leaves nothing behind.
package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/consulmed/consulmed/internal/app/capture"
	"github.com/consulmed/consulmed/internal/domain"
)

// MaxFileSize is the upload cap, 10 MiB.
const MaxFileSize = 10 << 20

var kindByMIME = map[string]domain.AttachmentKind{
	"image/jpeg":      domain.KindImage,
	"image/png":       domain.KindImage,
	"image/gif":       domain.KindImage,
	"image/bmp":       domain.KindImage,
	"image/webp":      domain.KindImage,
	"application/pdf": domain.KindPDF,
}

// Phrases the extraction collaborator is known to return instead of a hard
// error when it cannot read a document. Only consulted when no confidence
// score is reported.
var boilerplateFailures = []string{
	"could not be parsed",
	"could not extract",
	"unable to extract text",
	"no text found",
	"document appears to be empty",
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Ingestor turns files, capture artifacts and raw extracted text into
// attachments.
type Ingestor struct {
	ocr           domain.OCRClient
	minConfidence float64
}

func New(ocr domain.OCRClient, minConfidence float64) *Ingestor {
	return &Ingestor{ocr: ocr, minConfidence: minConfidence}
}

// IngestFile validates the upload, delegates extraction to the OCR
// collaborator and wraps the result. Failure modes, in order:
// domain.ErrUnsupportedType, domain.ErrTooLarge, extraction transport
// errors, domain.ErrLowConfidence.
func (ing *Ingestor) IngestFile(ctx context.Context, fileName, mimeType string, data []byte, blob domain.BlobHandle) (*domain.Attachment, error) {
	kind, ok := kindByMIME[strings.ToLower(strings.TrimSpace(mimeType))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, mimeType)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrTooLarge, len(data))
	}

	res, err := ing.ocr.Extract(ctx, fileName, mimeType, data)
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", fileName, err)
	}

	if ing.lowConfidence(res) {
		return nil, fmt.Errorf("%w: %s", domain.ErrLowConfidence, fileName)
	}

	return &domain.Attachment{
		Kind:          kind,
		FileName:      fileName,
		Blob:          blob,
		ExtractedText: NormalizeText(res.Text),
	}, nil
}

// IngestText wraps already-extracted text, normalized, as an ocr_text
// attachment.
func (ing *Ingestor) IngestText(fileName, text string) *domain.Attachment {
	return &domain.Attachment{
		Kind:          domain.KindOCRText,
		FileName:      fileName,
		ExtractedText: NormalizeText(text),
	}
}

// IngestAudio wraps a finalized capture artifact. The artifact's duration is
// canonical and is carried through untouched.
func (ing *Ingestor) IngestAudio(art *capture.Artifact, transcript string) *domain.Attachment {
	return &domain.Attachment{
		Kind:            domain.KindAudio,
		Blob:            art.Blob,
		ExtractedText:   NormalizeText(transcript),
		DurationSeconds: art.DurationSeconds,
	}
}

// lowConfidence classifies an extraction as unusable. A reported score is
// authoritative; the boilerplate-phrase check only backstops collaborators
// that report no score at all, so a phrasing change fails toward the score.
func (ing *Ingestor) lowConfidence(res *domain.OCRResult) bool {
	if res.Confidence > 0 {
		return res.Confidence < ing.minConfidence
	}

	lower := strings.ToLower(res.Text)
	if strings.TrimSpace(lower) == "" {
		return true
	}
	for _, phrase := range boilerplateFailures {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// NormalizeText trims the text and collapses runs of blank lines down to a
// single blank line.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
