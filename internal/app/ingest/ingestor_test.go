package ingest_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consulmed/consulmed/internal/app/capture"
	"github.com/consulmed/consulmed/internal/app/ingest"
	"github.com/consulmed/consulmed/internal/domain"
)

type fakeOCR struct {
	result *domain.OCRResult
	err    error
	calls  int
}

func (f *fakeOCR) Extract(ctx context.Context, fileName, mimeType string, data []byte) (*domain.OCRResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestIngestFileWrapsExtraction(t *testing.T) {
	ocr := &fakeOCR{result: &domain.OCRResult{
		Text:       "Hemoglobina: 13.2 g/dL\n\n\n\nLeucócitos: 6.400/mm³",
		Confidence: 0.93,
	}}
	ing := ingest.New(ocr, 0.30)

	att, err := ing.IngestFile(context.Background(), "exame.pdf", "application/pdf", []byte("%PDF-"), nil)

	require.NoError(t, err)
	assert.Equal(t, domain.KindPDF, att.Kind)
	assert.Equal(t, "exame.pdf", att.FileName)
	assert.Equal(t, "Hemoglobina: 13.2 g/dL\n\nLeucócitos: 6.400/mm³", att.ExtractedText)
}

func TestIngestFileKindFromMIME(t *testing.T) {
	ocr := &fakeOCR{result: &domain.OCRResult{Text: "ok", Confidence: 1}}
	ing := ingest.New(ocr, 0.30)

	att, err := ing.IngestFile(context.Background(), "scan.png", "image/png", []byte{1}, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.KindImage, att.Kind)
}

func TestIngestFileRejectsUnsupportedType(t *testing.T) {
	ocr := &fakeOCR{}
	ing := ingest.New(ocr, 0.30)

	_, err := ing.IngestFile(context.Background(), "virus.exe", "application/octet-stream", []byte{1}, nil)

	require.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Zero(t, ocr.calls, "rejection must not reach the collaborator")
}

func TestIngestFileRejectsOversized(t *testing.T) {
	ocr := &fakeOCR{}
	ing := ingest.New(ocr, 0.30)
	big := bytes.Repeat([]byte{0xff}, 15<<20)

	att, err := ing.IngestFile(context.Background(), "huge.png", "image/png", big, nil)

	require.ErrorIs(t, err, domain.ErrTooLarge)
	assert.Nil(t, att)
	assert.Zero(t, ocr.calls)
}

func TestLowConfidenceScoreIsAuthoritative(t *testing.T) {
	// Readable-looking text but a score under the threshold: score wins.
	ocr := &fakeOCR{result: &domain.OCRResult{Text: "totally fine text", Confidence: 0.10}}
	ing := ingest.New(ocr, 0.30)

	_, err := ing.IngestFile(context.Background(), "blurry.jpg", "image/jpeg", []byte{1}, nil)

	require.ErrorIs(t, err, domain.ErrLowConfidence)
}

func TestBoilerplateFallbackWithoutScore(t *testing.T) {
	ocr := &fakeOCR{result: &domain.OCRResult{Text: "The document could not be parsed."}}
	ing := ingest.New(ocr, 0.30)

	_, err := ing.IngestFile(context.Background(), "scan.pdf", "application/pdf", []byte{1}, nil)

	require.ErrorIs(t, err, domain.ErrLowConfidence)
}

func TestHighScoreOverridesBoilerplatePhrase(t *testing.T) {
	// A confident extraction that merely mentions a failure phrase passes.
	ocr := &fakeOCR{result: &domain.OCRResult{
		Text:       "Patient notes: previous lab report could not be parsed by the clinic.",
		Confidence: 0.95,
	}}
	ing := ingest.New(ocr, 0.30)

	_, err := ing.IngestFile(context.Background(), "notes.pdf", "application/pdf", []byte{1}, nil)

	require.NoError(t, err)
}

func TestIngestAudioCarriesCanonicalDuration(t *testing.T) {
	ing := ingest.New(nil, 0.30)
	blob := domain.NewBlobHandle("blob:audio-1", nil)

	att := ing.IngestAudio(&capture.Artifact{Blob: blob, DurationSeconds: 7}, "bom dia doutor")

	assert.Equal(t, domain.KindAudio, att.Kind)
	assert.Equal(t, 7, att.DurationSeconds)
	assert.Equal(t, "bom dia doutor", att.ExtractedText)
	assert.Equal(t, "blob:audio-1", att.Blob.URL())
}

func TestNormalizeText(t *testing.T) {
	got := ingest.NormalizeText("a\r\n\r\n\r\n\r\nb\n")
	assert.Equal(t, "a\n\nb", got)
}
