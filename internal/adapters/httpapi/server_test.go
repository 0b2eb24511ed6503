package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consulmed/consulmed/internal/adapters/auth"
	"github.com/consulmed/consulmed/internal/adapters/httpapi"
	"github.com/consulmed/consulmed/internal/adapters/storage/memory"
	"github.com/consulmed/consulmed/internal/app/controlcode"
	"github.com/consulmed/consulmed/internal/app/conversation"
	"github.com/consulmed/consulmed/internal/app/ingest"
	"github.com/consulmed/consulmed/internal/domain"
)

type scriptedLLM struct {
	replies []string
}

func (s *scriptedLLM) GenerateReply(ctx context.Context, userMessage string, convCtx domain.ConversationContext) (string, error) {
	if len(s.replies) == 0 {
		return "entendido", nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

type scriptedOCR struct {
	result domain.OCRResult
}

func (s *scriptedOCR) Extract(ctx context.Context, fileName, mimeType string, data []byte) (*domain.OCRResult, error) {
	return &s.result, nil
}

func newTestServer(llm domain.LLMClient, ocr domain.OCRClient) http.Handler {
	store := conversation.NewStore(memory.NewSessionStore(), memory.NewMessageStore())
	engine := conversation.NewEngine(store, llm, controlcode.NewInterpreter())
	ingestor := ingest.New(ocr, 0.30)
	return httpapi.NewServer(store, engine, ingestor, auth.NewInsecureVerifier())
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	h := newTestServer(&scriptedLLM{}, &scriptedOCR{})

	rec := doJSON(t, h, http.MethodPost, "/sessions", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSendAndResume(t *testing.T) {
	h := newTestServer(&scriptedLLM{replies: []string{"Boa tarde, doutor."}}, &scriptedOCR{})

	rec := doJSON(t, h, http.MethodPost, "/sessions", "dr-1", map[string]string{})
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decode[map[string]any](t, rec)
	id := sess["id"].(string)
	hash := sess["hash"].(string)
	require.NotEmpty(t, id)
	require.NotEmpty(t, hash)

	rec = doJSON(t, h, http.MethodPost, "/sessions/"+id+"/messages", "dr-1", map[string]string{"text": "boa tarde"})
	require.Equal(t, http.StatusOK, rec.Code)
	sent := decode[map[string]any](t, rec)
	asst := sent["assistant_message"].(map[string]any)
	assert.Equal(t, "Boa tarde, doutor.", asst["content"])
	assert.Equal(t, false, sent["input_locked"])

	// Resume by hash, as a deep-linked reload would.
	rec = doJSON(t, h, http.MethodGet, "/sessions/hash/"+hash, "dr-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resumed := decode[map[string]any](t, rec)
	msgs := resumed["messages"].([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "boa tarde", first["content"])
}

func TestControlCodeSwitchesActiveSession(t *testing.T) {
	h := newTestServer(&scriptedLLM{replies: []string{"Até logo. #0001"}}, &scriptedOCR{})

	rec := doJSON(t, h, http.MethodPost, "/sessions", "dr-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = doJSON(t, h, http.MethodPost, "/sessions/"+id+"/messages", "dr-1", map[string]string{"text": "obrigado"})
	require.Equal(t, http.StatusOK, rec.Code)
	sent := decode[map[string]any](t, rec)

	asst := sent["assistant_message"].(map[string]any)
	assert.Equal(t, "Até logo. ", asst["content"])
	assert.Equal(t, []any{"start_new_conversation"}, sent["commands"])

	active := sent["active_session"].(map[string]any)
	assert.NotEqual(t, id, active["id"])
}

func TestSessionOwnershipIsEnforced(t *testing.T) {
	h := newTestServer(&scriptedLLM{}, &scriptedOCR{})

	rec := doJSON(t, h, http.MethodPost, "/sessions", "dr-1", nil)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = doJSON(t, h, http.MethodGet, "/sessions/"+id, "dr-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/sessions/"+id+"/messages", "dr-2", map[string]string{"text": "oi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownSessionIs404(t *testing.T) {
	h := newTestServer(&scriptedLLM{}, &scriptedOCR{})

	rec := doJSON(t, h, http.MethodGet, "/sessions/nope", "dr-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, field, fileName, mimeType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + fileName + `"`}
	hdr["Content-Type"] = []string{mimeType}
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAttachmentPreviewExtraction(t *testing.T) {
	h := newTestServer(&scriptedLLM{}, &scriptedOCR{result: domain.OCRResult{
		Text:       "Hemoglobina 13.2",
		Confidence: 0.95,
	}})

	body, ct := multipartUpload(t, "file", "exame.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/attachments", body)
	req.Header.Set("Authorization", "Bearer dr-1")
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[map[string]any](t, rec)
	assert.Equal(t, "pdf", out["kind"])
	assert.Equal(t, "Hemoglobina 13.2", out["extracted_text"])
}

func TestAttachmentRejectionStatuses(t *testing.T) {
	h := newTestServer(&scriptedLLM{}, &scriptedOCR{result: domain.OCRResult{
		Text: "The document could not be parsed.",
	}})

	// Unsupported type.
	body, ct := multipartUpload(t, "file", "notas.txt", "text/plain", []byte("oi"))
	req := httptest.NewRequest(http.MethodPost, "/attachments", body)
	req.Header.Set("Authorization", "Bearer dr-1")
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	// Low-confidence extraction.
	body, ct = multipartUpload(t, "file", "borrado.pdf", "application/pdf", []byte("%PDF-1.4"))
	req = httptest.NewRequest(http.MethodPost, "/attachments", body)
	req.Header.Set("Authorization", "Bearer dr-1")
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSendMessageWithAttachment(t *testing.T) {
	h := newTestServer(
		&scriptedLLM{replies: []string{"Hemograma dentro da normalidade."}},
		&scriptedOCR{result: domain.OCRResult{Text: "Hb 13.2 g/dL", Confidence: 0.9}},
	)

	rec := doJSON(t, h, http.MethodPost, "/sessions", "dr-1", nil)
	id := decode[map[string]any](t, rec)["id"].(string)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("text", "segue o hemograma"))
	hdr := map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="hemograma.png"`},
		"Content-Type":        {"image/png"},
	}
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/messages", &buf)
	req.Header.Set("Authorization", "Bearer dr-1")
	req.Header.Set("Content-Type", w.FormDataContentType())
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	out := decode[map[string]any](t, recorder)
	user := out["user_message"].(map[string]any)
	att := user["attachment"].(map[string]any)
	assert.Equal(t, "image", att["kind"])
	assert.Equal(t, "Hb 13.2 g/dL", att["extracted_text"])
}
