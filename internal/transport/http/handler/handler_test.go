package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lean-assistant/internal/app"
	"lean-assistant/internal/model"
	"lean-assistant/internal/transport/http/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAssistant struct {
	result  *model.SynthesisResult
	err     error
	queries []string

	ingested []app.DocumentSource
	report   *model.IngestReport
	stats    model.IndexStats
}

func (f *fakeAssistant) Answer(_ context.Context, query string) (*model.SynthesisResult, error) {
	f.queries = append(f.queries, query)
	return f.result, f.err
}

func (f *fakeAssistant) Ingest(_ context.Context, docs []app.DocumentSource) (*model.IngestReport, error) {
	f.ingested = append(f.ingested, docs...)
	return f.report, f.err
}

func (f *fakeAssistant) Stats(context.Context) model.IndexStats { return f.stats }

type fakePublisher struct {
	jobs []model.IngestJob
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, job model.IngestJob) error {
	p.jobs = append(p.jobs, job)
	return p.err
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, method, path string, body *bytes.Buffer, contentType string, register func(r *gin.Engine)) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	r := gin.New()
	register(r)
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func TestChat(t *testing.T) {
	fa := &fakeAssistant{result: &model.SynthesisResult{
		Answer:  "Run a 5S audit.",
		Sources: []model.Source{{Content: "5S...", Metadata: map[string]any{"source": "5s.pdf"}}},
	}}
	h := NewChatHandler(fa)

	w, env := serve(t, http.MethodPost, "/chat", jsonBody(t, ChatRequest{Message: "where to start?", SessionID: "s1"}),
		"application/json", func(r *gin.Engine) { r.POST("/chat", h.Chat) })

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeOK, env.Code)
	var got ChatResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Run a 5S audit.", got.Answer)
	assert.Equal(t, "s1", got.SessionID)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "5s.pdf", got.Sources[0].Metadata["source"])
	assert.Equal(t, []string{"where to start?"}, fa.queries)
}

func TestChatEmptySourcesSerialiseAsArray(t *testing.T) {
	fa := &fakeAssistant{result: &model.SynthesisResult{Answer: "a", Sources: []model.Source{}}}
	h := NewChatHandler(fa)

	w, _ := serve(t, http.MethodPost, "/chat", jsonBody(t, ChatRequest{Message: "q"}),
		"application/json", func(r *gin.Engine) { r.POST("/chat", h.Chat) })
	assert.Contains(t, w.Body.String(), `"sources":[]`)
}

func TestChatErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   *bytes.Buffer
		err    error
		status int
	}{
		{"missing message", bytes.NewBufferString(`{}`), nil, http.StatusBadRequest},
		{"bad json", bytes.NewBufferString(`{`), nil, http.StatusBadRequest},
		{"blank message", bytes.NewBufferString(`{"message":"  "}`), app.ErrInvalidInput, http.StatusBadRequest},
		{"internal", bytes.NewBufferString(`{"message":"q"}`), errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewChatHandler(&fakeAssistant{err: tc.err})
			w, env := serve(t, http.MethodPost, "/chat", tc.body, "application/json",
				func(r *gin.Engine) { r.POST("/chat", h.Chat) })
			assert.Equal(t, tc.status, w.Code)
			assert.NotEqual(t, response.CodeOK, env.Code)
		})
	}
}

func TestKnowledgeStats(t *testing.T) {
	fa := &fakeAssistant{stats: model.IndexStats{TotalEntries: 42, CollectionName: "lean_knowledge", Status: "ready"}}
	h := NewKnowledgeHandler(fa, nil)

	w, env := serve(t, http.MethodGet, "/stats", nil, "", func(r *gin.Engine) { r.GET("/stats", h.Stats) })
	assert.Equal(t, http.StatusOK, w.Code)
	var got model.IndexStats
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, fa.stats, got)
}

func TestCreateDocumentSync(t *testing.T) {
	fa := &fakeAssistant{report: &model.IngestReport{ChunkCounts: map[string]int{"vsm.md": 2}, Failures: []model.IngestFailure{}}}
	h := NewKnowledgeHandler(fa, nil)

	w, env := serve(t, http.MethodPost, "/documents", jsonBody(t, CreateDocumentRequest{Name: "vsm.md", Content: "value stream"}),
		"application/json", func(r *gin.Engine) { r.POST("/documents", h.CreateDocument) })

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fa.ingested, 1)
	assert.Equal(t, "vsm.md", fa.ingested[0].SourceName())
	var got model.IngestReport
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 2, got.ChunkCounts["vsm.md"])
}

func TestCreateDocumentQueued(t *testing.T) {
	fa := &fakeAssistant{}
	pub := &fakePublisher{}
	h := NewKnowledgeHandler(fa, pub)

	w, _ := serve(t, http.MethodPost, "/documents", jsonBody(t, CreateDocumentRequest{Name: "tpm.md", Content: "autonomous maintenance"}),
		"application/json", func(r *gin.Engine) { r.POST("/documents", h.CreateDocument) })

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, fa.ingested)
	assert.Equal(t, []model.IngestJob{{Name: "tpm.md", Content: "autonomous maintenance"}}, pub.jobs)
}

func TestCreateDocumentQueueFailure(t *testing.T) {
	h := NewKnowledgeHandler(&fakeAssistant{}, &fakePublisher{err: errors.New("channel closed")})

	w, env := serve(t, http.MethodPost, "/documents", jsonBody(t, CreateDocumentRequest{Name: "a", Content: "b"}),
		"application/json", func(r *gin.Engine) { r.POST("/documents", h.CreateDocument) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, response.CodeQueueFailed, env.Code)
}

func TestCreateDocumentValidation(t *testing.T) {
	h := NewKnowledgeHandler(&fakeAssistant{}, nil)
	for _, body := range []string{`{}`, `{"name":"a"}`, `{"name":" ","content":"x"}`, `{"name":"a","content":"  "}`} {
		w, _ := serve(t, http.MethodPost, "/documents", bytes.NewBufferString(body), "application/json",
			func(r *gin.Engine) { r.POST("/documents", h.CreateDocument) })
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func multipartFile(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUploadPDFRejections(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		content  []byte
		code     int
	}{
		{"missing file", "", nil, response.CodeBadRequest},
		{"not a pdf", "notes.txt", []byte("kaizen"), response.CodeUnsupportedFile},
		{"too large", "big.pdf", bytes.Repeat([]byte("x"), maxPDFSize+1), response.CodeFileTooLarge},
		{"corrupt pdf", "broken.pdf", []byte("not really a pdf"), response.CodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fa := &fakeAssistant{}
			h := NewKnowledgeHandler(fa, nil)
			body, ct := multipartFile(t, tc.filename, tc.content)

			w, env := serve(t, http.MethodPost, "/upload", body, ct, func(r *gin.Engine) { r.POST("/upload", h.UploadPDF) })
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.code, env.Code)
			assert.Empty(t, fa.ingested)
		})
	}
}
