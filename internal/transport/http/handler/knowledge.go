package handler

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"lean-assistant/internal/app"
	"lean-assistant/internal/model"
	"lean-assistant/internal/source"
	"lean-assistant/internal/transport/http/response"
)

const maxPDFSize = 10 << 20 // 10 MB

type KnowledgeBase interface {
	Ingest(ctx context.Context, docs []app.DocumentSource) (*model.IngestReport, error)
	Stats(ctx context.Context) model.IndexStats
}

type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

type KnowledgeHandler struct {
	kb        KnowledgeBase
	publisher JobPublisher
}

type CreateDocumentRequest struct {
	Name    string `json:"name" binding:"required,max=255"`
	Content string `json:"content" binding:"required"`
}

type QueuedResponse struct {
	Queued bool   `json:"queued"`
	Name   string `json:"name"`
}

// NewKnowledgeHandler ingests synchronously when publisher is nil.
func NewKnowledgeHandler(kb KnowledgeBase, publisher JobPublisher) *KnowledgeHandler {
	return &KnowledgeHandler{kb: kb, publisher: publisher}
}

func (h *KnowledgeHandler) Stats(c *gin.Context) {
	response.OK(c, h.kb.Stats(c.Request.Context()))
}

func (h *KnowledgeHandler) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.TrimSpace(req.Content) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "name and content are required")
		return
	}
	h.ingest(c, source.Text{Name: name, Content: req.Content})
}

// UploadPDF accepts a multipart form with "file" (PDF), extracts text and ingests it.
func (h *KnowledgeHandler) UploadPDF(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxPDFSize {
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, "file too large (max 10MB)")
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile, "only PDF files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxPDFSize+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	doc := source.PDF{Name: filepath.Base(file.Filename), Data: data}
	text, err := doc.ExtractText()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to extract text from PDF: "+err.Error())
		return
	}
	if strings.TrimSpace(text) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "PDF contains no extractable text")
		return
	}
	h.ingest(c, source.Text{Name: doc.Name, Content: text})
}

func (h *KnowledgeHandler) ingest(c *gin.Context, doc source.Text) {
	if h.publisher != nil {
		err := h.publisher.Publish(c.Request.Context(), model.IngestJob{Name: doc.Name, Content: doc.Content})
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeQueueFailed, "enqueue document failed")
			return
		}
		response.Accepted(c, QueuedResponse{Queued: true, Name: doc.Name})
		return
	}

	report, err := h.kb.Ingest(c.Request.Context(), []app.DocumentSource{doc})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeIngestFailed, "ingest failed: "+err.Error())
		return
	}
	response.OK(c, report)
}
