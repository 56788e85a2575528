package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lean-assistant/internal/app"
	"lean-assistant/internal/model"
	"lean-assistant/internal/transport/http/response"
)

type Answerer interface {
	Answer(ctx context.Context, query string) (*model.SynthesisResult, error)
}

type ChatHandler struct {
	assistant Answerer
}

type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

type ChatResponse struct {
	Answer    string         `json:"answer"`
	Sources   []model.Source `json:"sources"`
	SessionID string         `json:"session_id,omitempty"`
}

func NewChatHandler(assistant Answerer) *ChatHandler {
	return &ChatHandler{assistant: assistant}
}

// Chat answers a question. Provider timeouts and failures still return 200
// with a fixed message in the answer.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.assistant.Answer(c.Request.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "message is empty")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "answer failed")
		}
		return
	}

	response.OK(c, ChatResponse{
		Answer:    result.Answer,
		Sources:   result.Sources,
		SessionID: req.SessionID,
	})
}
