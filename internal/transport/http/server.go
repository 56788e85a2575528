package http

import (
	"github.com/gin-gonic/gin"

	"lean-assistant/internal/bootstrap"
	"lean-assistant/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	var publisher handler.JobPublisher
	if app.IngestPublisher != nil {
		publisher = app.IngestPublisher
	}
	chatHandler := handler.NewChatHandler(app.Assistant)
	knowledgeHandler := handler.NewKnowledgeHandler(app.Assistant, publisher)

	v1 := router.Group("/api/v1")
	v1.POST("/chat", chatHandler.Chat)

	knowledgeGroup := v1.Group("/knowledge")
	knowledgeGroup.GET("/stats", knowledgeHandler.Stats)
	knowledgeGroup.POST("/documents", knowledgeHandler.CreateDocument)
	knowledgeGroup.POST("/upload", knowledgeHandler.UploadPDF)

	return router
}
