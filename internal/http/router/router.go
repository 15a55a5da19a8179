package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/quizsolver/internal/http/handler"
	"basegraph.app/quizsolver/internal/http/middleware"
	"basegraph.app/quizsolver/internal/service"
)

type RouterConfig struct {
	TraceHeaderName string
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("")
	if cfg.TraceHeaderName != "" {
		api.Use(middleware.TraceHeader(cfg.TraceHeaderName))
	}

	quizHandler := handler.NewQuizHandler(services.Quiz())
	QuizRouter(api, quizHandler)
}
