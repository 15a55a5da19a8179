package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/quizsolver/internal/http/handler"
)

func QuizRouter(router gin.IRoutes, h *handler.QuizHandler) {
	router.POST("/quiz-task", h.Submit)
	router.GET("/job/:job_id", h.GetJob)
}
