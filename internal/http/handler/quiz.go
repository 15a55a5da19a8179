package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/quizsolver/internal/http/dto"
	"basegraph.app/quizsolver/internal/queue"
	"basegraph.app/quizsolver/internal/service"
)

type QuizHandler struct {
	quizService service.QuizService
}

func NewQuizHandler(quizService service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

func (h *QuizHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.QuizTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.quizService.Submit(ctx, req.Payload())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSecretNotConfigured):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server secret not configured"})
		case errors.Is(err, service.ErrInvalidSecret):
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid secret"})
		case errors.Is(err, queue.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many pending quiz tasks"})
		default:
			slog.ErrorContext(ctx, "failed to accept quiz task", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept quiz task"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.QuizTaskResponse{Status: "accepted", JobID: jobID})
}

func (h *QuizHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("job_id")

	job, err := h.quizService.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get job", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, dto.ToJobResponse(job))
}
