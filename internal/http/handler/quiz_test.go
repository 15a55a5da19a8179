package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/quizsolver/internal/http/handler"
	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/queue"
	"basegraph.app/quizsolver/internal/service"
)

var _ = Describe("QuizHandler", func() {
	var (
		router *gin.Engine
		svc    *mockQuizService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockQuizService{}
		h := handler.NewQuizHandler(svc)
		router.POST("/quiz-task", h.Submit)
		router.GET("/job/:job_id", h.GetJob)
	})

	post := func(body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/quiz-task", bytes.NewBuffer(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	validBody := map[string]string{
		"email":  "me@example.com",
		"secret": "s3cret",
		"url":    "https://quiz.example.com/q/1",
	}

	Describe("Submit", func() {
		It("accepts a quiz task", func() {
			var got model.Payload
			svc.submitFn = func(_ context.Context, p model.Payload) (string, error) {
				got = p
				return "abc-123", nil
			}

			w := post(validBody)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{"status": "accepted", "job_id": "abc-123"}`))
			Expect(got).To(Equal(model.Payload{Email: "me@example.com", Secret: "s3cret", URL: "https://quiz.example.com/q/1"}))
		})

		DescribeTable("rejects invalid bodies",
			func(body map[string]string) {
				called := false
				svc.submitFn = func(context.Context, model.Payload) (string, error) {
					called = true
					return "", nil
				}

				w := post(body)

				Expect(w.Code).To(Equal(http.StatusBadRequest))
				Expect(called).To(BeFalse())
			},
			Entry("missing url", map[string]string{"email": "me@example.com", "secret": "s"}),
			Entry("bad url", map[string]string{"email": "me@example.com", "secret": "s", "url": "not a url"}),
			Entry("bad email", map[string]string{"email": "nope", "secret": "s", "url": "https://q.example.com"}),
			Entry("missing secret", map[string]string{"email": "me@example.com", "url": "https://q.example.com"}),
		)

		It("returns 400 on malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/quiz-task", bytes.NewBufferString(`{`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		DescribeTable("maps service errors to status codes",
			func(err error, status int) {
				svc.submitFn = func(context.Context, model.Payload) (string, error) {
					return "", err
				}

				w := post(validBody)

				Expect(w.Code).To(Equal(status))
			},
			Entry("wrong secret", service.ErrInvalidSecret, http.StatusForbidden),
			Entry("secret not configured", service.ErrSecretNotConfigured, http.StatusInternalServerError),
			Entry("queue full", fmt.Errorf("enqueueing job: %w", queue.ErrQueueFull), http.StatusServiceUnavailable),
			Entry("anything else", errors.New("boom"), http.StatusInternalServerError),
		)
	})

	Describe("GetJob", func() {
		It("returns the job record", func() {
			created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
			svc.getFn = func(_ context.Context, id string) (*model.Job, error) {
				Expect(id).To(Equal("abc-123"))
				return &model.Job{
					ID:        id,
					Status:    model.JobStatusRunning,
					Payload:   model.Payload{Email: "me@example.com", Secret: model.RedactedSecret, URL: "https://quiz.example.com/q/1"},
					CreatedAt: created,
					UpdatedAt: created,
				}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/job/abc-123", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{
				"job_id": "abc-123",
				"status": "running",
				"created_at": "2025-01-01T12:00:00Z",
				"updated_at": "2025-01-01T12:00:00Z",
				"payload": {"email": "me@example.com", "secret": "REDACTED", "url": "https://quiz.example.com/q/1"},
				"result": null
			}`))
		})

		It("returns 404 for unknown jobs", func() {
			svc.getFn = func(context.Context, string) (*model.Job, error) {
				return nil, service.ErrJobNotFound
			}

			req := httptest.NewRequest(http.MethodGet, "/job/missing", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})
