package dto

import (
	"time"

	"basegraph.app/quizsolver/internal/model"
)

type QuizTaskRequest struct {
	Email  string `json:"email" binding:"required,email,max=255"`
	Secret string `json:"secret" binding:"required,max=1024"`
	URL    string `json:"url" binding:"required,url,max=2048"`
}

func (r QuizTaskRequest) Payload() model.Payload {
	return model.Payload{Email: r.Email, Secret: r.Secret, URL: r.URL}
}

type QuizTaskResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

type JobResponse struct {
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   model.Payload   `json:"payload"`
	Result    *model.Result   `json:"result"`
}

func ToJobResponse(j *model.Job) *JobResponse {
	return &JobResponse{
		JobID:     j.ID,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		Payload:   j.Payload,
		Result:    j.Result,
	}
}
