package service

import (
	"basegraph.app/quizsolver/internal/queue"
	"basegraph.app/quizsolver/internal/store"
)

type Services struct {
	jobs      store.JobStore
	producer  queue.Producer
	appSecret string
}

func NewServices(jobs store.JobStore, producer queue.Producer, appSecret string) *Services {
	return &Services{
		jobs:      jobs,
		producer:  producer,
		appSecret: appSecret,
	}
}

func (s *Services) Quiz() QuizService {
	return NewQuizService(s.jobs, s.producer, s.appSecret)
}
