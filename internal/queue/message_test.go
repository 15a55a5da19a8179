package queue_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/quizsolver/internal/queue"
)

var _ = Describe("ParseMessage", func() {
	It("decodes a full entry", func() {
		raw := redis.XMessage{
			ID:     "1700000000000-0",
			Values: map[string]any{"job_id": "abc", "attempt": "3", "trace_id": "0af7651916cd43dd8448eb211c80319c"},
		}

		msg, err := queue.ParseMessage(raw)

		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ID).To(Equal("1700000000000-0"))
		Expect(msg.JobID).To(Equal("abc"))
		Expect(msg.Attempt).To(Equal(3))
		Expect(msg.TraceID).To(Equal("0af7651916cd43dd8448eb211c80319c"))
		Expect(msg.Raw).To(Equal(raw))
	})

	It("defaults the attempt to one", func() {
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: map[string]any{"job_id": "abc"}})

		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
		Expect(msg.TraceID).To(BeEmpty())
	})

	DescribeTable("rejects bad entries",
		func(values map[string]any, expected string) {
			_, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
			Expect(err).To(MatchError(ContainSubstring(expected)))
		},
		Entry("missing job id", map[string]any{"attempt": "1"}, "missing job_id"),
		Entry("empty job id", map[string]any{"job_id": ""}, "empty job_id"),
		Entry("non-numeric attempt", map[string]any{"job_id": "abc", "attempt": "two"}, "parsing attempt"),
	)
})
