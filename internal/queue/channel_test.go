package queue_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/quizsolver/internal/queue"
)

var _ = Describe("ChannelQueue", func() {
	var (
		ctx context.Context
		q   *queue.ChannelQueue
	)

	BeforeEach(func() {
		ctx = context.Background()
		q = queue.NewChannelQueue(2, 20*time.Millisecond)
	})

	It("delivers messages in order with an id and first attempt", func() {
		Expect(q.Enqueue(ctx, queue.Message{JobID: "a"})).To(Succeed())
		Expect(q.Enqueue(ctx, queue.Message{JobID: "b"})).To(Succeed())

		first, err := q.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(HaveLen(1))
		Expect(first[0].JobID).To(Equal("a"))
		Expect(first[0].ID).NotTo(BeEmpty())
		Expect(first[0].Attempt).To(Equal(1))

		second, err := q.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(second[0].JobID).To(Equal("b"))
		Expect(second[0].ID).NotTo(Equal(first[0].ID))
	})

	It("reports a full buffer instead of blocking", func() {
		Expect(q.Enqueue(ctx, queue.Message{JobID: "a"})).To(Succeed())
		Expect(q.Enqueue(ctx, queue.Message{JobID: "b"})).To(Succeed())

		Expect(q.Enqueue(ctx, queue.Message{JobID: "c"})).To(MatchError(queue.ErrQueueFull))
		Expect(q.Len()).To(Equal(2))
	})

	It("returns an empty batch when nothing arrives in time", func() {
		msgs, err := q.Read(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})

	It("stops waiting when the context ends", func() {
		q = queue.NewChannelQueue(1, time.Minute)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := q.Read(cctx)

		Expect(err).To(MatchError(context.Canceled))
	})

	It("requeues with the next attempt number", func() {
		Expect(q.Enqueue(ctx, queue.Message{JobID: "a"})).To(Succeed())
		msgs, _ := q.Read(ctx)

		Expect(q.Requeue(ctx, msgs[0], "boom")).To(Succeed())

		again, err := q.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(again[0].JobID).To(Equal("a"))
		Expect(again[0].Attempt).To(Equal(2))
		Expect(again[0].ID).NotTo(Equal(msgs[0].ID))
	})

	It("keeps dead letters", func() {
		Expect(q.SendDLQ(ctx, queue.Message{JobID: "a", Attempt: 3}, "gave up")).To(Succeed())

		Expect(q.DeadLetters()).To(ConsistOf(HaveField("JobID", "a")))
	})

	It("refuses new messages after close but drains buffered ones", func() {
		Expect(q.Enqueue(ctx, queue.Message{JobID: "a"})).To(Succeed())
		Expect(q.Close()).To(Succeed())

		Expect(q.Enqueue(ctx, queue.Message{JobID: "b"})).To(MatchError(queue.ErrQueueClosed))

		msgs, err := q.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs[0].JobID).To(Equal("a"))
	})
})
