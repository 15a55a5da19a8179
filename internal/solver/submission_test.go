package solver_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/pipeline"
	"basegraph.app/quizsolver/internal/planner"
	"basegraph.app/quizsolver/internal/solver"
)

var _ = Describe("SubmissionMachine", func() {
	var (
		ctx     context.Context
		grader  *mockGrader
		pages   *mockPages
		plan    *mockPlanner
		clock   *fakeClock
		cfg     solver.SubmissionConfig
		payload model.Payload
		first   *pipeline.Page
	)

	const (
		quizURL   = "https://quiz.example.com/q/1"
		submitURL = "https://quiz.example.com/submit"
	)

	run := func(answer planner.Answer) (*solver.Outcome, error) {
		m := solver.NewSubmissionMachine(grader, pages, plan, planner.NewPromptBuilder(0), cfg, solver.WithNow(clock.Now))
		return m.Run(ctx, solver.CycleStart{
			JobID:   "job-1",
			Payload: payload,
			Page:    first,
			Answer:  answer,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		grader = &mockGrader{}
		pages = &mockPages{}
		plan = &mockPlanner{}
		clock = newFakeClock()
		cfg = solver.SubmissionConfig{}
		payload = model.Payload{Email: "me@example.com", Secret: "s3cret", URL: quizURL}
		first = quizPage(quizURL, submitURL)
	})

	It("stops after one attempt when the answer is accepted", func() {
		grader.submitFn = replies(`{"correct": true}`)

		out, err := run(planner.Answer{"answer": 42})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonAccepted))
		Expect(out.Attempts).To(Equal(1))
		Expect(out.LastResponse).To(Equal(map[string]any{"correct": true}))
		Expect(grader.calls).To(HaveLen(1))
	})

	It("posts the payload identity, the current page url and the answer value", func() {
		_, err := run(planner.Answer{"answer": "blue", "note": "ignored"})
		Expect(err).NotTo(HaveOccurred())

		Expect(grader.calls[0].URL).To(Equal(submitURL))
		Expect(grader.calls[0].Body).To(Equal(model.Submission{
			Email:  "me@example.com",
			Secret: "s3cret",
			URL:    quizURL,
			Answer: "blue",
		}))
	})

	It("refines a rejected answer and resubmits to the same endpoint", func() {
		grader.submitFn = replies(
			`{"correct": false, "reason": "off by one"}`,
			`{"correct": true}`,
		)
		plan.planFn = func(context.Context, string) (planner.Answer, error) {
			return planner.Answer{"answer": 43}, nil
		}

		out, err := run(planner.Answer{"answer": 42})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonAccepted))
		Expect(out.Attempts).To(Equal(2))
		Expect(out.LastResponse).To(Equal(map[string]any{"correct": true}))
		Expect(out.Answer.Value()).To(Equal(43))

		Expect(grader.calls).To(HaveLen(2))
		Expect(grader.calls[1].URL).To(Equal(submitURL))
		Expect(grader.calls[1].Body.Answer).To(BeNumerically("==", 43))

		Expect(plan.prompts).To(HaveLen(1))
		Expect(plan.prompts[0]).To(ContainSubstring("(reason: off by one)"))
		Expect(plan.prompts[0]).To(ContainSubstring("question at " + quizURL))
	})

	It("follows a chain without resetting the attempt count", func() {
		const nextURL = "https://quiz.example.com/q/2"
		grader.submitFn = replies(
			`{"correct": true, "url": "`+nextURL+`"}`,
			`{"correct": true}`,
		)
		pages.loadFn = func(_ context.Context, jobID, url string) (*pipeline.Page, error) {
			Expect(jobID).To(Equal("job-1"))
			return quizPage(url, "https://quiz.example.com/submit/2"), nil
		}
		plan.planFn = func(context.Context, string) (planner.Answer, error) {
			return planner.Answer{"answer": "second"}, nil
		}

		out, err := run(planner.Answer{"answer": "first"})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonAccepted))
		Expect(out.Attempts).To(Equal(2))
		Expect(out.SourceURL).To(Equal(nextURL))
		Expect(out.Page.URL).To(Equal(nextURL))

		Expect(pages.loaded).To(Equal([]string{nextURL}))
		Expect(plan.prompts[0]).To(ContainSubstring("FOLLOW-UP quiz at " + nextURL))

		Expect(grader.calls[1].URL).To(Equal("https://quiz.example.com/submit/2"))
		Expect(grader.calls[1].Body.URL).To(Equal(nextURL))
		Expect(grader.calls[1].Body.Answer).To(Equal("second"))
	})

	It("exhausts the attempt budget across chained pages", func() {
		// each page needs four submissions before it chains onward
		perPage := map[string]int{}
		grader.submitFn = func(_ context.Context, url string, _ []byte) (*solver.GraderReply, error) {
			perPage[url]++
			if perPage[url] < 4 {
				return jsonReply(`{"correct": false}`), nil
			}
			n := len(perPage) + 1
			return jsonReply(fmt.Sprintf(`{"correct": true, "url": "https://quiz.example.com/q/%d"}`, n)), nil
		}
		pages.loadFn = func(_ context.Context, _ string, url string) (*pipeline.Page, error) {
			return quizPage(url, url+"/submit"), nil
		}

		out, err := run(planner.Answer{"answer": 0})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonAttemptsExhausted))
		Expect(out.LastResponse).To(Equal("stopped: reached 10 attempts"))
		Expect(out.Attempts).To(Equal(10))
		Expect(grader.calls).To(HaveLen(10))
		Expect(pages.loaded).To(HaveLen(2))
		Expect(perPage).To(HaveKeyWithValue("https://quiz.example.com/q/3/submit", 2))
	})

	It("ends the cycle on a transport error after one attempt", func() {
		grader.submitFn = func(context.Context, string, []byte) (*solver.GraderReply, error) {
			return nil, errors.New("dial tcp: connection refused")
		}

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonTransportError))
		Expect(out.Attempts).To(Equal(1))
		Expect(out.LastResponse).To(Equal("submission error: dial tcp: connection refused"))
	})

	It("never sends a body at or over the size limit", func() {
		out, err := run(planner.Answer{"answer": strings.Repeat("x", 1_000_000)})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonPayloadTooLarge))
		Expect(out.LastResponse).To(Equal("submission payload too large (>1MB)"))
		Expect(out.Attempts).To(BeZero())
		Expect(grader.calls).To(BeEmpty())
	})

	It("records a non-JSON reply verbatim", func() {
		grader.submitFn = func(context.Context, string, []byte) (*solver.GraderReply, error) {
			return &solver.GraderReply{StatusCode: 502, Raw: "<html>Bad Gateway</html>"}, nil
		}

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonMalformedResponse))
		Expect(out.LastResponse).To(Equal("<html>Bad Gateway</html>"))
		Expect(out.Attempts).To(Equal(1))
	})

	It("does not submit without a target", func() {
		first = quizPage(quizURL, "")

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonNoTarget))
		Expect(out.LastResponse).To(Equal("no submit_url provided; no submission attempted"))
		Expect(grader.calls).To(BeEmpty())
	})

	It("never submits once the window since the first attempt has passed", func() {
		grader.submitFn = func(context.Context, string, []byte) (*solver.GraderReply, error) {
			clock.Advance(100 * time.Second)
			return jsonReply(`{"correct": false}`), nil
		}

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonDurationExceeded))
		Expect(out.LastResponse).To(Equal("stopped: exceeded 180 seconds window"))
		Expect(out.Attempts).To(Equal(2))
	})

	It("measures the window from the first attempt, not from construction", func() {
		m := solver.NewSubmissionMachine(grader, pages, plan, planner.NewPromptBuilder(0), cfg, solver.WithNow(clock.Now))
		clock.Advance(time.Hour)

		out, err := m.Run(ctx, solver.CycleStart{JobID: "job-1", Payload: payload, Page: first, Answer: planner.Answer{"answer": 1}})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonAccepted))
	})

	DescribeTable("unclear verdicts end the cycle with the reply recorded",
		func(raw string) {
			grader.submitFn = replies(raw)

			out, err := run(planner.Answer{"answer": 1})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Reason).To(Equal(model.StopReasonVerdictUnclear))
			Expect(out.LastResponse).To(Equal(jsonReply(raw).Object))
			Expect(out.Attempts).To(Equal(1))
		},
		Entry("no flag", `{"message": "received"}`),
		Entry("string flag", `{"correct": "yes"}`),
		Entry("null flag", `{"correct": null}`),
	)

	It("ends the cycle when refinement planning fails", func() {
		grader.submitFn = replies(`{"correct": false, "reason": "wrong"}`)
		plan.planFn = func(context.Context, string) (planner.Answer, error) {
			return nil, planner.ErrNoAnswer
		}

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonRefinementFailed))
		Expect(out.LastResponse).To(HavePrefix("LLM failed during refinement: "))
		Expect(out.Answer.Value()).To(Equal(1))
		Expect(out.Attempts).To(Equal(1))
	})

	It("ends the cycle when follow-up planning fails", func() {
		grader.submitFn = replies(`{"correct": true, "url": "https://quiz.example.com/q/2"}`)
		plan.planFn = func(context.Context, string) (planner.Answer, error) {
			return nil, errors.New("rate limited")
		}

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonChainPlanFailed))
		Expect(out.LastResponse).To(Equal("LLM failed on follow-up: rate limited"))
		Expect(out.SourceURL).To(Equal("https://quiz.example.com/q/2"))
	})

	It("fails when a chained page cannot be loaded", func() {
		grader.submitFn = replies(`{"correct": true, "url": "https://quiz.example.com/q/2"}`)
		pages.loadFn = func(context.Context, string, string) (*pipeline.Page, error) {
			return nil, errors.New("render: timeout")
		}

		out, err := run(planner.Answer{"answer": 1})

		Expect(out).To(BeNil())
		Expect(err).To(MatchError(ContainSubstring("loading chained page https://quiz.example.com/q/2")))
	})

	It("stops a chained page that has no submit url", func() {
		grader.submitFn = replies(`{"correct": true, "url": "https://quiz.example.com/q/2"}`)

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonNoTarget))
		Expect(out.Attempts).To(Equal(1))
	})

	It("caps refinements per page when configured", func() {
		cfg.MaxRefinementsPerPage = 2
		grader.submitFn = replies(`{"correct": false}`)

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonRefinementLimit))
		Expect(out.Attempts).To(Equal(3))
		Expect(plan.prompts).To(HaveLen(2))
	})

	It("keeps refining until the attempt budget when uncapped", func() {
		grader.submitFn = replies(`{"correct": false, "reason": "nope"}`)

		out, err := run(planner.Answer{"answer": 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Reason).To(Equal(model.StopReasonAttemptsExhausted))
		Expect(grader.calls).To(HaveLen(10))
		Expect(plan.prompts).To(HaveLen(10))
	})
})
