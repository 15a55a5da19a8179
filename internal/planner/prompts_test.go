package planner_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/planner"
)

var _ = Describe("PromptBuilder", func() {
	resources := map[string]model.ExtractedText{
		"res_0": {Kind: model.ResourceKindCSV, Text: "a,b\n1,2"},
	}

	It("defaults the resource cap", func() {
		Expect(planner.NewPromptBuilder(0).MaxResourceChars).To(Equal(planner.DefaultResourceChars))
	})

	It("serializes resources as JSON without HTML escaping", func() {
		b := planner.NewPromptBuilder(1000)

		out := b.Resources(map[string]model.ExtractedText{
			"res_0": {Kind: model.ResourceKindText, Text: "<b>x</b>"},
		})

		Expect(out).To(Equal(`{"res_0":{"type":"text","text":"<b>x</b>"}}`))
	})

	It("cuts the resource bundle to the cap", func() {
		b := planner.NewPromptBuilder(20)

		out := b.Resources(map[string]model.ExtractedText{
			"res_0": {Kind: model.ResourceKindText, Text: strings.Repeat("é", 100)},
		})

		Expect([]rune(out)).To(HaveLen(20))
	})

	It("renders an empty bundle for no resources", func() {
		Expect(planner.NewPromptBuilder(0).Resources(nil)).To(Equal("{}"))
	})

	It("builds the initial prompt", func() {
		out := planner.NewPromptBuilder(0).Initial("Sum column b.", resources)

		Expect(out).To(ContainSubstring("QUESTION:\nSum column b.\n"))
		Expect(out).To(ContainSubstring("RESOURCES (truncated):\n{\"res_0\""))
		Expect(out).To(HaveSuffix("Return only valid JSON now.\n"))
	})

	It("names the page in a follow-up prompt", func() {
		out := planner.NewPromptBuilder(0).FollowUp("https://quiz.example.com/q/2", "Next one.", resources)

		Expect(out).To(ContainSubstring("FOLLOW-UP quiz at https://quiz.example.com/q/2"))
		Expect(out).To(ContainSubstring("QUESTION:\nNext one.\n"))
	})

	DescribeTable("refinement prompt reason",
		func(reason any, expected string) {
			out := planner.NewPromptBuilder(0).Refinement(reason, "q", nil)
			Expect(out).To(HavePrefix("The grader rejected the previous answer for this quiz (reason: " + expected + ")."))
		},
		Entry("string", "Wrong sum", "Wrong sum"),
		Entry("missing", nil, "none given"),
		Entry("empty", "", "none given"),
		Entry("structured", map[string]any{"code": 3}, `{"code":3}`),
	)
})
