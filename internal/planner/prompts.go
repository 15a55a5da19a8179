package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"basegraph.app/quizsolver/internal/model"
)

const (
	SystemPrompt = "You are a data analysis assistant. Output only JSON. " +
		`The JSON object must carry the value to submit under an "answer" field.`

	DefaultResourceChars = 15000
)

// PromptBuilder renders planner prompts. The serialized resource bundle is
// cut to MaxResourceChars so prompt size stays bounded however much a page
// links to.
type PromptBuilder struct {
	MaxResourceChars int
}

func NewPromptBuilder(maxResourceChars int) PromptBuilder {
	if maxResourceChars <= 0 {
		maxResourceChars = DefaultResourceChars
	}
	return PromptBuilder{MaxResourceChars: maxResourceChars}
}

func (b PromptBuilder) Initial(question string, resources map[string]model.ExtractedText) string {
	var sb strings.Builder
	sb.WriteString("You are an expert data analysis assistant. You will be given a quiz question and extracted resource contents (PDF/CSV/text).\n")
	sb.WriteString("Task: Understand the question, perform any necessary data processing, and RETURN ONLY a single JSON object appropriate for submission.\n\n")
	sb.WriteString("Important:\n")
	sb.WriteString("- Use only the provided extracted resources (do NOT invent data).\n")
	sb.WriteString("- If the answer is numeric, compute carefully and double-check your math.\n")
	sb.WriteString("- Match the JSON structure required by the quiz instructions if shown on the page.\n")
	sb.WriteString(`- Output must be valid JSON with the main answer under the "answer" field, e.g. {"answer": ...}.` + "\n")
	sb.WriteString("- Do not include any extra text.\n\n")
	fmt.Fprintf(&sb, "QUESTION:\n%s\n\n", question)
	fmt.Fprintf(&sb, "RESOURCES (truncated):\n%s\n\n", b.Resources(resources))
	sb.WriteString("Return only valid JSON now.\n")
	return sb.String()
}

func (b PromptBuilder) FollowUp(url, question string, resources map[string]model.ExtractedText) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an expert data analysis assistant. This is a FOLLOW-UP quiz at %s.\n", url)
	sb.WriteString("Use the question and the extracted resources below and return only a JSON object appropriate for submission.\n\n")
	fmt.Fprintf(&sb, "QUESTION:\n%s\n\n", question)
	fmt.Fprintf(&sb, "RESOURCES:\n%s\n", b.Resources(resources))
	return sb.String()
}

func (b PromptBuilder) Refinement(reason any, question string, resources map[string]model.ExtractedText) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The grader rejected the previous answer for this quiz (reason: %s).\n", describeReason(reason))
	sb.WriteString("Please re-compute the correct answer for the following quiz and return only JSON appropriate for submission.\n\n")
	fmt.Fprintf(&sb, "QUESTION:\n%s\n\n", question)
	fmt.Fprintf(&sb, "RESOURCES:\n%s\n\n", b.Resources(resources))
	sb.WriteString("Return only JSON.\n")
	return sb.String()
}

// Resources serializes the extracted texts as JSON, cut to the size cap.
func (b PromptBuilder) Resources(resources map[string]model.ExtractedText) string {
	if resources == nil {
		resources = map[string]model.ExtractedText{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resources); err != nil {
		return "{}"
	}
	return truncateRunes(strings.TrimSuffix(buf.String(), "\n"), b.MaxResourceChars)
}

func describeReason(reason any) string {
	switch r := reason.(type) {
	case nil:
		return "none given"
	case string:
		if r == "" {
			return "none given"
		}
		return r
	default:
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprint(r)
		}
		return string(raw)
	}
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
