package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxReplyBytes = 1 << 20

// Grader posts a submission body to a grading endpoint.
type Grader interface {
	Submit(ctx context.Context, url string, body []byte) (*GraderReply, error)
}

// GraderReply is what came back from the grading endpoint. Object is set
// only when the body decoded to a JSON object.
type GraderReply struct {
	StatusCode int
	Raw        string
	Object     map[string]any
}

// Verdict reads the "correct" flag. ok is false when the flag is missing
// or not a boolean.
func (r *GraderReply) Verdict() (correct bool, ok bool) {
	if r == nil || r.Object == nil {
		return false, false
	}
	correct, ok = r.Object["correct"].(bool)
	return correct, ok
}

// NextURL returns the follow-up quiz URL, if the grader supplied one.
func (r *GraderReply) NextURL() string {
	if r == nil || r.Object == nil {
		return ""
	}
	next, _ := r.Object["url"].(string)
	return next
}

func (r *GraderReply) Reason() any {
	if r == nil || r.Object == nil {
		return nil
	}
	return r.Object["reason"]
}

type HTTPGrader struct {
	client  *http.Client
	timeout time.Duration
}

func NewHTTPGrader(client *http.Client, timeout time.Duration) *HTTPGrader {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 40 * time.Second
	}
	return &HTTPGrader{client: client, timeout: timeout}
}

// Submit returns an error only for transport failures. Any HTTP status is
// a reply; the caller decides what the body means.
func (g *HTTPGrader) Submit(ctx context.Context, url string, body []byte) (*GraderReply, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}

	reply := &GraderReply{StatusCode: resp.StatusCode, Raw: string(raw)}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		reply.Object = obj
	}

	slog.DebugContext(ctx, "grader replied",
		"status_code", resp.StatusCode,
		"reply_bytes", len(raw),
		"json", reply.Object != nil)

	return reply, nil
}
