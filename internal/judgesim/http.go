package judgesim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/gavel/internal/domain/types"
)

// Errors returned by Client.
var (
	ErrNoEligible   = errors.New("no eligible submission")
	ErrBackpressure = errors.New("service backpressure")
)

// StatusError is a non-2xx reply the client has no sentinel for.
type StatusError struct {
	Status int
	Code   string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d (%s): %s", e.Status, e.Code, e.Body)
}

// Client talks to the gavel HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

// PutSubmission stores a submission.
func (c *Client) PutSubmission(ctx context.Context, id int64, s types.Submission) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/submissions/%d", id), nil, s, nil)
}

// PutJudge stores a judge.
func (c *Client) PutJudge(ctx context.Context, id int64, j types.Judge) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/judges/%d", id), nil, j, nil)
}

// Next asks for the judge's next assignment under an idempotency key.
func (c *Client) Next(ctx context.Context, judgeID int64, key string) (types.AssignResponse, error) {
	var out types.AssignResponse
	h := map[string]string{"Idempotency-Key": key}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/judges/%d/assignments/next", judgeID), h, nil, &out)
	return out, err
}

// Rate completes an assignment.
func (c *Client) Rate(ctx context.Context, assignmentID int64, r types.Rating) (types.Assignment, error) {
	var out types.Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/assignments/%d/rating", assignmentID), nil, r, &out)
	return out, err
}

// Assignments lists a judge's assignments.
func (c *Client) Assignments(ctx context.Context, judgeID int64) ([]types.Assignment, error) {
	var out []types.Assignment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/judges/%d/assignments", judgeID), nil, nil, &out)
	return out, err
}

// Coverage fetches per-submission rating counts.
func (c *Client) Coverage(ctx context.Context) ([]types.Coverage, error) {
	var out []types.Coverage
	err := c.do(ctx, http.MethodGet, "/coverage", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &e)
		switch e.Code {
		case "no_eligible_submission":
			return ErrNoEligible
		case "backpressure":
			return ErrBackpressure
		}
		return &StatusError{Status: resp.StatusCode, Code: e.Code, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
