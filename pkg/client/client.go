package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortezalberto/coderunner1/internal/models"
)

// Client is a Go SDK for the coderunner grading API
type Client struct {
	baseURL    string
	pathPrefix string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithAPIKey sets the bearer token sent on every request
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithPathPrefix overrides the "/api" prefix used by the grading backend
func WithPathPrefix(prefix string) Option {
	return func(c *Client) {
		c.pathPrefix = "/" + strings.Trim(prefix, "/")
		if c.pathPrefix == "/" {
			c.pathPrefix = ""
		}
	}
}

// NewClient creates a new grading API client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pathPrefix: "/api",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListSubjects retrieves all subjects in server order
func (c *Client) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/subjects", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Subjects []models.Subject `json:"subjects"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subjects: %w", err)
	}

	return result.Subjects, nil
}

// ListUnits retrieves the units of a subject in server order
func (c *Client) ListUnits(ctx context.Context, subjectID string) ([]models.Unit, error) {
	path := fmt.Sprintf("/subjects/%s/units", url.PathEscape(subjectID))
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Units []models.Unit `json:"units"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal units: %w", err)
	}

	return result.Units, nil
}

// ListProblems retrieves the problems of a unit.
// The server returns a mapping; its document order is preserved.
func (c *Client) ListProblems(ctx context.Context, subjectID, unitID string) (*models.ProblemSet, error) {
	path := fmt.Sprintf("/subjects/%s/units/%s/problems", url.PathEscape(subjectID), url.PathEscape(unitID))
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Problems json.RawMessage `json:"problems"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal problems: %w", err)
	}

	set, err := decodeProblemSet(result.Problems)
	if err != nil {
		return nil, fmt.Errorf("failed to decode problems: %w", err)
	}
	return set, nil
}

// Submit creates a grading job for the given code
func (c *Client) Submit(ctx context.Context, req models.SubmitRequest) (*models.SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/submit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result models.SubmitResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submit response: %w", err)
	}
	if result.JobID == "" {
		return nil, errors.New("submit response has no job_id")
	}

	return &result, nil
}

// GetResult retrieves the current result of a job. Status may be non-terminal.
func (c *Client) GetResult(ctx context.Context, jobID string) (*models.SubmissionResult, error) {
	path := fmt.Sprintf("/result/%s", url.PathEscape(jobID))
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result models.SubmissionResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	if result.JobID == "" {
		result.JobID = jobID
	}

	return &result, nil
}

// Health checks if the grading API is reachable
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	target := c.baseURL + c.pathPrefix + path

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// decodeProblemSet walks the problems mapping token by token so that the
// resulting set keeps the server's key order. Arrays are accepted too.
func decodeProblemSet(raw json.RawMessage) (*models.ProblemSet, error) {
	set := models.NewProblemSet()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return set, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected key token %v", keyTok)
			}
			var p models.Problem
			if err := dec.Decode(&p); err != nil {
				return nil, fmt.Errorf("problem %q: %w", key, err)
			}
			if p.ID == "" {
				p.ID = key
			}
			set.Add(&p)
		}
	case json.Delim('['):
		for dec.More() {
			var p models.Problem
			if err := dec.Decode(&p); err != nil {
				return nil, err
			}
			set.Add(&p)
		}
	default:
		return nil, fmt.Errorf("unexpected problems token %v", tok)
	}

	return set, nil
}
