package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("api: not found")

// StatusError is a non-2xx response from the daemon.
type StatusError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("api: http %d: %s", e.StatusCode, e.Message)
}

// Is maps 404 responses to ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the reelsightd HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a client for baseURL. A bare host:port gets an http
// scheme. The token is sent as a bearer credential when set.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		// No overall timeout: event streams stay open for the job lifetime.
		http: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads the file at path and starts a job.
func (c *Client) Submit(ctx context.Context, path, owner string) (SubmitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()
	return c.SubmitReader(ctx, filepath.Base(path), f, owner)
}

// SubmitReader streams r as the media part of a job submission.
func (c *Client) SubmitReader(ctx context.Context, filename string, r io.Reader, owner string) (SubmitResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if owner = strings.TrimSpace(owner); owner != "" {
				if err := mw.WriteField("owner", owner); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("media", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, r); err != nil {
				return err
			}
			return mw.Close()
		}()
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/jobs", nil, pr)
	if err != nil {
		_ = pr.Close()
		return SubmitResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var resp SubmitResponse
	err = c.do(req, &resp)
	return resp, err
}

// Status fetches the current snapshot of id.
func (c *Client) Status(ctx context.Context, id string) (Job, error) {
	var out Job
	err := c.call(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Cancel requests cancellation of id.
func (c *Client) Cancel(ctx context.Context, id string) (Job, error) {
	var out Job
	err := c.call(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &out)
	return out, err
}

// Resume starts a new job from fromStage of id. An empty stage resumes a
// failed job at its failed stage.
func (c *Client) Resume(ctx context.Context, id, fromStage string) (SubmitResponse, error) {
	body, err := json.Marshal(ResumeRequest{FromStage: strings.TrimSpace(fromStage)})
	if err != nil {
		return SubmitResponse{}, err
	}
	var out SubmitResponse
	err = c.call(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(id)+"/resume", nil, bytes.NewReader(body), &out)
	return out, err
}

// Result fetches the stored result document of id.
func (c *Client) Result(ctx context.Context, id string) (Result, error) {
	var out json.RawMessage
	err := c.call(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id)+"/result", nil, nil, &out)
	return out, err
}

// History lists recorded jobs newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	params := url.Values{}
	if q.Owner != "" {
		params.Set("owner", q.Owner)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var out HistoryResponse
	err := c.call(ctx, http.MethodGet, "/v1/history", params, nil, &out)
	return out.Entries, err
}

// Usage reports stored results for owner.
func (c *Client) Usage(ctx context.Context, owner string) (UsageResponse, error) {
	params := url.Values{}
	params.Set("owner", owner)
	var out UsageResponse
	err := c.call(ctx, http.MethodGet, "/v1/usage", params, nil, &out)
	return out, err
}

// Health fetches dependency health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.call(ctx, http.MethodGet, "/v1/health", nil, nil, &out)
	return out, err
}

// Watch follows the event stream of id, calling fn for each event until a
// terminal event arrives, fn returns an error, or ctx ends.
func (c *Client) Watch(ctx context.Context, id string, fn func(Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id)+"/events", nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("watch %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var evt Event
			if err := json.Unmarshal([]byte(data.String()), &evt); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			data.Reset()
			if err := fn(evt); err != nil {
				return err
			}
			if evt.Terminal() {
				return nil
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read events: %w", err)
	}
	return ctx.Err()
}

// WaitTerminal polls Status until the job is terminal.
func (c *Client) WaitTerminal(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		j, err := c.Status(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if j.Terminal() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return j, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) call(ctx context.Context, method, path string, params url.Values, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, method, path, params, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, errors.New("api: base url not configured")
	}
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var payload ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		statusErr.Message = payload.Error
		statusErr.Code = payload.Code
	} else {
		statusErr.Message = strings.TrimSpace(string(body))
	}
	return statusErr
}
