// Package client is the HTTP client for the storycut control plane.
// The CLI talks to a running daemon exclusively through it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"storycut/internal/api"
	"storycut/internal/config"
	"storycut/internal/media"
	"storycut/internal/workflow"
)

// Client issues authenticated requests against one daemon instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient swaps the underlying transport, mostly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithBaseURL overrides the address derived from the config.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if strings.TrimSpace(base) != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// New derives the daemon address from the configured bind. A wildcard
// bind host is reached over loopback.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURLFromBind(cfg.Paths.APIBind),
		token:   cfg.Paths.APIToken,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func baseURLFromBind(bind string) string {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return "http://127.0.0.1:7130"
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// StatusError is a non-2xx response decoded from the error payload.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daemon returned %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the daemon.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb api.ErrorBody
		_ = json.Unmarshal(payload, &eb)
		if eb.Error == "" {
			eb.Error = strings.TrimSpace(string(payload))
		}
		return &StatusError{StatusCode: resp.StatusCode, Code: eb.Code, Message: eb.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RegisterMedia registers a source file and kicks off probing.
func (c *Client) RegisterMedia(ctx context.Context, req api.RegisterMediaRequest) (api.RegisterMediaResponse, error) {
	var out api.RegisterMediaResponse
	err := c.do(ctx, http.MethodPost, "/media", req, &out)
	return out, err
}

// GetMedia fetches one media record.
func (c *Client) GetMedia(ctx context.Context, id string) (api.MediaView, error) {
	var out api.MediaView
	err := c.do(ctx, http.MethodGet, "/media/"+id, nil, &out)
	return out, err
}

// DeleteMedia soft deletes a media record.
func (c *Client) DeleteMedia(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/media/"+id, nil, nil)
}

// Enrich enqueues enrichment jobs. An empty kind list means all kinds.
func (c *Client) Enrich(ctx context.Context, id string, kinds []string) (api.EnrichResponse, error) {
	var out api.EnrichResponse
	err := c.do(ctx, http.MethodPost, "/media/"+id+"/enrich", api.EnrichRequest{Kinds: kinds}, &out)
	return out, err
}

// Transcript fetches the stored transcript.
func (c *Client) Transcript(ctx context.Context, id string) (media.Transcript, error) {
	var out media.Transcript
	err := c.do(ctx, http.MethodGet, "/media/"+id+"/transcript", nil, &out)
	return out, err
}

// Scenes fetches the indexed scenes.
func (c *Client) Scenes(ctx context.Context, id string) (api.ScenesResponse, error) {
	var out api.ScenesResponse
	err := c.do(ctx, http.MethodGet, "/media/"+id+"/scenes", nil, &out)
	return out, err
}

// Candidates fetches the heuristic clip candidates.
func (c *Client) Candidates(ctx context.Context, id string) (api.CandidatesResponse, error) {
	var out api.CandidatesResponse
	err := c.do(ctx, http.MethodGet, "/media/"+id+"/candidates", nil, &out)
	return out, err
}

// Jobs fetches the media's job history.
func (c *Client) Jobs(ctx context.Context, id string) (api.JobListResponse, error) {
	var out api.JobListResponse
	err := c.do(ctx, http.MethodGet, "/media/"+id+"/jobs", nil, &out)
	return out, err
}

// HeuristicPlan builds a plan synchronously from a candidate or window.
func (c *Client) HeuristicPlan(ctx context.Context, id string, req api.HeuristicPlanRequest) (api.PlanView, error) {
	var out api.PlanView
	err := c.do(ctx, http.MethodPost, "/media/"+id+"/plans/heuristic", req, &out)
	return out, err
}

// StoryPlan enqueues an asynchronous story planning run.
func (c *Client) StoryPlan(ctx context.Context, id string, brief media.StoryBrief) (api.StoryPlanResponse, error) {
	var out api.StoryPlanResponse
	err := c.do(ctx, http.MethodPost, "/media/"+id+"/plans/story", brief, &out)
	return out, err
}

// GetPlan fetches one plan with its advisory output.
func (c *Client) GetPlan(ctx context.Context, planID string) (api.PlanView, error) {
	var out api.PlanView
	err := c.do(ctx, http.MethodGet, "/plans/"+planID, nil, &out)
	return out, err
}

// Render enqueues a plan apply across aspect ratios.
func (c *Client) Render(ctx context.Context, planID string, req api.RenderRequest) (api.RenderAccepted, error) {
	var out api.RenderAccepted
	err := c.do(ctx, http.MethodPost, "/plans/"+planID+"/render", req, &out)
	return out, err
}

// GetRender fetches one render record.
func (c *Client) GetRender(ctx context.Context, renderID string) (api.RenderView, error) {
	var out api.RenderView
	err := c.do(ctx, http.MethodGet, "/renders/"+renderID, nil, &out)
	return out, err
}

// CancelJob cancels a queued job or flags a running one.
func (c *Client) CancelJob(ctx context.Context, jobID string) (api.JobView, error) {
	var out api.JobView
	err := c.do(ctx, http.MethodPost, "/jobs/"+jobID+"/cancel", nil, &out)
	return out, err
}

// Status fetches the daemon's supervisor snapshot.
func (c *Client) Status(ctx context.Context) (workflow.Status, error) {
	var out workflow.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}
