// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/maflow/orchestrator/pkg/httpclient"
	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/taskcreation"
)

// Client is the dashboard's REST surface as the coordinator consumes it.
// pkg/taskcreation depends on the narrower taskcreation.Dashboard subset
// of this interface for bulk task creation.
type Client interface {
	taskcreation.Dashboard

	GetProject(ctx context.Context, projectID string) (*Project, error)
	GetStatus(ctx context.Context, projectID string) (*Status, error)
	GetStatusSummary(ctx context.Context, projectID string) (*StatusSummary, error)
	GetNextAction(ctx context.Context, projectID string) (*NextAction, error)
	ListTasks(ctx context.Context, projectID string) ([]Task, error)
	BulkCreateTasks(ctx context.Context, projectID string, reqs []taskcreation.CreateTaskRequest) ([]BulkCreateResult, error)
	PatchTask(ctx context.Context, projectID, taskID string, patch TaskPatch) (*Task, error)
	ListMilestones(ctx context.Context, projectID string) ([]Milestone, error)
	CreateMilestone(ctx context.Context, projectID string, req CreateMilestoneRequest) (*Milestone, error)
	UploadContext(ctx context.Context, endpoint string, upload ContextUpload) error
}

// HTTPClient is the production Client implementation: an httpclient-built
// *http.Client wrapped in a gobreaker circuit breaker that opens after
// BreakerFailureThreshold consecutive failures and surfaces
// *maerrors.ExternalError while open.
type HTTPClient struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

// NewHTTPClient builds an HTTPClient from cfg.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &maerrors.ConfigError{Key: "dashboard", Reason: err.Error()}
	}

	httpClient, err := httpclient.New(cfg.HTTPClient)
	if err != nil {
		return nil, &maerrors.ConfigError{Key: "dashboard.http_client", Reason: err.Error()}
	}

	logger := slog.Default()
	return &HTTPClient{cfg: cfg, http: httpClient, breaker: newBreaker(cfg, logger), log: logger}, nil
}

// newBreaker builds the gobreaker.CircuitBreaker for cfg: opens after
// BreakerFailureThreshold consecutive failures, logging every state
// transition.
func newBreaker(cfg Config, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("dashboard circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// do executes an HTTP request through the circuit breaker, decoding a
// successful JSON response into out (if non-nil). A non-2xx response or
// transport failure counts against the breaker and returns an
// *maerrors.ExternalError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doOnce(ctx, method, path, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return &maerrors.ExternalError{Service: "dashboard", Message: "circuit breaker open", Cause: err}
		}
		return err
	}
	if out == nil {
		return nil
	}
	respBody := result.([]byte)
	if len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &maerrors.ExternalError{Service: "dashboard", Message: "malformed response body", Cause: err}
	}
	return nil
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	u := path
	if !isAbsoluteURL(path) {
		u = c.cfg.BaseURL + path
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &maerrors.ValidationError{Field: "body", Message: err.Error()}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, &maerrors.ExternalError{Service: "dashboard", Message: "invalid request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &maerrors.ExternalError{Service: "dashboard", Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &maerrors.ExternalError{Service: "dashboard", StatusCode: resp.StatusCode, Message: "failed reading response body", Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &maerrors.ExternalError{Service: "dashboard", StatusCode: resp.StatusCode, Message: "non-2xx response"}
	}

	return respBody, nil
}

func (c *HTTPClient) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, projectID string) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetStatusSummary(ctx context.Context, projectID string) (*StatusSummary, error) {
	var out StatusSummary
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/status/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetNextAction(ctx context.Context, projectID string) (*NextAction, error) {
	var out NextAction
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/next-action", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	var out []Task
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTask satisfies taskcreation.Dashboard: a single idempotent task
// creation keyed on req.ExternalID.
func (c *HTTPClient) CreateTask(ctx context.Context, projectID string, req taskcreation.CreateTaskRequest) (string, error) {
	var out Task
	path := "/projects/" + url.PathEscape(projectID) + "/tasks"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) BulkCreateTasks(ctx context.Context, projectID string, reqs []taskcreation.CreateTaskRequest) ([]BulkCreateResult, error) {
	var out []BulkCreateResult
	path := "/projects/" + url.PathEscape(projectID) + "/tasks:bulk"
	if err := c.do(ctx, http.MethodPost, path, map[string]interface{}{"tasks": reqs}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) PatchTask(ctx context.Context, projectID, taskID string, patch TaskPatch) (*Task, error) {
	var out Task
	path := fmt.Sprintf("/projects/%s/tasks/%s", url.PathEscape(projectID), url.PathEscape(taskID))
	if err := c.do(ctx, http.MethodPatch, path, patch, &out); err != nil {
		if isConflict(err) {
			return nil, &maerrors.IntegrityError{Resource: "task", ID: taskID, Reason: "optimistic lock conflict"}
		}
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListMilestones(ctx context.Context, projectID string) ([]Milestone, error) {
	var out []Milestone
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/milestones", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateMilestone(ctx context.Context, projectID string, req CreateMilestoneRequest) (*Milestone, error) {
	var out Milestone
	path := "/projects/" + url.PathEscape(projectID) + "/milestones"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UploadContext(ctx context.Context, endpoint string, upload ContextUpload) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doOnce(ctx, http.MethodPost, endpoint, upload)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return &maerrors.ExternalError{Service: "dashboard", Message: "circuit breaker open", Cause: err}
		}
		return err
	}
	return nil
}

// isAbsoluteURL reports whether path is already a fully-qualified URL, as
// the context-scan upload endpoint may be hosted separately from the
// rest of the dashboard's BaseURL.
func isAbsoluteURL(path string) bool {
	u, err := url.Parse(path)
	return err == nil && u.IsAbs()
}

// isConflict reports whether err represents an HTTP 409 from the
// dashboard (an optimistic lock_version mismatch on PATCH).
func isConflict(err error) bool {
	ext, ok := err.(*maerrors.ExternalError)
	return ok && ext.StatusCode == http.StatusConflict
}
