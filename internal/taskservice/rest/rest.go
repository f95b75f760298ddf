// Package rest is the REST client of the testcenter admin validation task API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/taskservice"
)

// ServiceConfig configures the HTTP task service client.
type ServiceConfig struct {
	// BaseURL is the API base URL (e.g. "https://testcenter.example.org/api").
	BaseURL string
	// Token is the optional bearer token used on every request.
	Token string
	// HTTPClient is the HTTP client for API requests.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "taskservice.REST"})
	return nil
}

// Service is the REST implementation of taskservice.Service.
type Service struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     log.Logger
}

var _ taskservice.Service = &Service{}

// NewService creates a new HTTP task service client.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

// --- JSON wire types ---

type taskJSON struct {
	ID             int64     `json:"id"`
	WorkspaceID    int64     `json:"workspaceId"`
	ValidationType string    `json:"validationType"`
	Status         string    `json:"status"`
	Progress       *int      `json:"progress,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (t taskJSON) toModel() *model.Task {
	return &model.Task{
		ID:             t.ID,
		WorkspaceID:    t.WorkspaceID,
		ValidationType: model.ValidationType(t.ValidationType),
		Status:         model.TaskStatus(t.Status),
		Progress:       t.Progress,
		Error:          t.Error,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// CreateTask creates a validation task. Paging and additional data are sent as query parameters.
func (s *Service) CreateTask(ctx context.Context, workspaceID int64, vt model.ValidationType, opts model.TaskOptions) (*model.Task, error) {
	q := url.Values{}
	q.Set("type", string(vt))
	if opts.Page != nil {
		q.Set("page", strconv.Itoa(*opts.Page))
	}
	if opts.Limit != nil {
		q.Set("limit", strconv.Itoa(*opts.Limit))
	}
	// Options set above win over additional data with the same key.
	for k, v := range taskservice.FlattenAdditionalData(opts.AdditionalData) {
		if _, ok := q[k]; ok {
			continue
		}
		q.Set(k, v)
	}

	return s.createTask(ctx, s.tasksURL(workspaceID, "", q))
}

// GetTask returns the current state of a task.
func (s *Service) GetTask(ctx context.Context, workspaceID, taskID int64) (*model.Task, error) {
	body, err := s.do(ctx, http.MethodGet, s.tasksURL(workspaceID, strconv.FormatInt(taskID, 10), nil))
	if err != nil {
		return nil, err
	}

	var t taskJSON
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}

	return t.toModel(), nil
}

// GetTaskResults returns the raw results of a completed task.
func (s *Service) GetTaskResults(ctx context.Context, workspaceID, taskID int64) (model.RawResult, error) {
	body, err := s.do(ctx, http.MethodGet, s.tasksURL(workspaceID, strconv.FormatInt(taskID, 10)+"/results", nil))
	if err != nil {
		return nil, err
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("results are not valid JSON: %w", model.ErrNotValid)
	}

	return model.RawResult(body), nil
}

// CreateDeleteResponsesTask creates a task that deletes the given responses.
func (s *Service) CreateDeleteResponsesTask(ctx context.Context, workspaceID int64, responseIDs []int64) (*model.Task, error) {
	q := url.Values{}
	q.Set("responseIds", taskservice.FlattenAdditionalData(map[string]any{"ids": responseIDs})["ids"])

	return s.createTask(ctx, s.tasksURL(workspaceID, "delete-responses", q))
}

// CreateDeleteAllResponsesTask creates a task that deletes every response flagged by a validation.
func (s *Service) CreateDeleteAllResponsesTask(ctx context.Context, workspaceID int64, vt model.ValidationType) (*model.Task, error) {
	q := url.Values{}
	q.Set("validationType", string(vt))

	return s.createTask(ctx, s.tasksURL(workspaceID, "delete-all-responses", q))
}

func (s *Service) createTask(ctx context.Context, u string) (*model.Task, error) {
	body, err := s.do(ctx, http.MethodPost, u)
	if err != nil {
		return nil, err
	}

	var t taskJSON
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	if t.Status == "" {
		t.Status = string(model.TaskStatusPending)
	}

	s.logger.Debugf("Created %s task %d on workspace %d", t.ValidationType, t.ID, t.WorkspaceID)
	return t.toModel(), nil
}

func (s *Service) tasksURL(workspaceID int64, path string, q url.Values) string {
	u := fmt.Sprintf("%s/admin/workspace/%d/validation-tasks", s.baseURL, workspaceID)
	if path != "" {
		u += "/" + path
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (s *Service) do(ctx context.Context, method, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("HTTP %d from %s: %w", resp.StatusCode, u, model.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, u, apiErrorMessage(body))
	}

	return body, nil
}

// maxErrorBodyRunes limits the raw body used as error message.
const maxErrorBodyRunes = 200

// apiErrorMessage extracts the message of an API error body.
func apiErrorMessage(body []byte) string {
	var e struct {
		Message any `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != nil {
		if msgs, ok := e.Message.([]any); ok {
			parts := make([]string, 0, len(msgs))
			for _, m := range msgs {
				parts = append(parts, fmt.Sprint(m))
			}
			return strings.Join(parts, ", ")
		}
		return fmt.Sprint(e.Message)
	}

	msg := []rune(strings.TrimSpace(string(body)))
	if len(msg) > maxErrorBodyRunes {
		msg = msg[:maxErrorBodyRunes]
	}
	return string(msg)
}
