// Package gitlab pushes time to GitLab issues and merge requests through the
// add_spent_time API.
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/model"
)

const Name = "gitlab"

// DefaultAPIRoot is used when no api_root is configured.
const DefaultAPIRoot = "https://gitlab.com/api/v4/"

type Config struct {
	APIRoot string
	APIKey  string
}

type Backend struct {
	cfg        Config
	client     *backend.Client
	dispatcher backend.Dispatcher
}

// New returns a GitLab backend.
func New(cfg Config, deps backend.Deps) *Backend {
	if cfg.APIRoot == "" {
		cfg.APIRoot = DefaultAPIRoot
	}
	return &Backend{
		cfg:        cfg,
		client:     backend.NewTokenClient(deps, cfg.APIKey, ""),
		dispatcher: backend.NewDispatcher(Name, deps),
	}
}

// Factory binds cfg for registration.
func Factory(cfg Config) backend.Factory {
	return func(deps backend.Deps) (backend.Backend, error) {
		return New(cfg, deps), nil
	}
}

func (b *Backend) Name() string    { return Name }
func (b *Backend) Types() []string { return []string{Name} }

func (b *Backend) Sync(ctx context.Context, aggregated, ledger model.AggregatedTime, _ model.Period) (model.AggregatedTime, error) {
	if b.cfg.APIKey == "" {
		return model.AggregatedTime{}, &backend.ConfigurationError{Backend: Name, Setting: "gitlab.api_key"}
	}
	return b.dispatcher.Dispatch(ctx, aggregated, ledger, backend.OwnsTypes(b), b.push)
}

func (b *Backend) push(ctx context.Context, key model.TaskKey, _, delta int) error {
	kind, number, err := splitTaskID(key.TaskID)
	if err != nil {
		return err
	}
	endpoint := backend.JoinURL(b.cfg.APIRoot, fmt.Sprintf("projects/%s/%s/%s/add_spent_time?duration=%dm",
		url.PathEscape(key.Project), kind, number, delta))
	code, err := b.client.Do(ctx, http.MethodPost, endpoint, nil, nil)
	return backend.Expect(code, err, http.StatusCreated)
}

// splitTaskID maps "#5" to issues and "!5" to merge requests. A bare number
// is an issue.
func splitTaskID(taskID string) (kind, number string, err error) {
	kind = "issues"
	switch {
	case strings.HasPrefix(taskID, "#"):
		taskID = taskID[1:]
	case strings.HasPrefix(taskID, "!"):
		kind, taskID = "merge_requests", taskID[1:]
	}
	if taskID == "" || strings.Trim(taskID, "0123456789") != "" {
		return "", "", fmt.Errorf("invalid GitLab task id %q", taskID)
	}
	return kind, taskID, nil
}

func (b *Backend) FormattedTaskID(e model.Entry) (string, bool) {
	kind, number, err := splitTaskID(e.TaskID)
	if err != nil {
		return "", false
	}
	if kind == "merge_requests" {
		return "!" + number, true
	}
	return "#" + number, true
}

func (b *Backend) TaskLink(e model.Entry) (string, bool) {
	kind, number, err := splitTaskID(e.TaskID)
	if err != nil || e.Project == "" {
		return "", false
	}
	return fmt.Sprintf("%s/%s/-/%s/%s", webRoot(b.cfg.APIRoot), e.Project, kind, number), true
}

func (b *Backend) TaskDescription(ctx context.Context, e model.Entry) (string, bool) {
	if b.cfg.APIKey == "" {
		return "", false
	}
	kind, number, err := splitTaskID(e.TaskID)
	if err != nil || e.Project == "" {
		return "", false
	}
	var task struct {
		Title string `json:"title"`
	}
	endpoint := backend.JoinURL(b.cfg.APIRoot, fmt.Sprintf("projects/%s/%s/%s", url.PathEscape(e.Project), kind, number))
	if _, err := b.client.Do(ctx, http.MethodGet, endpoint, nil, &task); err != nil || task.Title == "" {
		return "", false
	}
	return task.Title, true
}

// webRoot strips the API path from apiRoot: https://gitlab.com/api/v4/ ->
// https://gitlab.com.
func webRoot(apiRoot string) string {
	if i := strings.Index(apiRoot, "/api/"); i >= 0 {
		return apiRoot[:i]
	}
	return strings.TrimRight(apiRoot, "/")
}
