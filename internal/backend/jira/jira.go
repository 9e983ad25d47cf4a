// Package jira logs work on Jira issues.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/model"
)

const Name = "jira"

type Config struct {
	Root    string
	APIUser string
	APIKey  string
}

type Backend struct {
	cfg        Config
	client     *backend.Client
	dispatcher backend.Dispatcher
}

func New(cfg Config, deps backend.Deps) *Backend {
	cfg.Root = strings.TrimRight(cfg.Root, "/")
	return &Backend{
		cfg:        cfg,
		client:     backend.NewBasicClient(deps, cfg.APIUser, cfg.APIKey),
		dispatcher: backend.NewDispatcher(Name, deps),
	}
}

func Factory(cfg Config) backend.Factory {
	return func(deps backend.Deps) (backend.Backend, error) {
		return New(cfg, deps), nil
	}
}

func (b *Backend) Name() string    { return Name }
func (b *Backend) Types() []string { return []string{Name} }

func (b *Backend) configured() error {
	switch {
	case b.cfg.Root == "":
		return &backend.ConfigurationError{Backend: Name, Setting: "jira.root"}
	case b.cfg.APIUser == "":
		return &backend.ConfigurationError{Backend: Name, Setting: "jira.api_user"}
	case b.cfg.APIKey == "":
		return &backend.ConfigurationError{Backend: Name, Setting: "jira.api_key"}
	}
	return nil
}

func (b *Backend) Sync(ctx context.Context, aggregated, ledger model.AggregatedTime, _ model.Period) (model.AggregatedTime, error) {
	if err := b.configured(); err != nil {
		return model.AggregatedTime{}, err
	}
	return b.dispatcher.Dispatch(ctx, aggregated, ledger, backend.OwnsTypes(b), b.push)
}

type worklog struct {
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
	Comment          string `json:"comment,omitempty"`
}

func (b *Backend) push(ctx context.Context, key model.TaskKey, _, delta int) error {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s/worklog", b.cfg.Root, issueKey(key.Project, key.TaskID))
	code, err := b.client.Do(ctx, http.MethodPost, endpoint, worklog{
		TimeSpentSeconds: delta * 60,
		Comment:          "Logged by tracktime",
	}, nil)
	return backend.Expect(code, err, http.StatusCreated)
}

// issueKey joins project and task id into PROJ-12. A task id that already
// carries the project key is used as is.
func issueKey(project, taskID string) string {
	taskID = strings.TrimLeft(taskID, "-#")
	if project == "" || strings.HasPrefix(taskID, project+"-") {
		return taskID
	}
	return project + "-" + taskID
}

func (b *Backend) FormattedTaskID(e model.Entry) (string, bool) {
	return issueKey(e.Project, e.TaskID), true
}

func (b *Backend) TaskLink(e model.Entry) (string, bool) {
	if b.cfg.Root == "" {
		return "", false
	}
	return b.cfg.Root + "/browse/" + issueKey(e.Project, e.TaskID), true
}

func (b *Backend) TaskDescription(ctx context.Context, e model.Entry) (string, bool) {
	if b.configured() != nil {
		return "", false
	}
	var issue struct {
		Fields struct {
			Summary string `json:"summary"`
		} `json:"fields"`
	}
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary", b.cfg.Root, issueKey(e.Project, e.TaskID))
	if _, err := b.client.Do(ctx, http.MethodGet, endpoint, nil, &issue); err != nil || issue.Fields.Summary == "" {
		return "", false
	}
	return issue.Fields.Summary, true
}
