// Package linear links entries to Linear issues. Linear has no time tracking
// API, so Sync never confirms anything.
package linear

import (
	"context"
	"fmt"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/model"
)

const Name = "linear"

const DefaultAPIRoot = "https://api.linear.app/graphql"

type Config struct {
	DefaultOrg string
	APIKey     string
	APIRoot    string
}

type Backend struct {
	cfg    Config
	client *backend.Client
}

func New(cfg Config, deps backend.Deps) *Backend {
	if cfg.APIRoot == "" {
		cfg.APIRoot = DefaultAPIRoot
	}
	return &Backend{cfg: cfg, client: backend.NewHeaderClient(deps, cfg.APIKey)}
}

func Factory(cfg Config) backend.Factory {
	return func(deps backend.Deps) (backend.Backend, error) {
		return New(cfg, deps), nil
	}
}

func (b *Backend) Name() string    { return Name }
func (b *Backend) Types() []string { return []string{Name} }

func (b *Backend) Sync(context.Context, model.AggregatedTime, model.AggregatedTime, model.Period) (model.AggregatedTime, error) {
	return model.AggregatedTime{}, nil
}

func issueID(e model.Entry) (string, bool) {
	if e.Project == "" || e.TaskID == "" {
		return "", false
	}
	return fmt.Sprintf("%s-%s", e.Project, e.TaskID), true
}

func (b *Backend) FormattedTaskID(e model.Entry) (string, bool) {
	return issueID(e)
}

func (b *Backend) TaskLink(e model.Entry) (string, bool) {
	id, ok := issueID(e)
	if !ok || b.cfg.DefaultOrg == "" {
		return "", false
	}
	return fmt.Sprintf("https://linear.app/%s/issue/%s", b.cfg.DefaultOrg, id), true
}

const titleQuery = `query($id: String!) { issue(id: $id) { title } }`

func (b *Backend) TaskDescription(ctx context.Context, e model.Entry) (string, bool) {
	id, ok := issueID(e)
	if !ok || b.cfg.APIKey == "" {
		return "", false
	}
	var data struct {
		Issue *struct {
			Title string `json:"title"`
		} `json:"issue"`
	}
	if err := b.client.GraphQL(ctx, b.cfg.APIRoot, titleQuery, map[string]any{"id": id}, &data); err != nil {
		return "", false
	}
	if data.Issue == nil || data.Issue.Title == "" {
		return "", false
	}
	return data.Issue.Title, true
}
