// Package github records time on GitHub issues and pull requests. GitHub has
// no time tracking API, so the time lives in a single summary comment per
// issue that is rewritten on every push.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/backend/timecomment"
	"github.com/Tiliavir/tracktime/internal/model"
)

const Name = "github"

const (
	DefaultRootURI = "https://github.com"
	DefaultAPIRoot = "https://api.github.com"
)

type Config struct {
	AccessToken string
	Username    string
	RootURI     string
	APIRoot     string
}

type Backend struct {
	cfg        Config
	client     *backend.Client
	dispatcher backend.Dispatcher
}

func New(cfg Config, deps backend.Deps) *Backend {
	if cfg.RootURI == "" {
		cfg.RootURI = DefaultRootURI
	}
	if cfg.APIRoot == "" {
		cfg.APIRoot = DefaultAPIRoot
	}
	return &Backend{
		cfg:        cfg,
		client:     backend.NewTokenClient(deps, cfg.AccessToken, ""),
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

func (b *Backend) Sync(ctx context.Context, aggregated, ledger model.AggregatedTime, period model.Period) (model.AggregatedTime, error) {
	switch {
	case b.cfg.AccessToken == "":
		return model.AggregatedTime{}, &backend.ConfigurationError{Backend: Name, Setting: "github.access_token"}
	case b.cfg.Username == "":
		return model.AggregatedTime{}, &backend.ConfigurationError{Backend: Name, Setting: "github.username"}
	}
	push := func(ctx context.Context, key model.TaskKey, total, _ int) error {
		return b.push(ctx, key, total, period)
	}
	return b.dispatcher.DispatchGrouped(ctx, aggregated, ledger, b.canonical, push)
}

// canonical names the issue of an owned key as "owner/repo" and a bare
// number, so "repo" + "#1" and "octocat/repo" + "1" share one comment. Keys
// that do not parse are kept as they are and fail on push.
func (b *Backend) canonical(k model.TaskKey) (model.TaskKey, bool) {
	if !backend.Owns(b, k.Type) {
		return k, false
	}
	owner, repo, ok := b.repository(k.Project)
	if !ok {
		return k, true
	}
	n, err := issueNumber(k.TaskID)
	if err != nil {
		return k, true
	}
	return model.TaskKey{Type: Name, Project: owner + "/" + repo, TaskID: strconv.Itoa(n)}, true
}

type comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

func (b *Backend) push(ctx context.Context, key model.TaskKey, total int, period model.Period) error {
	owner, repo, ok := b.repository(key.Project)
	if !ok {
		return fmt.Errorf("invalid GitHub project %q", key.Project)
	}
	number, err := issueNumber(key.TaskID)
	if err != nil {
		return err
	}
	user := "@" + b.cfg.Username
	issuePath := fmt.Sprintf("repos/%s/%s/issues/%d", owner, repo, number)

	var comments []comment
	code, err := b.client.Do(ctx, http.MethodGet, backend.JoinURL(b.cfg.APIRoot, issuePath+"/comments?per_page=100"), nil, &comments)
	if err := backend.Expect(code, err, http.StatusOK); err != nil {
		return err
	}

	months := timecomment.Months{}
	var existing *comment
	for i := range comments {
		if !timecomment.IsOwn(comments[i].Body, user) {
			continue
		}
		if parsed, ok := timecomment.Parse(comments[i].Body); ok {
			months = parsed
		}
		existing = &comments[i]
		break
	}
	if existing != nil && months[period] == total {
		return nil
	}

	months[period] = total
	body := map[string]string{"body": timecomment.Generate(months, user)}
	if existing != nil {
		endpoint := backend.JoinURL(b.cfg.APIRoot, fmt.Sprintf("repos/%s/%s/issues/comments/%d", owner, repo, existing.ID))
		code, err := b.client.Do(ctx, http.MethodPatch, endpoint, body, nil)
		return backend.Expect(code, err, http.StatusOK)
	}
	code, err = b.client.Do(ctx, http.MethodPost, backend.JoinURL(b.cfg.APIRoot, issuePath+"/comments"), body, nil)
	return backend.Expect(code, err, http.StatusCreated)
}

// repository splits "owner/repo". A project without an owner belongs to the
// configured user.
func (b *Backend) repository(project string) (owner, repo string, ok bool) {
	parts := strings.Split(project, "/")
	switch {
	case len(parts) == 1 && parts[0] != "" && b.cfg.Username != "":
		return b.cfg.Username, parts[0], true
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], true
	}
	return "", "", false
}

func issueNumber(taskID string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(taskID, "#"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid GitHub task id %q", taskID)
	}
	return n, nil
}

func (b *Backend) FormattedTaskID(e model.Entry) (string, bool) {
	n, err := issueNumber(e.TaskID)
	if err != nil {
		return "", false
	}
	return "#" + strconv.Itoa(n), true
}

// TaskLink always points at /issues/, GitHub redirects to /pull/ as needed.
func (b *Backend) TaskLink(e model.Entry) (string, bool) {
	owner, repo, ok := b.repository(e.Project)
	if !ok {
		return "", false
	}
	n, err := issueNumber(e.TaskID)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s/issues/%d", strings.TrimRight(b.cfg.RootURI, "/"), owner, repo, n), true
}

const titleQuery = `query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    issue(number: $number) { title }
    pullRequest(number: $number) { title }
    discussion(number: $number) { title }
  }
}`

type titled struct {
	Title string `json:"title"`
}

func (b *Backend) TaskDescription(ctx context.Context, e model.Entry) (string, bool) {
	if b.cfg.AccessToken == "" {
		return "", false
	}
	owner, repo, ok := b.repository(e.Project)
	if !ok {
		return "", false
	}
	n, err := issueNumber(e.TaskID)
	if err != nil {
		return "", false
	}

	var data struct {
		Repository struct {
			Issue       *titled `json:"issue"`
			PullRequest *titled `json:"pullRequest"`
			Discussion  *titled `json:"discussion"`
		} `json:"repository"`
	}
	// The two kinds the number does not belong to come back as errors.
	_ = b.client.GraphQL(ctx, backend.JoinURL(b.cfg.APIRoot, "graphql"), titleQuery,
		map[string]any{"owner": owner, "name": repo, "number": n}, &data)

	for _, t := range []*titled{data.Repository.Issue, data.Repository.PullRequest, data.Repository.Discussion} {
		if t != nil && t.Title != "" {
			return t.Title, true
		}
	}
	return "", false
}
