// Package sourcehut records time on todo.sr.ht tickets as a per-ticket
// summary comment. Only trackers owned by the configured user are touched.
package sourcehut

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/backend/timecomment"
	"github.com/Tiliavir/tracktime/internal/model"
)

const Name = "sourcehut"

const DefaultAPIRoot = "https://todo.sr.ht/api/"

type Config struct {
	AccessToken string
	APIRoot     string
	Username    string
}

type Backend struct {
	cfg        Config
	user       string
	client     *backend.Client
	dispatcher backend.Dispatcher
}

func New(cfg Config, deps backend.Deps) *Backend {
	if cfg.APIRoot == "" {
		cfg.APIRoot = DefaultAPIRoot
	}
	user := ""
	if cfg.Username != "" {
		user = tilde(cfg.Username)
	}
	return &Backend{
		cfg:        cfg,
		user:       user,
		client:     backend.NewTokenClient(deps, cfg.AccessToken, "token"),
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

func tilde(user string) string {
	if strings.HasPrefix(user, "~") {
		return user
	}
	return "~" + user
}

// tracker splits "~owner/tracker"; a bare tracker name belongs to the
// configured user.
func (b *Backend) tracker(project string) (owner, name string) {
	if i := strings.Index(project, "/"); i >= 0 {
		return tilde(project[:i]), project[i+1:]
	}
	return b.user, project
}

func ticketID(taskID string) string {
	return strings.TrimPrefix(taskID, "#")
}

func (b *Backend) Sync(ctx context.Context, aggregated, ledger model.AggregatedTime, period model.Period) (model.AggregatedTime, error) {
	switch {
	case b.user == "":
		return model.AggregatedTime{}, &backend.ConfigurationError{Backend: Name, Setting: "sourcehut.username"}
	case b.cfg.AccessToken == "":
		return model.AggregatedTime{}, &backend.ConfigurationError{Backend: Name, Setting: "sourcehut.access_token"}
	}

	push := func(ctx context.Context, key model.TaskKey, total, _ int) error {
		return b.push(ctx, key, total, period)
	}
	return b.dispatcher.DispatchGrouped(ctx, aggregated, ledger, b.canonical, push)
}

// canonical names the ticket of a key on one of the user's own trackers as
// "~owner/tracker" and a bare id. Tickets of other users are not owned.
func (b *Backend) canonical(k model.TaskKey) (model.TaskKey, bool) {
	if !backend.Owns(b, k.Type) {
		return k, false
	}
	owner, name := b.tracker(k.Project)
	if owner != b.user {
		return k, false
	}
	return model.TaskKey{Type: Name, Project: owner + "/" + name, TaskID: ticketID(k.TaskID)}, true
}

type eventsResponse struct {
	Results []struct {
		EventType []string `json:"event_type"`
		Comment   *struct {
			ID   int64  `json:"id"`
			Text string `json:"text"`
		} `json:"comment"`
	} `json:"results"`
}

func (b *Backend) ticketURI(project, taskID string) string {
	owner, name := b.tracker(project)
	return backend.JoinURL(b.cfg.APIRoot, fmt.Sprintf("user/%s/trackers/%s/tickets/%s", owner, name, ticketID(taskID)))
}

func (b *Backend) push(ctx context.Context, key model.TaskKey, total int, period model.Period) error {
	ticket := b.ticketURI(key.Project, key.TaskID)

	var events eventsResponse
	code, err := b.client.Do(ctx, http.MethodGet, ticket+"/events", nil, &events)
	if err := backend.Expect(code, err, http.StatusOK); err != nil {
		return err
	}

	months := timecomment.Months{}
	var commentID int64
	for _, ev := range events.Results {
		if ev.Comment == nil || !slices.Contains(ev.EventType, "comment") || !timecomment.IsOwn(ev.Comment.Text, b.user) {
			continue
		}
		if parsed, ok := timecomment.Parse(ev.Comment.Text); ok {
			months = parsed
		}
		commentID = ev.Comment.ID
		break
	}
	if commentID != 0 && months[period] == total {
		return nil
	}

	months[period] = total
	text := timecomment.Generate(months, b.user)
	if commentID != 0 {
		code, err = b.client.Do(ctx, http.MethodPut, fmt.Sprintf("%s/comments/%d", ticket, commentID), map[string]string{"text": text}, nil)
	} else {
		code, err = b.client.Do(ctx, http.MethodPut, ticket, map[string]string{"comment": text}, nil)
	}
	return backend.Expect(code, err, http.StatusOK)
}

func (b *Backend) FormattedTaskID(e model.Entry) (string, bool) {
	return "#" + ticketID(e.TaskID), true
}

func (b *Backend) TaskLink(e model.Entry) (string, bool) {
	owner, name := b.tracker(e.Project)
	if owner == "" || name == "" {
		return "", false
	}
	root := b.cfg.APIRoot
	if i := strings.Index(root, "/api"); i >= 0 {
		root = root[:i]
	}
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(root, "/"), owner, name, ticketID(e.TaskID)), true
}

func (b *Backend) TaskDescription(ctx context.Context, e model.Entry) (string, bool) {
	if b.cfg.AccessToken == "" {
		return "", false
	}
	owner, name := b.tracker(e.Project)
	if owner == "" || name == "" {
		return "", false
	}
	var ticket struct {
		Title string `json:"title"`
	}
	if _, err := b.client.Do(ctx, http.MethodGet, b.ticketURI(e.Project, e.TaskID), nil, &ticket); err != nil || ticket.Title == "" {
		return "", false
	}
	return ticket.Title, true
}
