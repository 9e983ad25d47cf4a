// Package webhook posts time deltas to a user-defined HTTP endpoint.
package webhook

import (
	"context"
	"net/http"

	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/model"
)

type Config struct {
	Name  string
	URL   string
	Token string
	Types []string
}

// Payload is the JSON body sent for every task with a delta.
type Payload struct {
	Type         string `json:"type"`
	Project      string `json:"project"`
	TaskID       string `json:"taskid"`
	Period       string `json:"period"`
	TotalMinutes int    `json:"total_minutes"`
	DeltaMinutes int    `json:"delta_minutes"`
}

type Backend struct {
	cfg        Config
	types      []string
	client     *backend.Client
	dispatcher backend.Dispatcher
}

func New(cfg Config, deps backend.Deps) *Backend {
	types := make([]string, 0, len(cfg.Types))
	for _, t := range cfg.Types {
		types = append(types, model.NormalizeType(t))
	}
	client := backend.NewHeaderClient(deps, "")
	if cfg.Token != "" {
		client = backend.NewTokenClient(deps, cfg.Token, "")
	}
	return &Backend{
		cfg:        cfg,
		types:      types,
		client:     client,
		dispatcher: backend.NewDispatcher(cfg.Name, deps),
	}
}

func Factory(cfg Config) backend.Factory {
	return func(deps backend.Deps) (backend.Backend, error) {
		return New(cfg, deps), nil
	}
}

func (b *Backend) Name() string    { return b.cfg.Name }
func (b *Backend) Types() []string { return b.types }

func (b *Backend) Sync(ctx context.Context, aggregated, ledger model.AggregatedTime, period model.Period) (model.AggregatedTime, error) {
	if b.cfg.URL == "" {
		return model.AggregatedTime{}, &backend.ConfigurationError{Backend: b.cfg.Name, Setting: "url"}
	}
	push := func(ctx context.Context, key model.TaskKey, total, delta int) error {
		_, err := b.client.Do(ctx, http.MethodPost, b.cfg.URL, Payload{
			Type:         key.Type,
			Project:      key.Project,
			TaskID:       key.TaskID,
			Period:       period.String(),
			TotalMinutes: total,
			DeltaMinutes: delta,
		}, nil)
		return err
	}
	return b.dispatcher.Dispatch(ctx, aggregated, ledger, backend.OwnsTypes(b), push)
}
