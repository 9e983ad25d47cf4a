// Package registry wires the configured backends into a backend.Registry.
package registry

import (
	"github.com/Tiliavir/tracktime/internal/backend"
	"github.com/Tiliavir/tracktime/internal/backend/github"
	"github.com/Tiliavir/tracktime/internal/backend/gitlab"
	"github.com/Tiliavir/tracktime/internal/backend/jira"
	"github.com/Tiliavir/tracktime/internal/backend/linear"
	"github.com/Tiliavir/tracktime/internal/backend/sourcehut"
	"github.com/Tiliavir/tracktime/internal/backend/webhook"
	"github.com/Tiliavir/tracktime/internal/config"
)

// New registers the built-in backends followed by one webhook backend per
// configured hook.
func New(cfg *config.Config) (*backend.Registry, error) {
	r := backend.NewRegistry()
	builtins := []struct {
		name    string
		factory backend.Factory
	}{
		{gitlab.Name, gitlab.Factory(gitlab.Config{
			APIRoot: cfg.GitLab.APIRoot,
			APIKey:  cfg.GitLab.APIKey,
		})},
		{github.Name, github.Factory(github.Config{
			AccessToken: cfg.GitHub.AccessToken,
			Username:    cfg.GitHub.Username,
			RootURI:     cfg.GitHub.RootURI,
			APIRoot:     cfg.GitHub.APIRoot,
		})},
		{jira.Name, jira.Factory(jira.Config{
			Root:    cfg.Jira.Root,
			APIUser: cfg.Jira.APIUser,
			APIKey:  cfg.Jira.APIKey,
		})},
		{linear.Name, linear.Factory(linear.Config{
			DefaultOrg: cfg.Linear.DefaultOrg,
			APIKey:     cfg.Linear.APIKey,
			APIRoot:    cfg.Linear.APIRoot,
		})},
		{sourcehut.Name, sourcehut.Factory(sourcehut.Config{
			AccessToken: cfg.Sourcehut.AccessToken,
			APIRoot:     cfg.Sourcehut.APIRoot,
			Username:    cfg.Sourcehut.Username,
		})},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.factory); err != nil {
			return nil, err
		}
	}
	for _, h := range cfg.Webhooks {
		f := webhook.Factory(webhook.Config{Name: h.Name, URL: h.URL, Token: h.Token, Types: h.Types})
		if err := r.Register(h.Name, f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Enabled returns the names a sync run pushes to: the configured built-ins
// and every webhook.
func Enabled(cfg *config.Config) []string {
	names := append([]string{}, cfg.Sync.Backends...)
	for _, h := range cfg.Webhooks {
		names = append(names, h.Name)
	}
	return names
}

// Default builds the backends enabled for sync. No two of them may own the
// same type.
func Default(cfg *config.Config, deps backend.Deps) ([]backend.Backend, error) {
	r, err := New(cfg)
	if err != nil {
		return nil, err
	}
	backends, err := r.Build(Enabled(cfg), deps)
	if err != nil {
		return nil, err
	}
	if err := backend.CheckDisjoint(backends); err != nil {
		return nil, err
	}
	return backends, nil
}

// All builds every registered backend, for task formatting and lookups that
// do not depend on sync being enabled.
func All(cfg *config.Config, deps backend.Deps) ([]backend.Backend, error) {
	r, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return r.Build(nil, deps)
}
