package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestTemplateValidates(t *testing.T) {
	cfg, err := ValidateYAMLContent([]byte(Template))
	if err != nil {
		t.Fatalf("template does not validate: %v", err)
	}
	if cfg.Sync.MaxConcurrency != 16 || cfg.Sync.RequestTimeout != 30*time.Second {
		t.Errorf("unexpected sync settings: %+v", cfg.Sync)
	}
	if strings.Join(cfg.Sync.Backends, ",") != "gitlab,github,jira,linear,sourcehut" {
		t.Errorf("backends = %v", cfg.Sync.Backends)
	}
	if strings.HasPrefix(cfg.Directory, "~") {
		t.Errorf("directory not expanded: %q", cfg.Directory)
	}
}

func TestValidateYAMLContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "zero concurrency",
			content: "sync:\n  max_concurrency: 0\n",
			wantErr: "MaxConcurrency",
		},
		{
			name:    "unknown backend",
			content: "sync:\n  backends: [gitlab, redmine]\n",
			wantErr: "Backends",
		},
		{
			name:    "bad gitlab root",
			content: "gitlab:\n  api_root: not a url\n",
			wantErr: "APIRoot",
		},
		{
			name:    "webhook without types",
			content: "webhooks:\n  - name: hook\n    url: https://example.com/hook\n",
			wantErr: "Types",
		},
		{
			name: "duplicate webhook names",
			content: `webhooks:
  - name: hook
    url: https://example.com/a
    types: [a]
  - name: hook
    url: https://example.com/b
    types: [b]
`,
			wantErr: "Webhooks",
		},
		{
			name:    "webhook shadowing a builtin",
			content: "webhooks:\n  - name: GitLab\n    url: https://example.com/a\n    types: [a]\n",
			wantErr: "reserved",
		},
		{
			name:    "webhook taking over an enabled builtin type",
			content: "webhooks:\n  - name: billing\n    url: https://example.com/a\n    types: [gl]\n",
			wantErr: "already handled by built-in backend gitlab",
		},
		{
			name: "two webhooks sharing a type",
			content: `webhooks:
  - name: billing
    url: https://example.com/a
    types: [redmine]
  - name: audit
    url: https://example.com/b
    types: [redmine]
`,
			wantErr: "already handled by webhook billing",
		},
		{
			name:    "webhook for a builtin type not synced",
			content: "sync:\n  backends: [jira]\nwebhooks:\n  - name: billing\n    url: https://example.com/a\n    types: [gh]\n",
		},
		{
			name:    "request timeout as string",
			content: "sync:\n  request_timeout: 5s\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateYAMLContent([]byte(tt.content))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracktimerc")
	content := "directory: /data/time\ngitlab:\n  api_key: from-file\nsync:\n  request_timeout: 10s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRACKTIME_GITLAB_API_KEY", "from-env")
	t.Setenv("TRACKTIME_JIRA_API_USER", "me@example.com")

	v, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Directory != "/data/time" {
		t.Errorf("directory = %q", cfg.Directory)
	}
	if cfg.GitLab.APIKey != "from-env" {
		t.Errorf("gitlab.api_key = %q, want environment override", cfg.GitLab.APIKey)
	}
	if cfg.Jira.APIUser != "me@example.com" {
		t.Errorf("jira.api_user = %q", cfg.Jira.APIUser)
	}
	if cfg.Sync.RequestTimeout != 10*time.Second {
		t.Errorf("request_timeout = %v", cfg.Sync.RequestTimeout)
	}
}

func TestReadMissingExplicitFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TT_SUB", "sub")

	tests := map[string]string{
		"~":             home,
		"~/.tracktime":  filepath.Join(home, ".tracktime"),
		"/abs/$TT_SUB":  "/abs/sub",
		"relative/path": "relative/path",
		"~other/x":      "~other/x",
	}
	for in, want := range tests {
		got, err := ExpandPath(in)
		if err != nil {
			t.Fatalf("ExpandPath(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactedShowsNoSecrets(t *testing.T) {
	cfg, err := ValidateYAMLContent([]byte(`gitlab:
  api_key: glpat-secret
github:
  access_token: ghp-secret
  username: me
webhooks:
  - name: billing
    url: https://example.com/hook
    token: hook-secret
    types: [redmine]
`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	for _, secret := range []string{"glpat-secret", "ghp-secret", "hook-secret"} {
		if strings.Contains(text, secret) {
			t.Errorf("redacted output leaks %q:\n%s", secret, text)
		}
	}
	if !strings.Contains(text, "username: me") {
		t.Errorf("non-secret fields missing:\n%s", text)
	}
	if cfg.Webhooks[0].Token != "hook-secret" {
		t.Error("Redacted modified the original webhook list")
	}
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tracktimerc")

	created, err := Create(path)
	if err != nil || !created {
		t.Fatalf("first Create = %v, %v", created, err)
	}
	if err := os.WriteFile(path, []byte("directory: /kept\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	created, err = Create(path)
	if err != nil || created {
		t.Fatalf("second Create = %v, %v", created, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "directory: /kept\n" {
		t.Errorf("existing file overwritten: %q", data)
	}
}
