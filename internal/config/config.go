package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Tiliavir/tracktime/internal/model"
)

const (
	KeyDirectory          = "directory"
	KeyCacheDir           = "cache_dir"
	KeySyncTime           = "sync_time"
	KeySyncBackends       = "sync.backends"
	KeySyncMaxConcurrency = "sync.max_concurrency"
	KeySyncRequestTimeout = "sync.request_timeout"
	KeySyncProbeAddress   = "sync.probe_address"
	KeySyncProbeTimeout   = "sync.probe_timeout"
	KeyGitLabAPIRoot      = "gitlab.api_root"
	KeyGitHubRootURI      = "github.root_uri"
	KeyGitHubAPIRoot      = "github.api_root"
	KeyLinearAPIRoot      = "linear.api_root"
	KeySourcehutAPIRoot   = "sourcehut.api_root"

	// EnvPrefix is prepended to every environment override, e.g.
	// TRACKTIME_GITLAB_API_KEY.
	EnvPrefix = "TRACKTIME"

	redacted = "********"
)

// BuiltinBackends lists the tracker backends compiled into tracktime, in
// registration order.
var BuiltinBackends = []string{"gitlab", "github", "jira", "linear", "sourcehut"}

// Config is the root configuration for tracktime, stored as YAML in
// $HOME/.config/tracktime/tracktimerc.
type Config struct {
	// Directory holds the per-day records and the .synced ledgers.
	Directory string `mapstructure:"directory" yaml:"directory" validate:"required"`
	// CacheDir holds the task description cache.
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir" validate:"required"`
	// SyncTime runs a best-effort sync after start, stop and resume.
	SyncTime bool `mapstructure:"sync_time" yaml:"sync_time"`

	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	GitLab    GitLabConfig    `mapstructure:"gitlab" yaml:"gitlab"`
	GitHub    GitHubConfig    `mapstructure:"github" yaml:"github"`
	Jira      JiraConfig      `mapstructure:"jira" yaml:"jira"`
	Linear    LinearConfig    `mapstructure:"linear" yaml:"linear"`
	Sourcehut SourcehutConfig `mapstructure:"sourcehut" yaml:"sourcehut"`
	Webhooks  []WebhookConfig `mapstructure:"webhooks" yaml:"webhooks" validate:"unique=Name,dive"`
}

type SyncConfig struct {
	Backends       []string      `mapstructure:"backends" yaml:"backends" validate:"dive,oneof=gitlab github jira linear sourcehut"`
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0s"`
	ProbeAddress   string        `mapstructure:"probe_address" yaml:"probe_address" validate:"required,hostname_port"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout" validate:"gt=0s"`
}

type GitLabConfig struct {
	APIRoot string `mapstructure:"api_root" yaml:"api_root" validate:"required,url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
}

type GitHubConfig struct {
	AccessToken string `mapstructure:"access_token" yaml:"access_token"`
	Username    string `mapstructure:"username" yaml:"username"`
	RootURI     string `mapstructure:"root_uri" yaml:"root_uri" validate:"required,url"`
	APIRoot     string `mapstructure:"api_root" yaml:"api_root" validate:"required,url"`
}

type JiraConfig struct {
	Root    string `mapstructure:"root" yaml:"root" validate:"omitempty,url"`
	APIUser string `mapstructure:"api_user" yaml:"api_user"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
}

type LinearConfig struct {
	DefaultOrg string `mapstructure:"default_org" yaml:"default_org"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	APIRoot    string `mapstructure:"api_root" yaml:"api_root" validate:"required,url"`
}

type SourcehutConfig struct {
	AccessToken string `mapstructure:"access_token" yaml:"access_token"`
	APIRoot     string `mapstructure:"api_root" yaml:"api_root" validate:"required,url"`
	Username    string `mapstructure:"username" yaml:"username"`
}

// WebhookConfig declares a user-defined backend that receives a JSON POST per
// task with pending time.
type WebhookConfig struct {
	Name  string   `mapstructure:"name" yaml:"name" validate:"required"`
	URL   string   `mapstructure:"url" yaml:"url" validate:"required,url"`
	Token string   `mapstructure:"token" yaml:"token"`
	Types []string `mapstructure:"types" yaml:"types" validate:"min=1,dive,required"`
}

// DefaultPath returns $HOME/.config/tracktime/tracktimerc.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tracktime", "tracktimerc"), nil
}

// SetDefaults registers the built-in default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDirectory, "~/.tracktime")
	v.SetDefault(KeyCacheDir, "~/.cache/tracktime")
	v.SetDefault(KeySyncTime, false)
	v.SetDefault(KeySyncBackends, BuiltinBackends)
	v.SetDefault(KeySyncMaxConcurrency, 16)
	v.SetDefault(KeySyncRequestTimeout, 30*time.Second)
	v.SetDefault(KeySyncProbeAddress, "8.8.8.8:53")
	v.SetDefault(KeySyncProbeTimeout, 3*time.Second)
	v.SetDefault(KeyGitLabAPIRoot, "https://gitlab.com/api/v4/")
	v.SetDefault(KeyGitHubRootURI, "https://github.com")
	v.SetDefault(KeyGitHubAPIRoot, "https://api.github.com")
	v.SetDefault(KeyLinearAPIRoot, "https://api.linear.app/graphql")
	v.SetDefault(KeySourcehutAPIRoot, "https://todo.sr.ht/api/")

	// Unmarshal only sees environment overrides for keys viper knows about.
	for _, key := range []string{
		"gitlab.api_key",
		"github.access_token", "github.username",
		"jira.root", "jira.api_user", "jira.api_key",
		"linear.default_org", "linear.api_key",
		"sourcehut.access_token", "sourcehut.username",
	} {
		v.SetDefault(key, "")
	}
}

// Read builds a viper instance from the config file at path, environment
// overrides and defaults. An empty path means DefaultPath, which may be
// missing; an explicit path must exist.
func Read(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return v, nil
}

// Load unmarshals v, expands ~ and environment variables in paths and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	var err error
	if cfg.Directory, err = ExpandPath(cfg.Directory); err != nil {
		return nil, err
	}
	if cfg.CacheDir, err = ExpandPath(cfg.CacheDir); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := validateWebhooks(cfg.Webhooks, cfg.Sync.Backends); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateYAMLContent loads and validates configuration from raw YAML content
// on top of the defaults.
func ValidateYAMLContent(content []byte) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("read config content: %w", err)
	}
	return Load(v)
}

// validateWebhooks rejects webhook names that shadow a built-in backend and
// types already owned by an enabled built-in or another webhook, so every task
// is pushed by exactly one backend.
func validateWebhooks(hooks []WebhookConfig, enabled []string) error {
	owner := map[string]string{}
	for _, b := range enabled {
		owner[b] = "built-in backend " + b
	}
	for i, h := range hooks {
		for _, b := range BuiltinBackends {
			if strings.EqualFold(h.Name, b) {
				return fmt.Errorf("validation failed: webhooks[%d].name %q is reserved", i, h.Name)
			}
		}
		for _, t := range h.Types {
			n := model.NormalizeType(t)
			if o, ok := owner[n]; ok {
				return fmt.Errorf("validation failed: webhooks[%d].types %q is already handled by %s", i, t, o)
			}
			owner[n] = "webhook " + h.Name
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ to the home directory and expands
// environment variables.
func ExpandPath(p string) (string, error) {
	p = os.ExpandEnv(p)
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Redacted returns a copy of cfg with every credential replaced by a
// placeholder. Unset credentials stay empty.
func (c Config) Redacted() Config {
	hide := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	out := c
	hide(&out.GitLab.APIKey)
	hide(&out.GitHub.AccessToken)
	hide(&out.Jira.APIKey)
	hide(&out.Linear.APIKey)
	hide(&out.Sourcehut.AccessToken)
	out.Webhooks = make([]WebhookConfig, len(c.Webhooks))
	for i, h := range c.Webhooks {
		hide(&h.Token)
		out.Webhooks[i] = h
	}
	return out
}

// Create writes the annotated template to path unless a file already exists
// there. It reports whether a file was written.
func Create(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking config file %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Template), 0o600); err != nil {
		return false, fmt.Errorf("writing default config: %w", err)
	}
	return true, nil
}

// Template is the annotated configuration written by "tracktime config create".
const Template = `# tracktime configuration
#
# Every setting can also be given as an environment variable, e.g.
# TRACKTIME_GITLAB_API_KEY or TRACKTIME_SYNC_MAX_CONCURRENCY.

# Day records are kept as YYYY/MM/DD and ledgers as YYYY/MM/.synced here.
directory: ~/.tracktime
# Task description cache.
cache_dir: ~/.cache/tracktime

# Push pending time after every start, stop and resume.
sync_time: false

sync:
  # Built-in backends to push to. Webhooks below are always included.
  backends: [gitlab, github, jira, linear, sourcehut]
  max_concurrency: 16
  request_timeout: 30s
  # Sync is skipped when this address cannot be reached.
  probe_address: 8.8.8.8:53
  probe_timeout: 3s

gitlab:
  api_root: https://gitlab.com/api/v4/
  api_key: ""

github:
  access_token: ""
  username: ""
  root_uri: https://github.com
  api_root: https://api.github.com

jira:
  # e.g. https://example.atlassian.net
  root: ""
  api_user: ""
  api_key: ""

linear:
  default_org: ""
  api_key: ""
  api_root: https://api.linear.app/graphql

sourcehut:
  access_token: ""
  api_root: https://todo.sr.ht/api/
  username: ""

# User-defined backends receiving a JSON POST per task:
# {"type","project","taskid","period","total_minutes","delta_minutes"}
webhooks: []
#  - name: billing
#    url: https://billing.example.com/hooks/time
#    token: ""
#    types: [redmine]
`
