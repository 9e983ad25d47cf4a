// Package backend defines the capability contract of external issue trackers
// and the shared machinery for pushing time deltas to them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Tiliavir/tracktime/internal/model"
)

// Backend pushes aggregated time to one external tracker.
type Backend interface {
	// Name is the registry name, e.g. "gitlab".
	Name() string
	// Types lists the canonical entry types this backend owns.
	Types() []string
	// Sync pushes aggregated[k]-ledger[k] for every owned task and returns the
	// ledger values of the tasks the remote side confirmed. A non-nil error
	// never invalidates the returned updates.
	Sync(ctx context.Context, aggregated, ledger model.AggregatedTime, period model.Period) (model.AggregatedTime, error)
}

// TaskFormatter renders an entry's task id the way the tracker displays it.
type TaskFormatter interface {
	FormattedTaskID(e model.Entry) (string, bool)
}

// TaskLinker builds a web link to an entry's task.
type TaskLinker interface {
	TaskLink(e model.Entry) (string, bool)
}

// TaskDescriber looks up the title of an entry's task.
type TaskDescriber interface {
	TaskDescription(ctx context.Context, e model.Entry) (string, bool)
}

// Owns reports whether the entry type t belongs to b.
func Owns(b Backend, t string) bool {
	return slices.Contains(b.Types(), model.NormalizeType(t))
}

// For returns the first backend owning the entry type t.
func For(backends []Backend, t string) (Backend, bool) {
	for _, b := range backends {
		if Owns(b, t) {
			return b, true
		}
	}
	return nil, false
}

// CheckDisjoint returns an error when two backends own the same type. A task
// owned twice could be confirmed by one backend while the other failed.
func CheckDisjoint(backends []Backend) error {
	owner := map[string]string{}
	for _, b := range backends {
		for _, t := range b.Types() {
			if o, ok := owner[t]; ok {
				return fmt.Errorf("type %q is owned by both %s and %s", t, o, b.Name())
			}
			owner[t] = b.Name()
		}
	}
	return nil
}

// FormattedTaskID returns b's rendering of the entry's task id, or false when
// b cannot format it.
func FormattedTaskID(b Backend, e model.Entry) (string, bool) {
	f, ok := b.(TaskFormatter)
	if !ok || !Owns(b, e.Type) || e.TaskID == "" {
		return "", false
	}
	return f.FormattedTaskID(e)
}

// TaskLink returns a link to the entry's task, or false when unsupported.
func TaskLink(b Backend, e model.Entry) (string, bool) {
	l, ok := b.(TaskLinker)
	if !ok || !Owns(b, e.Type) || e.TaskID == "" {
		return "", false
	}
	return l.TaskLink(e)
}

// TaskDescription returns the task title, or false when unsupported or the
// lookup failed.
func TaskDescription(ctx context.Context, b Backend, e model.Entry) (string, bool) {
	d, ok := b.(TaskDescriber)
	if !ok || !Owns(b, e.Type) || e.TaskID == "" {
		return "", false
	}
	return d.TaskDescription(ctx, e)
}

// ConfigurationError reports a missing or invalid setting. The capability that
// needs it does nothing; the rest of the run continues.
type ConfigurationError struct {
	Backend string
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s is not configured", e.Backend, e.Setting)
}

// PushError reports a single task whose push was not confirmed.
type PushError struct {
	Backend string
	Key     model.TaskKey
	Err     error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("%s: pushing %s: %v", e.Backend, e.Key, e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }

// PushErrors collects the *PushError values in err, which may be a joined
// error.
func PushErrors(err error) []*PushError {
	if err == nil {
		return nil
	}
	var pe *PushError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*PushError
		for _, e := range joined.Unwrap() {
			out = append(out, PushErrors(e)...)
		}
		return out
	}
	if errors.As(err, &pe) {
		return []*PushError{pe}
	}
	return nil
}
