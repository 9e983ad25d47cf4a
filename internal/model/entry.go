package model

import (
	"fmt"
	"strings"
	"time"
)

// typeAliases maps shorthand backend type names to their canonical form.
var typeAliases = map[string]string{
	"gl":     "gitlab",
	"gh":     "github",
	"sh":     "sourcehut",
	"srht":   "sourcehut",
	"sr.ht":  "sourcehut",
	"jira":   "jira",
	"gitlab": "gitlab",
	"github": "github",
}

// NormalizeType resolves a type alias ("gl", "gh", ...) to its canonical name.
// Unknown types are returned trimmed but otherwise unchanged.
func NormalizeType(t string) string {
	t = strings.TrimSpace(t)
	if canonical, ok := typeAliases[strings.ToLower(t)]; ok {
		return canonical
	}
	return t
}

// Entry represents a single worked interval within one day.
type Entry struct {
	Start       time.Time
	Stop        *time.Time
	Type        string
	Project     string
	TaskID      string
	Customer    string
	Description string
}

// Open reports whether the entry is still running.
func (e *Entry) Open() bool {
	return e.Stop == nil
}

// SetStop closes the entry at t. A stop before the start is rejected.
func (e *Entry) SetStop(t time.Time) error {
	if t.Before(e.Start) {
		return &ValidationError{
			Field:  "stop",
			Reason: fmt.Sprintf("cannot stop a time entry at %s before it was started at %s", t.Format("15:04"), e.Start.Format("15:04")),
		}
	}
	stop := t
	e.Stop = &stop
	return nil
}

// CheckSequence verifies that entries are sorted by start, do not overlap and
// that only the last one is open. On failure it returns the index of the
// offending entry.
func CheckSequence(entries []Entry) (int, error) {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		switch {
		case prev.Open():
			return i - 1, &ValidationError{Field: "stop", Reason: fmt.Sprintf("entry started at %s is open but not the last one", prev.Start.Format("15:04"))}
		case cur.Start.Before(prev.Start):
			return i, &ValidationError{Field: "start", Reason: fmt.Sprintf("entry started at %s is out of order", cur.Start.Format("15:04"))}
		case cur.Start.Before(*prev.Stop):
			return i, &ValidationError{Field: "start", Reason: fmt.Sprintf("entry started at %s overlaps the one ending at %s", cur.Start.Format("15:04"), prev.Stop.Format("15:04"))}
		}
	}
	return 0, nil
}

// Key returns the task identity used for aggregation.
func (e *Entry) Key() TaskKey {
	return TaskKey{Type: e.Type, Project: e.Project, TaskID: e.TaskID}
}

// Syncable reports whether the entry counts toward aggregated time: it must be
// closed and carry a type, project and task id.
func (e *Entry) Syncable() bool {
	return !e.Open() && e.Type != "" && e.Project != "" && e.TaskID != ""
}

// Minutes returns the whole minutes between start and stop, or between start
// and now for a running entry. The entry itself is not modified.
func (e *Entry) Minutes(now time.Time) int {
	stop := now
	if e.Stop != nil {
		stop = *e.Stop
	}
	if stop.Before(e.Start) {
		return 0
	}
	return int(stop.Sub(e.Start) / time.Minute)
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	if e.Stop != nil {
		stop := *e.Stop
		e.Stop = &stop
	}
	return e
}

func (e Entry) String() string {
	span := e.Start.Format("15:04")
	if e.Stop != nil {
		span += "-" + e.Stop.Format("15:04")
	}
	return fmt.Sprintf("<Entry %s project=%s type=%s taskid=%s customer=%s description=%s>",
		span, e.Project, e.Type, e.TaskID, e.Customer, e.Description)
}
