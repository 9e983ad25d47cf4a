// Package timeline maintains the ordered, non-overlapping entries of one day.
package timeline

import (
	"fmt"
	"time"

	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/timecalc"
)

// DayStore reads and writes day records.
type DayStore interface {
	LoadDay(day time.Time) ([]model.Entry, error)
	SaveDay(day time.Time, entries []model.Entry) error
}

// Fields are the descriptive attributes of a new entry.
type Fields struct {
	Description string
	Type        string
	Project     string
	TaskID      string
	Customer    string
}

// FieldsOf copies the descriptive attributes of e.
func FieldsOf(e model.Entry) Fields {
	return Fields{
		Description: e.Description,
		Type:        e.Type,
		Project:     e.Project,
		TaskID:      e.TaskID,
		Customer:    e.Customer,
	}
}

// Timeline holds the entries of one calendar day, sorted by start. No two
// entries overlap and only the last entry may be open.
type Timeline struct {
	store   DayStore
	day     time.Time
	entries []model.Entry
}

// New returns an empty timeline for day.
func New(store DayStore, day time.Time) *Timeline {
	return &Timeline{store: store, day: timecalc.StartOfDay(day)}
}

// Load reads the timeline for day from store.
func Load(store DayStore, day time.Time) (*Timeline, error) {
	tl := New(store, day)
	entries, err := store.LoadDay(tl.day)
	if err != nil {
		return nil, err
	}
	tl.entries = entries
	return tl, nil
}

// Day returns midnight of the timeline's day.
func (tl *Timeline) Day() time.Time { return tl.day }

// Len returns the number of entries.
func (tl *Timeline) Len() int { return len(tl.entries) }

// Entries returns a copy of the entries in order.
func (tl *Timeline) Entries() []model.Entry {
	out := make([]model.Entry, len(tl.entries))
	for i, e := range tl.entries {
		out[i] = e.Clone()
	}
	return out
}

// Save writes the timeline back to its store.
func (tl *Timeline) Save() error {
	return tl.store.SaveDay(tl.day, tl.entries)
}

// Insert places entry into the timeline. The first matching rule, scanning
// entries in order, decides where it goes:
//
//  1. entry.Start lies inside a closed entry [s, e): that entry is cut at
//     entry.Start and the new entry takes over the remainder up to e.
//  2. entry.Start is before an entry's start: the new entry ends where that
//     entry starts and is placed before it.
//  3. an open entry started at or before entry.Start: it is closed at
//     entry.Start and the new entry follows it.
//  4. otherwise the new entry is appended.
//
// It returns the position the entry was placed at.
func (tl *Timeline) Insert(entry model.Entry) int {
	entry = entry.Clone()
	at := len(tl.entries)
	for i := range tl.entries {
		e := &tl.entries[i]
		t := entry.Start

		if !e.Open() && !t.Before(e.Start) && t.Before(*e.Stop) {
			entry.Stop = e.Stop
			stop := t
			e.Stop = &stop
			at = i + 1
			break
		}
		if t.Before(e.Start) {
			stop := e.Start
			entry.Stop = &stop
			at = i
			break
		}
		if e.Open() && !e.Start.After(t) {
			stop := t
			e.Stop = &stop
			at = i + 1
			break
		}
	}

	tl.entries = append(tl.entries, model.Entry{})
	copy(tl.entries[at+1:], tl.entries[at:])
	tl.entries[at] = entry
	return at
}

// Start begins a new entry at the given time and returns it as placed.
func (tl *Timeline) Start(at time.Time, f Fields) model.Entry {
	entry := model.Entry{
		Start:       at,
		Type:        model.NormalizeType(f.Type),
		Project:     f.Project,
		TaskID:      f.TaskID,
		Customer:    f.Customer,
		Description: f.Description,
	}
	return tl.entries[tl.Insert(entry)].Clone()
}

// Stop closes the running entry at the given time. It returns
// model.ErrNoActiveEntry when nothing is running.
func (tl *Timeline) Stop(at time.Time) (model.Entry, error) {
	if len(tl.entries) == 0 || !tl.entries[len(tl.entries)-1].Open() {
		return model.Entry{}, model.ErrNoActiveEntry
	}
	last := &tl.entries[len(tl.entries)-1]
	if err := last.SetStop(at); err != nil {
		return model.Entry{}, err
	}
	return last.Clone(), nil
}

// Resume starts a new entry at the given time copying the descriptive fields
// of an earlier one. index is 1-based; 0 selects the most recent entry, which
// on an empty day is the last entry of the previous day. An empty description
// keeps the one of the resumed entry.
func (tl *Timeline) Resume(at time.Time, index int, description string) (model.Entry, error) {
	source, err := tl.resumeSource(index)
	if err != nil {
		return model.Entry{}, err
	}
	f := FieldsOf(source)
	if description != "" {
		f.Description = description
	}
	return tl.Start(at, f), nil
}

func (tl *Timeline) resumeSource(index int) (model.Entry, error) {
	if index < 0 || index > len(tl.entries) {
		return model.Entry{}, &model.ValidationError{
			Field:  "index",
			Reason: fmt.Sprintf("no entry %d on %s", index, tl.day.Format("2006-01-02")),
		}
	}
	if index > 0 {
		return tl.entries[index-1], nil
	}
	if len(tl.entries) > 0 {
		return tl.entries[len(tl.entries)-1], nil
	}

	previous, err := tl.store.LoadDay(tl.day.AddDate(0, 0, -1))
	if err != nil {
		return model.Entry{}, err
	}
	if len(previous) == 0 {
		return model.Entry{}, model.ErrNoActiveEntry
	}
	return previous[len(previous)-1], nil
}

// Duration returns the whole minutes of entry. An open entry fails with
// model.ErrOpenEntry unless allowUnended is set, in which case it is measured
// up to now.
func Duration(entry model.Entry, allowUnended bool, now time.Time) (int, error) {
	if entry.Open() && !allowUnended {
		return 0, model.ErrOpenEntry
	}
	return entry.Minutes(now), nil
}

// Total returns the minutes covered by all entries, counting a running entry
// up to now.
func (tl *Timeline) Total(now time.Time) int {
	total := 0
	for i := range tl.entries {
		total += tl.entries[i].Minutes(now)
	}
	return total
}

// Running returns the open entry, if any.
func (tl *Timeline) Running() (model.Entry, bool) {
	if len(tl.entries) == 0 || !tl.entries[len(tl.entries)-1].Open() {
		return model.Entry{}, false
	}
	return tl.entries[len(tl.entries)-1].Clone(), true
}
