package model

import (
	"fmt"
	"sort"
	"time"
)

// TaskKey identifies one task on one external tracker.
type TaskKey struct {
	Type    string
	Project string
	TaskID  string
}

func (k TaskKey) String() string {
	return fmt.Sprintf("%s:%s%s", k.Type, k.Project, k.TaskID)
}

// AggregatedTime maps a task to a number of minutes. It is used both for the
// totals of a period and for the ledger of minutes already pushed.
type AggregatedTime map[TaskKey]int

// Clone returns an independent copy.
func (a AggregatedTime) Clone() AggregatedTime {
	out := make(AggregatedTime, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the keys sorted by type, project and task id.
func (a AggregatedTime) Keys() []TaskKey {
	keys := make([]TaskKey, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		if keys[i].Project != keys[j].Project {
			return keys[i].Project < keys[j].Project
		}
		return keys[i].TaskID < keys[j].TaskID
	})
	return keys
}

// Period is a calendar month, the unit of aggregation and reconciliation.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// First returns midnight of the first day of the period in loc.
func (p Period) First(loc *time.Location) time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
}

// Days returns midnight of every calendar day in the period.
func (p Period) Days(loc *time.Location) []time.Time {
	first := p.First(loc)
	var days []time.Time
	for d := first; d.Month() == p.Month; d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return fmt.Sprintf("%d-%02d", p.Year, int(p.Month))
}
