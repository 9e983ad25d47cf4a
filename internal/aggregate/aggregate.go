// Package aggregate reduces the day records of a period to per-task totals.
package aggregate

import (
	"context"
	"time"

	"github.com/Tiliavir/tracktime/internal/model"
)

// DayLoader reads day records.
type DayLoader interface {
	LoadDay(day time.Time) ([]model.Entry, error)
}

// Aggregate sums the minutes of every closed entry in period that carries a
// type, project and task id, keyed by task. Missing days count as empty.
func Aggregate(ctx context.Context, store DayLoader, period model.Period) (model.AggregatedTime, error) {
	totals := model.AggregatedTime{}
	err := eachEntry(ctx, store, period, func(e model.Entry) {
		if e.Syncable() {
			totals[e.Key()] += e.Minutes(time.Time{})
		}
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// ByCustomer sums the minutes of every closed entry in period by customer.
// Entries without a customer are collected under "".
func ByCustomer(ctx context.Context, store DayLoader, period model.Period) (map[string]int, error) {
	totals := map[string]int{}
	err := eachEntry(ctx, store, period, func(e model.Entry) {
		if !e.Open() {
			totals[e.Customer] += e.Minutes(time.Time{})
		}
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func eachEntry(ctx context.Context, store DayLoader, period model.Period, fn func(model.Entry)) error {
	for _, day := range period.Days(time.Local) {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := store.LoadDay(day)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fn(e)
		}
	}
	return nil
}
