package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/timecalc"
)

// DayHeader is the column layout of a day record.
var DayHeader = []string{"start", "stop", "type", "project", "taskid", "customer", "description"}

// LedgerHeader is the column layout of a period's .synced record.
var LedgerHeader = []string{"type", "project", "taskid", "synced"}

// LedgerFile is the name of the per-period ledger record.
const LedgerFile = ".synced"

// Error is returned for every failure to read, parse or write a record.
type Error struct {
	Op   string
	Path string
	// Row is the 1-based data row a parse error refers to, or 0.
	Row int
	Err error
}

func (e *Error) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("storage error %s %s row %d: %v", e.Op, e.Path, e.Row, e.Err)
	}
	return fmt.Sprintf("storage error %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsStorage reports whether err is, or wraps, an *Error.
func IsStorage(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// Store binds the record functions to one base directory.
type Store struct {
	Base string
}

// New returns a Store rooted at base.
func New(base string) *Store {
	return &Store{Base: base}
}

// LoadDay reads the entries of day and rejects records whose entries are out
// of order, overlap or have an open entry before the last one.
func (s *Store) LoadDay(day time.Time) ([]model.Entry, error) {
	entries, err := LoadDay(s.Base, day)
	if err != nil {
		return nil, err
	}
	if i, err := model.CheckSequence(entries); err != nil {
		return nil, &Error{Op: "checking", Path: DayPath(s.Base, day), Row: i + 1, Err: err}
	}
	return entries, nil
}

func (s *Store) SaveDay(day time.Time, entries []model.Entry) error {
	return SaveDay(s.Base, day, entries)
}

func (s *Store) LoadLedger(p model.Period) (model.AggregatedTime, error) {
	return LoadLedger(s.Base, p)
}

func (s *Store) SaveLedger(p model.Period, ledger model.AggregatedTime) error {
	return SaveLedger(s.Base, p, ledger)
}

// MonthDir returns {base}/{year}/{month:02}.
func MonthDir(base string, p model.Period) string {
	return filepath.Join(base, strconv.Itoa(p.Year), fmt.Sprintf("%02d", int(p.Month)))
}

// DayPath returns the path for the given date's record.
func DayPath(base string, day time.Time) string {
	return filepath.Join(MonthDir(base, model.PeriodOf(day)), day.Format("02"))
}

// LedgerPath returns the path of the .synced record for p.
func LedgerPath(base string, p model.Period) string {
	return filepath.Join(MonthDir(base, p), LedgerFile)
}

// LoadDay reads the entries recorded for day, in file order. A missing file
// yields no entries.
func LoadDay(base string, day time.Time) ([]model.Entry, error) {
	path := DayPath(base, day)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "reading", Path: path, Err: err}
	}

	rows, err := readRows(data, DayHeader)
	if err != nil {
		return nil, &Error{Op: "parsing", Path: path, Err: err}
	}

	entries := make([]model.Entry, 0, len(rows))
	for i, row := range rows {
		entry, err := parseRecord(day, row)
		if err != nil {
			return nil, &Error{Op: "parsing", Path: path, Row: i + 1, Err: err}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseRecord converts one day row into an entry dated on day.
func parseRecord(day time.Time, row []string) (model.Entry, error) {
	if len(row) != len(DayHeader) {
		return model.Entry{}, &model.ValidationError{
			Field:  "row",
			Reason: fmt.Sprintf("expected %d columns, got %d", len(DayHeader), len(row)),
		}
	}
	start, err := parseClock(day, row[0])
	if err != nil {
		return model.Entry{}, &model.ValidationError{Field: "start", Reason: err.Error()}
	}
	entry := model.Entry{
		Start:       start,
		Type:        model.NormalizeType(row[2]),
		Project:     row[3],
		TaskID:      row[4],
		Customer:    row[5],
		Description: row[6],
	}
	if strings.TrimSpace(row[1]) != "" {
		stop, err := parseClock(day, row[1])
		if err != nil {
			return model.Entry{}, &model.ValidationError{Field: "stop", Reason: err.Error()}
		}
		if err := entry.SetStop(stop); err != nil {
			return model.Entry{}, err
		}
	}
	return entry, nil
}

func parseClock(day time.Time, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing time")
	}
	clock, err := time.Parse(timecalc.ClockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return timecalc.OnDay(day, clock), nil
}

// SaveDay atomically writes the entries for day.
func SaveDay(base string, day time.Time, entries []model.Entry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		stop := ""
		if e.Stop != nil {
			stop = e.Stop.Format(timecalc.ClockLayout)
		}
		rows = append(rows, []string{
			e.Start.Format(timecalc.ClockLayout),
			stop,
			e.Type,
			e.Project,
			e.TaskID,
			e.Customer,
			e.Description,
		})
	}
	return writeRows(DayPath(base, day), DayHeader, rows)
}

// LoadLedger reads the minutes already pushed for each task in p. A missing
// file yields an empty ledger.
func LoadLedger(base string, p model.Period) (model.AggregatedTime, error) {
	ledger := model.AggregatedTime{}
	path := LedgerPath(base, p)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ledger, nil
	}
	if err != nil {
		return nil, &Error{Op: "reading", Path: path, Err: err}
	}

	rows, err := readRows(data, LedgerHeader)
	if err != nil {
		return nil, &Error{Op: "parsing", Path: path, Err: err}
	}
	for i, row := range rows {
		if len(row) != len(LedgerHeader) {
			return nil, &Error{Op: "parsing", Path: path, Row: i + 1,
				Err: fmt.Errorf("expected %d columns, got %d", len(LedgerHeader), len(row))}
		}
		synced, err := strconv.Atoi(strings.TrimSpace(row[3]))
		if err != nil {
			return nil, &Error{Op: "parsing", Path: path, Row: i + 1, Err: fmt.Errorf("invalid synced value %q", row[3])}
		}
		key := model.TaskKey{Type: row[0], Project: row[1], TaskID: row[2]}
		ledger[key] = synced
	}
	return ledger, nil
}

// SaveLedger atomically writes the ledger for p, one row per task in key order.
func SaveLedger(base string, p model.Period, ledger model.AggregatedTime) error {
	keys := ledger.Keys()
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k.Type, k.Project, k.TaskID, strconv.Itoa(ledger[k])})
	}
	return writeRows(LedgerPath(base, p), LedgerHeader, rows)
}

// readRows parses CSV data and checks the header row. An empty file has no rows.
func readRows(data []byte, header []string) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	first, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !headerMatches(first, header) {
		return nil, fmt.Errorf("unexpected header %q, want %q", strings.Join(first, ","), strings.Join(header, ","))
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func headerMatches(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(strings.TrimSpace(got[i]), want[i]) {
			return false
		}
	}
	return true
}

func writeRows(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return &Error{Op: "encoding", Path: path, Err: err}
	}
	if err := w.WriteAll(rows); err != nil {
		return &Error{Op: "encoding", Path: path, Err: err}
	}
	return writeAtomic(path, buf.Bytes())
}

// writeAtomic writes data to a temp file next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return &Error{Op: "creating directory for", Path: path, Err: err}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return &Error{Op: "writing", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Op: "renaming", Path: tmpPath, Err: err}
	}
	return nil
}
