// Package timecomment reads and writes the per-month time summary comments
// that tracktime keeps on issue trackers without a time tracking API:
//
//	[tracktime] ~sumner has spent 12 hours 48 minutes on this task.
//	 * 2020-10: 8 hours 12 minutes
//	 * 2020-11: 4 hours 36 minutes
package timecomment

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Tiliavir/tracktime/internal/model"
)

// Prefix starts every comment.
const Prefix = "[tracktime] "

var (
	firstLineRe = regexp.MustCompile(`^\[tracktime\] \S+ has spent (\d+ hours? )?\d+ minutes? on this task\.?`)
	monthLineRe = regexp.MustCompile(`^\s*\* (\d+)-(\d+): (?:(\d+) hours? )?(\d+) minutes?`)
)

// Months maps a period to the minutes recorded for it.
type Months map[model.Period]int

// Total sums all months.
func (m Months) Total() int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

// Parse extracts the month totals from a comment. It returns false when text
// is not a tracktime comment.
func Parse(text string) (Months, bool) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if !firstLineRe.MatchString(lines[0]) {
		return nil, false
	}
	months := Months{}
	for _, line := range lines[1:] {
		m := monthLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		hours, _ := strconv.Atoi(m[3])
		minutes, _ := strconv.Atoi(m[4])
		if month < 1 || month > 12 {
			continue
		}
		months[model.Period{Year: year, Month: time.Month(month)}] = hours*60 + minutes
	}
	return months, true
}

// IsOwn reports whether text is a tracktime comment written for user.
func IsOwn(text, user string) bool {
	return strings.HasPrefix(text, Prefix+user+" ")
}

// Generate renders the comment for user, listing months in order.
func Generate(months Months, user string) string {
	periods := make([]model.Period, 0, len(months))
	for p := range months {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Year != periods[j].Year {
			return periods[i].Year < periods[j].Year
		}
		return periods[i].Month < periods[j].Month
	})

	lines := []string{fmt.Sprintf("%s%s has spent %s on this task.", Prefix, user, FormatDuration(months.Total()))}
	for _, p := range periods {
		lines = append(lines, fmt.Sprintf(" * %s: %s", p, FormatDuration(months[p])))
	}
	return strings.Join(lines, "\n")
}

// FormatDuration spells out minutes, e.g. "1 hour 5 minutes" or "48 minutes".
func FormatDuration(minutes int) string {
	hours := minutes / 60
	minutes %= 60
	s := ""
	if hours > 0 {
		s = fmt.Sprintf("%d %s ", hours, pluralize("hour", hours))
	}
	return s + fmt.Sprintf("%d %s", minutes, pluralize("minute", minutes))
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
