package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Argument keys that carry dates in DD/MM[/YYYY] form.
var dateArgKeys = []string{"data_inicio", "data_fim", "checkin", "checkout", "date", "start", "end"}

func normalizeDateArgs(args map[string]any, now time.Time) {
	for _, key := range dateArgKeys {
		if raw, ok := args[key].(string); ok {
			args[key] = NormalizeDate(raw, now)
		}
	}
}

// NormalizeDate rewrites a DD/MM or DD/MM/YYYY date into DD/MM/YYYY using
// the temporal rule: a bare day/month implies the current year, and a date
// already past this year advances one year. A stale explicit year (the model
// hallucinating last year) is discarded and recomputed the same way.
// Anything unparseable is returned unchanged.
func NormalizeDate(raw string, now time.Time) string {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 && len(parts) != 3 {
		return raw
	}

	day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return raw
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return raw
	}

	year := now.Year()
	if len(parts) == 3 {
		ys := strings.TrimSpace(parts[2])
		parsed, err := strconv.Atoi(ys)
		if err != nil {
			return raw
		}
		if len(ys) == 2 {
			parsed += 2000
		}
		year = parsed
	}
	if year < now.Year() {
		year = now.Year()
	}

	candidate := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	if candidate.Day() != day || candidate.Month() != time.Month(month) {
		return raw
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if candidate.Before(today) {
		year++
	}
	return fmt.Sprintf("%02d/%02d/%d", day, month, year)
}
