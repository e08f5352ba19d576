package booking

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"serenity/gateway/internal/upstream"
)

const dateLayout = "2006-01-02"

// Default lookahead, in days, when a route gets no end date.
const (
	bookableItemsDays     = 7
	staffAvailabilityDays = 14
	availableSlotsDays    = 1
	availableDatesDays    = 30
	clientHistoryDays     = 90
)

// ID accepts identifiers the booking API sends either as numbers or strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// numeric sends digit-only identifiers as JSON numbers, the way the booking
// API declares most of its ids, and anything else unchanged.
func numeric(s string) any {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// SplitList flattens repeated and comma-separated values, dropping blanks.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func addList(q url.Values, key string, values []string) {
	for _, v := range values {
		q.Add(key, v)
	}
}

func addIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// dateRange fills a missing start with today and a missing end with start
// plus days. Inputs are passed through when they are not plain dates.
func (s *Service) dateRange(start, end string, days int) (string, string) {
	from := s.today()
	if start != "" {
		if t, ok := upstream.ParseTime(start); ok {
			from = t
		}
	} else {
		start = from.Format(dateLayout)
	}
	if end == "" {
		end = from.AddDate(0, 0, days).Format(dateLayout)
	}
	return start, end
}

// wall reinterprets t's wall clock as UTC, matching how zone-less site-local
// timestamps are parsed.
func wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// after reports whether the upstream timestamp ts lies after now.
func after(ts string, now time.Time) bool {
	t, ok := upstream.ParseTime(ts)
	if !ok {
		return false
	}
	if len(ts) <= len(upstream.LocalLayout) {
		return t.After(wall(now))
	}
	return t.After(now)
}

func dateKey(ts string) string {
	if len(ts) >= len(dateLayout) {
		return ts[:len(dateLayout)]
	}
	return ts
}

func fullName(first, last, fallback string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return strings.TrimSpace(fallback)
	}
	return name
}
