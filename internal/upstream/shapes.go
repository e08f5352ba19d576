package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LocalLayout is the zone-less timestamp format the booking API uses for
// site-local times.
const LocalLayout = "2006-01-02T15:04:05"

// ErrUnknownShape means a bookable-items response had none of the known
// collection fields.
var ErrUnknownShape = errors.New("unrecognised bookable items response")

// availabilityKeys is tried in order; the first key present wins, even when
// its list is empty.
var availabilityKeys = []string{"Availabilities", "ScheduleItems", "BookableItems"}

type Pagination struct {
	RequestedLimit  int `json:"RequestedLimit"`
	RequestedOffset int `json:"RequestedOffset"`
	PageSize        int `json:"PageSize"`
	TotalResults    int `json:"TotalResults"`
}

// AvailabilityPage is one decoded bookable-items response. Items keep the
// upstream JSON untouched.
type AvailabilityPage struct {
	Key        string
	Items      []json.RawMessage
	Pagination Pagination
}

func ParseAvailabilities(raw []byte) (AvailabilityPage, error) {
	const op = "upstream.ParseAvailabilities"

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return AvailabilityPage{}, fmt.Errorf("%s: %w", op, err)
	}

	page := AvailabilityPage{}
	if p, ok := fields["PaginationResponse"]; ok {
		if err := json.Unmarshal(p, &page.Pagination); err != nil {
			return AvailabilityPage{}, fmt.Errorf("%s: pagination: %w", op, err)
		}
	}

	for _, key := range availabilityKeys {
		list, ok := fields[key]
		if !ok {
			continue
		}
		page.Key = key
		if string(list) == "null" {
			return page, nil
		}
		if err := json.Unmarshal(list, &page.Items); err != nil {
			return AvailabilityPage{}, fmt.Errorf("%s: %s: %w", op, key, err)
		}
		return page, nil
	}

	return AvailabilityPage{}, fmt.Errorf("%s: %w", op, ErrUnknownShape)
}

// ParseTime accepts RFC 3339 and the zone-less site-local layout.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, LocalLayout, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
