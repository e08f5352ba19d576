package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"serenity/gateway/internal/lib/logger/sl"
	"serenity/gateway/internal/upstream"
)

const (
	// PageSize is the number of bookable items requested per page.
	PageSize = 100
	// MaxOffset stops pagination regardless of the declared total.
	MaxOffset = 1000

	// MaxStepMinutes bounds the slot interval to one day.
	MaxStepMinutes = 24 * 60

	defaultSlotMinutes = 60
	maxSlotsPerWindow  = 500
)

// AvailabilityQuery selects bookable items. Empty dates get route defaults.
type AvailabilityQuery struct {
	SessionTypeIDs []string
	LocationIDs    []string
	StaffIDs       []string
	StartDate      string
	EndDate        string
}

type BookableItems struct {
	Items             []json.RawMessage   `json:"items"`
	StaffAvailability []StaffAvailability `json:"staffAvailability"`
	TotalResults      int                 `json:"totalResults"`
	Pages             int                 `json:"pages"`
	// Partial is set when a later page failed and only earlier pages are
	// included.
	Partial   bool   `json:"partial,omitempty"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// StaffAvailability summarises the bookable items of one staff member.
type StaffAvailability struct {
	StaffID        ID       `json:"staffId"`
	Name           string   `json:"name"`
	FirstName      string   `json:"firstName,omitempty"`
	LastName       string   `json:"lastName,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	Bio            string   `json:"bio,omitempty"`
	SlotCount      int      `json:"slotCount"`
	FirstAvailable string   `json:"firstAvailable,omitempty"`
	Dates          []string `json:"dates"`
}

type availability struct {
	ID                  ID            `json:"Id"`
	StartDateTime       string        `json:"StartDateTime"`
	EndDateTime         string        `json:"EndDateTime"`
	BookableEndDateTime string        `json:"BookableEndDateTime"`
	Staff               upstreamStaff `json:"Staff"`
	SessionType         struct {
		ID                ID     `json:"Id"`
		Name              string `json:"Name"`
		DefaultTimeLength int    `json:"DefaultTimeLength"`
	} `json:"SessionType"`
	Location struct {
		ID   ID     `json:"Id"`
		Name string `json:"Name"`
	} `json:"Location"`
}

func decodeAvailabilities(items []json.RawMessage) ([]availability, error) {
	out := make([]availability, 0, len(items))
	for i, raw := range items {
		var a availability
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// BookableItems walks the paginated bookable-items endpoint and derives a
// per-staff availability summary.
func (s *Service) BookableItems(ctx context.Context, q AvailabilityQuery) (*BookableItems, error) {
	return s.bookable(ctx, q, bookableItemsDays)
}

func (s *Service) bookable(ctx context.Context, q AvailabilityQuery, days int) (*BookableItems, error) {
	const op = "booking.BookableItems"

	if len(q.SessionTypeIDs) == 0 {
		return nil, &MissingParamsError{Fields: []string{"sessionTypeIds"}}
	}

	start, end := s.dateRange(q.StartDate, q.EndDate, days)
	res, err := s.walk(ctx, q, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	avail, err := decodeAvailabilities(res.Items)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res.StaffAvailability = summariseStaff(avail)

	return res, nil
}

// walk requests pages of PageSize by offset until the declared total is
// reached or MaxOffset is hit. An error on the first page is returned; a
// later one, including running out of walk budget, ends the walk with what
// was gathered so far.
func (s *Service) walk(ctx context.Context, q AvailabilityQuery, start, end string) (*BookableItems, error) {
	if s.walkBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.walkBudget)
		defer cancel()
	}

	res := &BookableItems{
		Items:     []json.RawMessage{},
		StartDate: start,
		EndDate:   end,
	}

	params := url.Values{}
	addList(params, "SessionTypeIds", q.SessionTypeIDs)
	addList(params, "LocationIds", q.LocationIDs)
	addList(params, "StaffIds", q.StaffIDs)
	params.Set("StartDate", start)
	params.Set("EndDate", end)
	params.Set("Limit", strconv.Itoa(PageSize))

	for offset := 0; offset < MaxOffset; offset += PageSize {
		params.Set("Offset", strconv.Itoa(offset))

		var raw json.RawMessage
		err := s.api.Do(ctx, upstream.Request{Path: "/appointment/bookableitems", Query: params}, &raw)
		var page upstream.AvailabilityPage
		if err == nil {
			page, err = upstream.ParseAvailabilities(raw)
		}
		if err != nil {
			if offset == 0 {
				return nil, err
			}
			s.log.Warn("bookable items pagination stopped early",
				slog.Int("offset", offset),
				slog.Int("collected", len(res.Items)),
				sl.Err(err),
			)
			res.Partial = true
			break
		}

		res.Pages++
		res.Items = append(res.Items, page.Items...)
		res.TotalResults = page.Pagination.TotalResults

		if len(page.Items) == 0 || len(res.Items) >= res.TotalResults {
			break
		}
	}

	if res.TotalResults < len(res.Items) {
		res.TotalResults = len(res.Items)
	}

	return res, nil
}

// summariseStaff groups availabilities by staff id and orders the result by
// slot count, highest first. Items without a staff id are ignored.
func summariseStaff(items []availability) []StaffAvailability {
	byID := map[ID]*StaffAvailability{}
	dates := map[ID]map[string]bool{}
	var order []ID

	for _, a := range items {
		id := a.Staff.ID
		if id == "" {
			continue
		}
		sa, ok := byID[id]
		if !ok {
			sa = &StaffAvailability{
				StaffID:   id,
				Name:      a.Staff.name(),
				FirstName: a.Staff.FirstName,
				LastName:  a.Staff.LastName,
				ImageURL:  a.Staff.ImageURL,
				Bio:       a.Staff.Bio,
				Dates:     []string{},
			}
			byID[id] = sa
			dates[id] = map[string]bool{}
			order = append(order, id)
		}
		sa.SlotCount++
		if a.StartDateTime != "" && (sa.FirstAvailable == "" || earlier(a.StartDateTime, sa.FirstAvailable)) {
			sa.FirstAvailable = a.StartDateTime
		}
		if d := dateKey(a.StartDateTime); d != "" && !dates[id][d] {
			dates[id][d] = true
			sa.Dates = append(sa.Dates, d)
		}
	}

	out := make([]StaffAvailability, 0, len(order))
	for _, id := range order {
		sa := byID[id]
		sort.Strings(sa.Dates)
		out = append(out, *sa)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SlotCount != out[j].SlotCount {
			return out[i].SlotCount > out[j].SlotCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func earlier(a, b string) bool {
	ta, okA := upstream.ParseTime(a)
	tb, okB := upstream.ParseTime(b)
	if okA && okB {
		return ta.Before(tb)
	}
	return a < b
}

type StaffWithAvailability struct {
	Staff     []StaffAvailability `json:"staff"`
	StartDate string              `json:"startDate"`
	EndDate   string              `json:"endDate"`
	Partial   bool                `json:"partial,omitempty"`
}

func (s *Service) StaffWithAvailability(ctx context.Context, q AvailabilityQuery) (*StaffWithAvailability, error) {
	res, err := s.bookable(ctx, q, staffAvailabilityDays)
	if err != nil {
		return nil, err
	}
	return &StaffWithAvailability{
		Staff:     res.StaffAvailability,
		StartDate: res.StartDate,
		EndDate:   res.EndDate,
		Partial:   res.Partial,
	}, nil
}

type Slot struct {
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
	Time          string `json:"time"`
	StaffID       ID     `json:"staffId"`
	StaffName     string `json:"staffName"`
	SessionTypeID ID     `json:"sessionTypeId,omitempty"`
	LocationID    ID     `json:"locationId,omitempty"`
}

type DaySlots struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

type AvailableSlots struct {
	Days       []DaySlots `json:"days"`
	TotalSlots int        `json:"totalSlots"`
	StartDate  string     `json:"startDate"`
	EndDate    string     `json:"endDate"`
	Partial    bool       `json:"partial,omitempty"`
}

// SlotQuery narrows AvailableSlots. Date restricts the result to one day;
// StepMinutes overrides the session type's length as the slot interval.
type SlotQuery struct {
	AvailabilityQuery
	Date        string
	StepMinutes int
}

// AvailableSlots cuts each availability window into concrete start times
// and groups them by date.
func (s *Service) AvailableSlots(ctx context.Context, q SlotQuery) (*AvailableSlots, error) {
	if q.StepMinutes < 0 || q.StepMinutes > MaxStepMinutes {
		return nil, &InvalidParamsError{Fields: []string{"stepMinutes"}}
	}
	if q.Date != "" && q.StartDate == "" {
		q.StartDate = q.Date
	}

	res, err := s.bookable(ctx, q.AvailabilityQuery, availableSlotsDays)
	if err != nil {
		return nil, err
	}

	avail, err := decodeAvailabilities(res.Items)
	if err != nil {
		return nil, fmt.Errorf("booking.AvailableSlots: %w", err)
	}

	byDate := map[string][]Slot{}
	total := 0
	for _, a := range avail {
		for _, slot := range cutSlots(a, q.StepMinutes) {
			d := dateKey(slot.StartDateTime)
			if q.Date != "" && d != dateKey(q.Date) {
				continue
			}
			byDate[d] = append(byDate[d], slot)
			total++
		}
	}

	out := &AvailableSlots{
		Days:       make([]DaySlots, 0, len(byDate)),
		TotalSlots: total,
		StartDate:  res.StartDate,
		EndDate:    res.EndDate,
		Partial:    res.Partial,
	}
	for d, slots := range byDate {
		sort.SliceStable(slots, func(i, j int) bool {
			if slots[i].StartDateTime != slots[j].StartDateTime {
				return slots[i].StartDateTime < slots[j].StartDateTime
			}
			return slots[i].StaffName < slots[j].StaffName
		})
		out.Days = append(out.Days, DaySlots{Date: d, Slots: slots})
	}
	sort.Slice(out.Days, func(i, j int) bool { return out.Days[i].Date < out.Days[j].Date })

	return out, nil
}

// cutSlots splits one availability window. BookableEndDateTime is the last
// allowed start; without it a slot must end by EndDateTime.
func cutSlots(a availability, stepMinutes int) []Slot {
	start, ok := upstream.ParseTime(a.StartDateTime)
	if !ok {
		return nil
	}

	length := a.SessionType.DefaultTimeLength
	if length <= 0 || length > MaxStepMinutes {
		length = defaultSlotMinutes
	}
	step := stepMinutes
	if step <= 0 || step > MaxStepMinutes {
		step = length
	}
	interval := time.Duration(step) * time.Minute
	duration := time.Duration(length) * time.Minute
	if interval <= 0 || duration <= 0 {
		return nil
	}

	lastStart, hasLast := upstream.ParseTime(a.BookableEndDateTime)
	end, hasEnd := upstream.ParseTime(a.EndDateTime)
	if !hasLast {
		if !hasEnd {
			return nil
		}
		lastStart = end.Add(-duration)
	}

	layout := upstream.LocalLayout
	if len(a.StartDateTime) > len(upstream.LocalLayout) {
		layout = time.RFC3339
	}

	var out []Slot
	for t := start; !t.After(lastStart) && len(out) < maxSlotsPerWindow; t = t.Add(interval) {
		out = append(out, Slot{
			StartDateTime: t.Format(layout),
			EndDateTime:   t.Add(duration).Format(layout),
			Time:          t.Format("15:04"),
			StaffID:       a.Staff.ID,
			StaffName:     a.Staff.name(),
			SessionTypeID: a.SessionType.ID,
			LocationID:    a.Location.ID,
		})
	}
	return out
}

type AvailableDate struct {
	Date       string `json:"date"`
	SlotCount  int    `json:"slotCount"`
	StaffCount int    `json:"staffCount"`
}

type AvailableDates struct {
	Dates     []AvailableDate `json:"dates"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Partial   bool            `json:"partial,omitempty"`
}

// AvailableDates lists the days that have at least one bookable item.
func (s *Service) AvailableDates(ctx context.Context, q AvailabilityQuery) (*AvailableDates, error) {
	res, err := s.bookable(ctx, q, availableDatesDays)
	if err != nil {
		return nil, err
	}

	avail, err := decodeAvailabilities(res.Items)
	if err != nil {
		return nil, fmt.Errorf("booking.AvailableDates: %w", err)
	}

	counts := map[string]*AvailableDate{}
	staff := map[string]map[ID]bool{}
	for _, a := range avail {
		d := dateKey(a.StartDateTime)
		if d == "" {
			continue
		}
		ad, ok := counts[d]
		if !ok {
			ad = &AvailableDate{Date: d}
			counts[d] = ad
			staff[d] = map[ID]bool{}
		}
		ad.SlotCount++
		if a.Staff.ID != "" && !staff[d][a.Staff.ID] {
			staff[d][a.Staff.ID] = true
			ad.StaffCount++
		}
	}

	out := &AvailableDates{
		Dates:     make([]AvailableDate, 0, len(counts)),
		StartDate: res.StartDate,
		EndDate:   res.EndDate,
		Partial:   res.Partial,
	}
	for _, ad := range counts {
		out.Dates = append(out.Dates, *ad)
	}
	sort.Slice(out.Dates, func(i, j int) bool { return out.Dates[i].Date < out.Dates[j].Date })

	return out, nil
}
