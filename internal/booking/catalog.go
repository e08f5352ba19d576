package booking

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"serenity/gateway/internal/lib/logger/sl"
	"serenity/gateway/internal/upstream"
)

type Location struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	Address     string  `json:"address,omitempty"`
	Address2    string  `json:"address2,omitempty"`
	City        string  `json:"city,omitempty"`
	State       string  `json:"state,omitempty"`
	PostalCode  string  `json:"postalCode,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Description string  `json:"description,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

type upstreamLocation struct {
	ID            ID      `json:"Id"`
	Name          string  `json:"Name"`
	Address       string  `json:"Address"`
	Address2      string  `json:"Address2"`
	City          string  `json:"City"`
	StateProvCode string  `json:"StateProvCode"`
	PostalCode    string  `json:"PostalCode"`
	Phone         string  `json:"Phone"`
	Description   string  `json:"Description"`
	Latitude      float64 `json:"Latitude"`
	Longitude     float64 `json:"Longitude"`
}

func (s *Service) Locations(ctx context.Context) ([]Location, error) {
	const op = "booking.Locations"

	var resp struct {
		Locations []upstreamLocation `json:"Locations"`
	}
	if err := s.api.Do(ctx, upstream.Request{Path: "/site/locations"}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]Location, 0, len(resp.Locations))
	for _, l := range resp.Locations {
		out = append(out, Location{
			ID:          l.ID,
			Name:        l.Name,
			Address:     l.Address,
			Address2:    l.Address2,
			City:        l.City,
			State:       l.StateProvCode,
			PostalCode:  l.PostalCode,
			Phone:       l.Phone,
			Description: l.Description,
			Latitude:    l.Latitude,
			Longitude:   l.Longitude,
		})
	}
	return out, nil
}

// genericCategories are program names that describe the booking mechanism,
// not a treatment category.
var genericCategories = map[string]bool{
	"Appointment":  true,
	"Appointments": true,
	"Service":      true,
	"Services":     true,
}

type EnrichmentStatus string

const (
	EnrichmentOK          EnrichmentStatus = "ok"
	EnrichmentUnavailable EnrichmentStatus = "unavailable"
)

// Enrichment reports which optional lookups fed a session type listing.
type Enrichment struct {
	Programs EnrichmentStatus `json:"programs"`
	Prices   EnrichmentStatus `json:"prices"`
}

// UnavailableError is the result of an optional lookup that failed. The
// listing is still served without the fields that lookup provides.
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s enrichment unavailable: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

type SessionType struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Duration    int      `json:"duration"`
	ProgramID   ID       `json:"programId,omitempty"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	OnlinePrice *float64 `json:"onlinePrice,omitempty"`
	PreTaxPrice *float64 `json:"preTaxPrice"`
}

type SessionTypes struct {
	SessionTypes []SessionType `json:"sessionTypes"`
	Categories   []string      `json:"categories"`
	Enrichment   Enrichment    `json:"enrichment"`
}

type upstreamSessionType struct {
	ID                ID     `json:"Id"`
	Name              string `json:"Name"`
	Type              string `json:"Type"`
	DefaultTimeLength int    `json:"DefaultTimeLength"`
	ProgramID         ID     `json:"ProgramId"`
	Category          string `json:"Category"`
	OnlineDescription string `json:"OnlineDescription"`
	Description       string `json:"Description"`
}

type upstreamService struct {
	ID          ID       `json:"Id"`
	Name        string   `json:"Name"`
	Price       *float64 `json:"Price"`
	OnlinePrice *float64 `json:"OnlinePrice"`
	TaxIncluded *float64 `json:"TaxIncluded"`
	Description string   `json:"Description"`
}

// SessionTypes lists bookable appointment services. Category names come
// from the programs lookup, prices from the services price list; either
// lookup may be unavailable, which is reported in Enrichment.
func (s *Service) SessionTypes(ctx context.Context, locationID string) (*SessionTypes, error) {
	const op = "booking.SessionTypes"

	q := url.Values{}
	addIf(q, "LocationId", locationID)

	var resp struct {
		SessionTypes []upstreamSessionType `json:"SessionTypes"`
	}
	if err := s.api.Do(ctx, upstream.Request{Path: "/site/sessiontypes", Query: q}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &SessionTypes{
		SessionTypes: []SessionType{},
		Categories:   []string{},
		Enrichment:   Enrichment{Programs: EnrichmentOK, Prices: EnrichmentOK},
	}

	programs, err := s.programNames(ctx)
	if err != nil {
		result.Enrichment.Programs = EnrichmentUnavailable
		s.log.Warn("session types served without categories", sl.Err(err))
	}

	prices, err := s.priceList(ctx, locationID)
	if err != nil {
		result.Enrichment.Prices = EnrichmentUnavailable
		s.log.Warn("session types served without prices", sl.Err(err))
	}

	categories := map[string]bool{}
	for _, st := range resp.SessionTypes {
		if st.Type != "" && st.Type != "Appointment" {
			continue
		}

		out := SessionType{
			ID:          st.ID,
			Name:        st.Name,
			Duration:    st.DefaultTimeLength,
			ProgramID:   st.ProgramID,
			Category:    st.Category,
			Description: firstNonEmpty(st.OnlineDescription, st.Description),
		}
		if name, ok := programs[st.ProgramID]; ok && name != "" {
			out.Category = name
		}

		if svc, ok := prices[priceKey(st.Name)]; ok {
			out.Price = svc.Price
			out.OnlinePrice = svc.OnlinePrice
			out.PreTaxPrice = preTax(svc.Price, svc.TaxIncluded)
			if out.Description == "" {
				out.Description = strings.TrimSpace(svc.Description)
			}
		}

		if out.Category != "" && !genericCategories[out.Category] {
			categories[out.Category] = true
		}
		result.SessionTypes = append(result.SessionTypes, out)
	}

	for c := range categories {
		result.Categories = append(result.Categories, c)
	}
	sort.Strings(result.Categories)

	return result, nil
}

func (s *Service) programNames(ctx context.Context) (map[ID]string, error) {
	var resp struct {
		Programs []struct {
			ID   ID     `json:"Id"`
			Name string `json:"Name"`
		} `json:"Programs"`
	}
	q := url.Values{"ScheduleType": {"Appointment"}}
	if err := s.api.Do(ctx, upstream.Request{Path: "/site/programs", Query: q}, &resp); err != nil {
		return nil, &UnavailableError{Source: "programs", Err: err}
	}

	names := make(map[ID]string, len(resp.Programs))
	for _, p := range resp.Programs {
		names[p.ID] = strings.TrimSpace(p.Name)
	}
	return names, nil
}

func (s *Service) priceList(ctx context.Context, locationID string) (map[string]upstreamService, error) {
	q := url.Values{"Limit": {"200"}}
	addIf(q, "LocationId", locationID)

	var resp struct {
		Services []upstreamService `json:"Services"`
	}
	if err := s.api.Do(ctx, upstream.Request{Path: "/sale/services", Query: q}, &resp); err != nil {
		return nil, &UnavailableError{Source: "prices", Err: err}
	}

	byName := make(map[string]upstreamService, len(resp.Services))
	for _, svc := range resp.Services {
		key := priceKey(svc.Name)
		if _, seen := byName[key]; !seen {
			byName[key] = svc
		}
	}
	return byName, nil
}

func priceKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// preTax removes the included tax from a gross price.
func preTax(price, taxIncluded *float64) *float64 {
	if price == nil {
		return nil
	}
	v := *price
	if taxIncluded != nil && *taxIncluded > 0 {
		v -= *taxIncluded
	}
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type StaffMember struct {
	ID        ID     `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

type upstreamStaff struct {
	ID          ID     `json:"Id"`
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	DisplayName string `json:"DisplayName"`
	Name        string `json:"Name"`
	Bio         string `json:"Bio"`
	ImageURL    string `json:"ImageUrl"`
}

func (u upstreamStaff) name() string {
	return fullName(u.FirstName, u.LastName, firstNonEmpty(u.DisplayName, u.Name))
}

// Staff lists staff members, deduplicated by id in upstream order.
func (s *Service) Staff(ctx context.Context, locationID string, sessionTypeIDs []string) ([]StaffMember, error) {
	const op = "booking.Staff"

	q := url.Values{}
	addIf(q, "LocationId", locationID)
	addList(q, "SessionTypeIds", sessionTypeIDs)

	var resp struct {
		StaffMembers []upstreamStaff `json:"StaffMembers"`
	}
	if err := s.api.Do(ctx, upstream.Request{Method: http.MethodGet, Path: "/staff/staff", Query: q}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seen := map[ID]bool{}
	out := make([]StaffMember, 0, len(resp.StaffMembers))
	for _, m := range resp.StaffMembers {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, StaffMember{
			ID:        m.ID,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Name:      m.name(),
			Bio:       m.Bio,
			ImageURL:  m.ImageURL,
		})
	}

	s.log.Debug("staff listed", slog.Int("count", len(out)))
	return out, nil
}
