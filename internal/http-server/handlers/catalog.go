package handlers

import (
	"net/http"
	"time"

	"serenity/gateway/internal/booking"
	"serenity/gateway/internal/lib/api/response"
)

func (h *Handler) index(r *http.Request) (int, any, error) {
	return http.StatusOK, struct {
		response.Response
		Service string `json:"service"`
		Status  string `json:"status"`
	}{response.OK(), "spa booking gateway", "running"}, nil
}

func (h *Handler) health(r *http.Request) (int, any, error) {
	now := h.now()
	return http.StatusOK, struct {
		response.Response
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Uptime    string `json:"uptime"`
	}{response.OK(), "ok", now.UTC().Format(time.RFC3339), now.Sub(h.started).Truncate(time.Second).String()}, nil
}

type LocationsResponse struct {
	response.Response
	Locations []booking.Location `json:"locations"`
	Count     int                `json:"count"`
}

func (h *Handler) locations(r *http.Request) (int, any, error) {
	ls, err := h.svc.Locations(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, LocationsResponse{Response: response.OK(), Locations: ls, Count: len(ls)}, nil
}

type SessionTypesResponse struct {
	response.Response
	*booking.SessionTypes
	Count int `json:"count"`
}

func (h *Handler) sessionTypes(r *http.Request) (int, any, error) {
	st, err := h.svc.SessionTypes(r.Context(), queryValue(r, "locationId", "locationIds"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, SessionTypesResponse{Response: response.OK(), SessionTypes: st, Count: len(st.SessionTypes)}, nil
}

type StaffResponse struct {
	response.Response
	Staff []booking.StaffMember `json:"staff"`
	Count int                   `json:"count"`
}

func (h *Handler) staff(r *http.Request) (int, any, error) {
	members, err := h.svc.Staff(r.Context(),
		queryValue(r, "locationId", "locationIds"),
		queryList(r, "sessionTypeIds", "sessionTypeId"),
	)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, StaffResponse{Response: response.OK(), Staff: members, Count: len(members)}, nil
}
