package handlers

import (
	"net/http"
	"strconv"

	"serenity/gateway/internal/booking"
	"serenity/gateway/internal/lib/api/response"
)

func availabilityQuery(r *http.Request) booking.AvailabilityQuery {
	return booking.AvailabilityQuery{
		SessionTypeIDs: queryList(r, "sessionTypeIds", "sessionTypeId"),
		LocationIDs:    queryList(r, "locationIds", "locationId"),
		StaffIDs:       queryList(r, "staffIds", "staffId"),
		StartDate:      queryValue(r, "startDate"),
		EndDate:        queryValue(r, "endDate"),
	}
}

func (h *Handler) bookableItems(r *http.Request) (int, any, error) {
	res, err := h.svc.BookableItems(r.Context(), availabilityQuery(r))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, struct {
		response.Response
		*booking.BookableItems
		Count int `json:"count"`
	}{response.OK(), res, len(res.Items)}, nil
}

func (h *Handler) staffWithAvailability(r *http.Request) (int, any, error) {
	res, err := h.svc.StaffWithAvailability(r.Context(), availabilityQuery(r))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, struct {
		response.Response
		*booking.StaffWithAvailability
		Count int `json:"count"`
	}{response.OK(), res, len(res.Staff)}, nil
}

func (h *Handler) availableSlots(r *http.Request) (int, any, error) {
	var step int
	if raw := queryValue(r, "stepMinutes", "step"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > booking.MaxStepMinutes {
			return 0, nil, &booking.InvalidParamsError{Fields: []string{"stepMinutes"}}
		}
		step = n
	}

	res, err := h.svc.AvailableSlots(r.Context(), booking.SlotQuery{
		AvailabilityQuery: availabilityQuery(r),
		Date:              queryValue(r, "date"),
		StepMinutes:       step,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, struct {
		response.Response
		*booking.AvailableSlots
	}{response.OK(), res}, nil
}

func (h *Handler) availableDates(r *http.Request) (int, any, error) {
	res, err := h.svc.AvailableDates(r.Context(), availabilityQuery(r))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, struct {
		response.Response
		*booking.AvailableDates
		Count int `json:"count"`
	}{response.OK(), res, len(res.Dates)}, nil
}

type BookRequest struct {
	ClientID      booking.ID `json:"clientId" validate:"required"`
	SessionTypeID booking.ID `json:"sessionTypeId" validate:"required"`
	StaffID       booking.ID `json:"staffId" validate:"required"`
	LocationID    booking.ID `json:"locationId" validate:"required"`
	StartDateTime string     `json:"startDateTime" validate:"required_without=StartTime"`
	StartTime     string     `json:"startTime"`
	Notes         string     `json:"notes"`
}

type AppointmentResponse struct {
	response.Response
	Appointment *booking.Appointment `json:"appointment"`
}

func (h *Handler) book(r *http.Request) (int, any, error) {
	var req BookRequest
	if err := h.decode(r, &req); err != nil {
		return 0, nil, err
	}

	a, err := h.svc.Book(r.Context(), booking.BookRequest{
		ClientID:      string(req.ClientID),
		SessionTypeID: string(req.SessionTypeID),
		StaffID:       string(req.StaffID),
		LocationID:    string(req.LocationID),
		StartDateTime: firstOf(req.StartDateTime, req.StartTime),
		Notes:         req.Notes,
	})
	if err != nil {
		return 0, nil, err
	}

	return http.StatusCreated, AppointmentResponse{Response: response.OK(), Appointment: a}, nil
}
