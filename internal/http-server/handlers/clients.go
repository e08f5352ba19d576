package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"serenity/gateway/internal/booking"
	"serenity/gateway/internal/lib/api/response"
	"serenity/gateway/internal/lib/logger/sl"
	"serenity/gateway/internal/upstream"
)

type ClientsResponse struct {
	response.Response
	Clients []booking.Client `json:"clients"`
	Count   int              `json:"count"`
}

func (h *Handler) searchClients(r *http.Request) (int, any, error) {
	found, err := h.svc.SearchClients(r.Context(), queryValue(r, "searchText", "search", "email", "q"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, ClientsResponse{Response: response.OK(), Clients: found, Count: len(found)}, nil
}

type ClientLoginRequest struct {
	Email    string `json:"email" validate:"required_without=Username"`
	Username string `json:"username"`
	Password string `json:"password" validate:"required"`
}

type ClientLoginResponse struct {
	response.Response
	*booking.ClientAuth
}

func (h *Handler) clientLogin(r *http.Request) (int, any, error) {
	var req ClientLoginRequest
	if err := h.decode(r, &req); err != nil {
		return 0, nil, err
	}

	auth, err := h.svc.ClientLogin(r.Context(), firstOf(req.Email, req.Username), req.Password)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, ClientLoginResponse{Response: response.OK(), ClientAuth: auth}, nil
}

type ForgotPasswordRequest struct {
	Email     string `json:"email" validate:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

const forgotPasswordMessage = "If an account exists for this email, a password reset link has been sent"

// forgotPassword answers the same way whether or not the reset was sent, so
// the response does not reveal which emails have accounts.
func (h *Handler) forgotPassword(r *http.Request) (int, any, error) {
	var req ForgotPasswordRequest
	if err := h.decode(r, &req); err != nil {
		return 0, nil, err
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email, req.FirstName, req.LastName); err != nil {
		h.log.Warn("password reset not sent",
			slog.String("op", "handlers.ForgotPassword"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err),
		)
	}

	resp := response.OK()
	resp.Message = forgotPasswordMessage
	return http.StatusOK, resp, nil
}

type AppointmentsResponse struct {
	response.Response
	Appointments []booking.Appointment `json:"appointments"`
	Count        int                   `json:"count"`
}

func (h *Handler) clientAppointments(r *http.Request) (int, any, error) {
	list, err := h.svc.ClientAppointments(r.Context(),
		chi.URLParam(r, "clientId"),
		queryValue(r, "startDate"),
		queryValue(r, "endDate"),
	)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, AppointmentsResponse{Response: response.OK(), Appointments: list, Count: len(list)}, nil
}

func (h *Handler) debugUpstream(r *http.Request) (int, any, error) {
	var raw json.RawMessage
	err := h.debug.Do(r.Context(), upstream.Request{
		Path:  "/" + chi.URLParam(r, "*"),
		Query: r.URL.Query(),
	}, &raw)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, struct {
		response.Response
		Upstream json.RawMessage `json:"upstream"`
	}{response.OK(), raw}, nil
}
