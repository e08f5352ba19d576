package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"serenity/gateway/internal/booking"
	"serenity/gateway/internal/lib/api/response"
	"serenity/gateway/internal/lib/logger/sl"
	"serenity/gateway/internal/upstream"
)

// writeError is the single place where failures become HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, resp := h.classify(err)

	if status >= http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
	} else {
		log.Info("request rejected", slog.Int("status", status), sl.Err(err))
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func (h *Handler) classify(err error) (int, response.Response) {
	var (
		verrs     validator.ValidationErrors
		missing   *booking.MissingParamsError
		invalid   *booking.InvalidParamsError
		decodeErr *decodeError
	)

	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, response.ValidationError(verrs)
	case errors.As(err, &missing):
		return http.StatusBadRequest, response.Missing(missing.Fields)
	case errors.As(err, &invalid):
		return http.StatusBadRequest, response.Invalid(invalid.Fields)
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, response.Error("Failed to decode request")
	case errors.Is(err, booking.ErrUnauthorized):
		return http.StatusUnauthorized, response.Error("Invalid credentials")
	case errors.Is(err, upstream.ErrSiteAuth):
		if _, ok := upstream.AsError(err); ok {
			return http.StatusUnauthorized, response.Error("Upstream authentication failed")
		}
		return http.StatusInternalServerError, response.Error("Upstream unavailable")
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, response.Error("Not found")
	case errors.Is(err, booking.ErrConflict):
		return http.StatusConflict, response.Error("A client with this email already exists")
	case errors.Is(err, upstream.ErrUnknownShape):
		return http.StatusInternalServerError, response.Error("Unexpected upstream response")
	}

	if ue, ok := upstream.AsError(err); ok {
		status := http.StatusInternalServerError
		if h.passthrough && ue.StatusCode >= 400 && ue.StatusCode <= 599 {
			status = ue.StatusCode
		}
		resp := response.Error("Upstream request failed")
		resp.Message = ue.Message
		resp.Details = ue.Payload
		return status, resp
	}

	return http.StatusInternalServerError, response.Error("Internal server error")
}
