package handlers

import (
	"net/http"

	"serenity/gateway/internal/booking"
	"serenity/gateway/internal/lib/api/response"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	response.Response
	Token string `json:"token"`
}

func (h *Handler) login(r *http.Request) (int, any, error) {
	var req LoginRequest
	if err := h.decode(r, &req); err != nil {
		return 0, nil, err
	}

	username := req.Username
	if username == "" {
		username = req.Email
	}

	tok, err := h.svc.Login(r.Context(), username, req.Password)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, LoginResponse{Response: response.OK(), Token: tok}, nil
}

type RegisterRequest struct {
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	Email        string `json:"email" validate:"required"`
	Phone        string `json:"phone"`
	MobilePhone  string `json:"mobilePhone"`
	BirthDate    string `json:"birthDate"`
	Gender       string `json:"gender"`
	AddressLine1 string `json:"addressLine1"`
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Password     string `json:"password"`
}

type ClientResponse struct {
	response.Response
	Client *booking.Client `json:"client"`
}

func (h *Handler) register(r *http.Request) (int, any, error) {
	var req RegisterRequest
	if err := h.decode(r, &req); err != nil {
		return 0, nil, err
	}

	c, err := h.svc.CreateClient(r.Context(), booking.NewClient{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        firstOf(req.Phone, req.MobilePhone),
		BirthDate:    req.BirthDate,
		Gender:       req.Gender,
		AddressLine1: firstOf(req.AddressLine1, req.Address),
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Password:     req.Password,
	})
	if err != nil {
		return 0, nil, err
	}

	return http.StatusCreated, ClientResponse{Response: response.OK(), Client: c}, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
