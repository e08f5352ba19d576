// Package handlers exposes the booking service over HTTP. Routes are
// declared in one table; each entry lists its required parameters, which
// are checked before the handler runs.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"serenity/gateway/internal/booking"
	"serenity/gateway/internal/lib/api/response"
	"serenity/gateway/internal/upstream"
)

// Booking is the service behind the routes.
type Booking interface {
	Login(ctx context.Context, username, password string) (string, error)
	Locations(ctx context.Context) ([]booking.Location, error)
	SessionTypes(ctx context.Context, locationID string) (*booking.SessionTypes, error)
	Staff(ctx context.Context, locationID string, sessionTypeIDs []string) ([]booking.StaffMember, error)
	BookableItems(ctx context.Context, q booking.AvailabilityQuery) (*booking.BookableItems, error)
	StaffWithAvailability(ctx context.Context, q booking.AvailabilityQuery) (*booking.StaffWithAvailability, error)
	AvailableSlots(ctx context.Context, q booking.SlotQuery) (*booking.AvailableSlots, error)
	AvailableDates(ctx context.Context, q booking.AvailabilityQuery) (*booking.AvailableDates, error)
	Book(ctx context.Context, br booking.BookRequest) (*booking.Appointment, error)
	SearchClients(ctx context.Context, text string) ([]booking.Client, error)
	CreateClient(ctx context.Context, nc booking.NewClient) (*booking.Client, error)
	ClientLogin(ctx context.Context, email, password string) (*booking.ClientAuth, error)
	ForgotPassword(ctx context.Context, email, firstName, lastName string) error
	ClientAppointments(ctx context.Context, clientID, start, end string) ([]booking.Appointment, error)
}

// Raw forwards an arbitrary GET to the upstream. Only used by debug routes.
type Raw interface {
	Do(ctx context.Context, req upstream.Request, out any) error
}

type Options struct {
	// PassthroughStatus answers upstream failures with the upstream's own
	// status code instead of 500.
	PassthroughStatus bool
	// Debug enables /api/debug/upstream/* when set.
	Debug Raw
	// Now is the clock reported by the health routes.
	Now func() time.Time
}

type Handler struct {
	log         *slog.Logger
	svc         Booking
	validate    *validator.Validate
	passthrough bool
	debug       Raw
	now         func() time.Time
	started     time.Time
}

func New(log *slog.Logger, svc Booking, opts Options) *Handler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		log:         log.With(slog.String("component", "handlers")),
		svc:         svc,
		validate:    v,
		passthrough: opts.PassthroughStatus,
		debug:       opts.Debug,
		now:         now,
		started:     now(),
	}
}

// param is a required input. A request satisfies it when the parameter or
// any of its aliases carries a non-blank value.
type param struct {
	name    string
	aliases []string
	path    bool
}

type handleFunc func(r *http.Request) (status int, payload any, err error)

type route struct {
	method   string
	pattern  string
	op       string
	required []param
	// public routes act with the site's own credentials and never see the
	// caller's token.
	public   bool
	handle   handleFunc
}

var sessionTypeIDs = param{name: "sessionTypeIds", aliases: []string{"sessionTypeId"}}

func (h *Handler) routes() []route {
	rs := []route{
		{method: http.MethodGet, pattern: "/", op: "handlers.Index", public: true, handle: h.index},
		{method: http.MethodGet, pattern: "/health", op: "handlers.Health", public: true, handle: h.health},
		{method: http.MethodGet, pattern: "/api/health", op: "handlers.Health", public: true, handle: h.health},

		{method: http.MethodPost, pattern: "/api/auth/login", op: "handlers.Login", public: true, handle: h.login},
		{method: http.MethodPost, pattern: "/api/auth/register", op: "handlers.Register", public: true, handle: h.register},
		{method: http.MethodPost, pattern: "/api/clients", op: "handlers.Register", public: true, handle: h.register},

		{method: http.MethodGet, pattern: "/api/locations", op: "handlers.Locations", handle: h.locations},
		{method: http.MethodGet, pattern: "/api/session-types", op: "handlers.SessionTypes", handle: h.sessionTypes},
		{method: http.MethodGet, pattern: "/api/staff", op: "handlers.Staff", handle: h.staff},

		{method: http.MethodGet, pattern: "/api/bookable-items", op: "handlers.BookableItems",
			required: []param{sessionTypeIDs}, handle: h.bookableItems},
		{method: http.MethodGet, pattern: "/api/staff-with-availability", op: "handlers.StaffWithAvailability",
			required: []param{sessionTypeIDs}, handle: h.staffWithAvailability},
		{method: http.MethodGet, pattern: "/api/available-slots", op: "handlers.AvailableSlots",
			required: []param{sessionTypeIDs}, handle: h.availableSlots},
		{method: http.MethodGet, pattern: "/api/available-dates", op: "handlers.AvailableDates",
			required: []param{sessionTypeIDs}, handle: h.availableDates},

		{method: http.MethodPost, pattern: "/api/book", op: "handlers.Book", handle: h.book},
		{method: http.MethodPost, pattern: "/api/appointments/book", op: "handlers.Book", handle: h.book},

		{method: http.MethodGet, pattern: "/api/clients", op: "handlers.SearchClients",
			required: []param{{name: "searchText", aliases: []string{"search", "email", "q"}}}, handle: h.searchClients},
		{method: http.MethodPost, pattern: "/api/clients/login", op: "handlers.ClientLogin", public: true, handle: h.clientLogin},
		{method: http.MethodPost, pattern: "/api/clients/forgot-password", op: "handlers.ForgotPassword", public: true, handle: h.forgotPassword},
		{method: http.MethodGet, pattern: "/api/clients/{clientId}/appointments", op: "handlers.ClientAppointments",
			required: []param{{name: "clientId", path: true}}, handle: h.clientAppointments},
	}

	if h.debug != nil {
		rs = append(rs, route{method: http.MethodGet, pattern: "/api/debug/upstream/*", op: "handlers.DebugUpstream",
			required: []param{{name: "*", path: true}}, handle: h.debugUpstream})
	}

	return rs
}

// Mount registers every route on r. The caller middlewares wrap only the
// routes that forward to the upstream on the caller's behalf; health and
// auth routes stay reachable whatever token the caller holds.
func (h *Handler) Mount(r chi.Router, caller ...func(http.Handler) http.Handler) {
	for _, rt := range h.routes() {
		if rt.public {
			r.Method(rt.method, rt.pattern, h.serve(rt))
			continue
		}
		r.With(caller...).Method(rt.method, rt.pattern, h.serve(rt))
	}
	if h.debug != nil {
		h.log.Warn("debug upstream routes enabled")
	}
}

func (h *Handler) serve(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := h.log.With(
			slog.String("op", rt.op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if missing := missingParams(r, rt.required); len(missing) > 0 {
			log.Info("missing required parameters", slog.Any("missing", missing))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Missing(missing))

			return
		}

		status, payload, err := rt.handle(r)
		if err != nil {
			h.writeError(w, r, log, err)
			return
		}

		if status == 0 {
			status = http.StatusOK
		}
		render.Status(r, status)
		render.JSON(w, r, payload)
	}
}

func missingParams(r *http.Request, required []param) []string {
	var missing []string
	for _, p := range required {
		if p.path {
			if strings.TrimSpace(chi.URLParam(r, p.name)) == "" {
				missing = append(missing, p.name)
			}
			continue
		}
		if len(queryList(r, append([]string{p.name}, p.aliases...)...)) == 0 {
			missing = append(missing, p.name)
		}
	}
	return missing
}

// queryList collects comma separated and repeated values of every name.
func queryList(r *http.Request, names ...string) []string {
	q := r.URL.Query()
	var values []string
	for _, n := range names {
		values = append(values, q[n]...)
	}
	return booking.SplitList(values...)
}

// queryValue returns the first non-blank value among names.
func queryValue(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, n := range names {
		if v := strings.TrimSpace(q.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

// decode reads a JSON body into dst and checks its validate tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return &decodeError{err: err}
	}
	return h.validate.Struct(dst)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode request body: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }
