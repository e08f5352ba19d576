package booking

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"serenity/gateway/internal/config"
	"serenity/gateway/internal/upstream"
)

type Client struct {
	ID        ID     `json:"id"`
	UniqueID  ID     `json:"uniqueId,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status,omitempty"`
}

type upstreamClient struct {
	ID          ID     `json:"Id"`
	UniqueID    ID     `json:"UniqueId"`
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	Email       string `json:"Email"`
	MobilePhone string `json:"MobilePhone"`
	HomePhone   string `json:"HomePhone"`
	Status      string `json:"Status"`
}

func (c upstreamClient) summary() Client {
	return Client{
		ID:        c.ID,
		UniqueID:  c.UniqueID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Name:      fullName(c.FirstName, c.LastName, c.Email),
		Email:     c.Email,
		Phone:     firstNonEmpty(c.MobilePhone, c.HomePhone),
		Status:    c.Status,
	}
}

func (s *Service) searchClients(ctx context.Context, text string) ([]upstreamClient, error) {
	q := url.Values{"SearchText": {text}, "Limit": {"100"}}

	var resp struct {
		Clients []upstreamClient `json:"Clients"`
	}
	if err := s.api.Do(ctx, upstream.Request{Path: "/client/clients", Query: q}, &resp); err != nil {
		return nil, err
	}
	return resp.Clients, nil
}

// SearchClients looks clients up by name, email or phone fragment.
func (s *Service) SearchClients(ctx context.Context, text string) ([]Client, error) {
	const op = "booking.SearchClients"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &MissingParamsError{Fields: []string{"searchText"}}
	}

	found, err := s.searchClients(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	out := make([]Client, 0, len(found))
	for _, c := range found {
		out = append(out, c.summary())
	}
	return out, nil
}

type NewClient struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	BirthDate    string
	Gender       string
	AddressLine1 string
	City         string
	State        string
	PostalCode   string
	Password     string
}

// CreateClient registers a client. Duplicates are reported as ErrConflict:
// the upstream signals them with 409 or with an error message mentioning a
// duplicate or an existing record.
func (s *Service) CreateClient(ctx context.Context, nc NewClient) (*Client, error) {
	const op = "booking.CreateClient"

	var missing []string
	for name, v := range map[string]string{"firstName": nc.FirstName, "lastName": nc.LastName, "email": nc.Email} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingParamsError{Fields: missing}
	}

	body := map[string]any{
		"FirstName": strings.TrimSpace(nc.FirstName),
		"LastName":  strings.TrimSpace(nc.LastName),
		"Email":     strings.TrimSpace(nc.Email),
	}
	for key, v := range map[string]string{
		"MobilePhone":  nc.Phone,
		"BirthDate":    nc.BirthDate,
		"Gender":       nc.Gender,
		"AddressLine1": nc.AddressLine1,
		"City":         nc.City,
		"State":        nc.State,
		"PostalCode":   nc.PostalCode,
		"Password":     nc.Password,
	} {
		if v = strings.TrimSpace(v); v != "" {
			body[key] = v
		}
	}

	var resp struct {
		Client upstreamClient `json:"Client"`
	}
	err := s.api.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/client/addclient", Body: body}, &resp)
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := resp.Client.summary()
	return &c, nil
}

func isDuplicate(err error) bool {
	ue, ok := upstream.AsError(err)
	if !ok {
		return false
	}
	return ue.StatusCode == http.StatusConflict || ue.Contains("duplicate", "already exists")
}

type ClientAuth struct {
	Client Client `json:"client"`
	// AuthMethod is "validate" or "email-match". The latter does not check
	// the password at all.
	AuthMethod string `json:"authMethod"`
}

// ClientLogin authenticates a client. In "validate" mode the upstream checks
// the password. In "email-match" mode the client is accepted when a search
// by email returns a case-insensitive exact email match; the password is
// ignored, so this mode is not real authentication and is only kept for
// sites whose upstream lacks credential validation.
func (s *Service) ClientLogin(ctx context.Context, email, password string) (*ClientAuth, error) {
	const op = "booking.ClientLogin"

	email = strings.TrimSpace(email)

	if s.loginMode == config.ClientLoginEmailMatch {
		found, err := s.searchClients(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		for _, c := range found {
			if strings.EqualFold(strings.TrimSpace(c.Email), email) {
				s.log.Debug("client accepted by email match", slog.String("client_id", string(c.ID)))
				return &ClientAuth{Client: c.summary(), AuthMethod: config.ClientLoginEmailMatch}, nil
			}
		}
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	var resp struct {
		Client upstreamClient `json:"Client"`
	}
	err := s.api.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		Path:   "/client/validatelogin",
		Body: map[string]string{
			"Username": email,
			"Password": password,
		},
	}, &resp)
	if err != nil {
		if rejected(err) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Client.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	return &ClientAuth{Client: resp.Client.summary(), AuthMethod: config.ClientLoginValidate}, nil
}

// ForgotPassword asks the upstream to send a reset email. Callers must not
// reveal the outcome to the requester.
func (s *Service) ForgotPassword(ctx context.Context, email, firstName, lastName string) error {
	const op = "booking.ForgotPassword"

	body := map[string]string{"UserEmail": strings.TrimSpace(email)}
	if firstName != "" {
		body["UserFirstName"] = firstName
	}
	if lastName != "" {
		body["UserLastName"] = lastName
	}

	err := s.api.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/client/sendpasswordresetemail", Body: body}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type Appointment struct {
	ID              ID     `json:"id"`
	Status          string `json:"status"`
	StartDateTime   string `json:"startDateTime"`
	EndDateTime     string `json:"endDateTime"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	ClientID        ID     `json:"clientId"`
	SessionTypeID   ID     `json:"sessionTypeId"`
	StaffID         ID     `json:"staffId"`
	LocationID      ID     `json:"locationId"`
	Notes           string `json:"notes,omitempty"`
}

type upstreamAppointment struct {
	ID            ID     `json:"Id"`
	Status        string `json:"Status"`
	StartDateTime string `json:"StartDateTime"`
	EndDateTime   string `json:"EndDateTime"`
	Duration      int    `json:"Duration"`
	ClientID      ID     `json:"ClientId"`
	SessionTypeID ID     `json:"SessionTypeId"`
	StaffID       ID     `json:"StaffId"`
	LocationID    ID     `json:"LocationId"`
	Notes         string `json:"Notes"`
}

func (a upstreamAppointment) reshape() Appointment {
	return Appointment{
		ID:              a.ID,
		Status:          a.Status,
		StartDateTime:   a.StartDateTime,
		EndDateTime:     a.EndDateTime,
		DurationMinutes: a.Duration,
		ClientID:        a.ClientID,
		SessionTypeID:   a.SessionTypeID,
		StaffID:         a.StaffID,
		LocationID:      a.LocationID,
		Notes:           a.Notes,
	}
}

var cancelledStatuses = map[string]bool{
	"cancelled":     true,
	"latecancelled": true,
}

// ClientAppointments returns the client's upcoming, non-cancelled
// appointments ordered by start time.
func (s *Service) ClientAppointments(ctx context.Context, clientID, start, end string) ([]Appointment, error) {
	const op = "booking.ClientAppointments"

	if strings.TrimSpace(clientID) == "" {
		return nil, &MissingParamsError{Fields: []string{"clientId"}}
	}

	start, end = s.dateRange(start, end, clientHistoryDays)
	q := url.Values{
		"ClientIds": {clientID},
		"StartDate": {start},
		"EndDate":   {end},
		"Limit":     {"200"},
	}

	var resp struct {
		Appointments []upstreamAppointment `json:"Appointments"`
	}
	if err := s.api.Do(ctx, upstream.Request{Path: "/appointment/staffappointments", Query: q}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	out := make([]Appointment, 0, len(resp.Appointments))
	for _, a := range resp.Appointments {
		if cancelledStatuses[strings.ToLower(a.Status)] || !after(a.StartDateTime, now) {
			continue
		}
		out = append(out, a.reshape())
	}
	sort.SliceStable(out, func(i, j int) bool { return earlier(out[i].StartDateTime, out[j].StartDateTime) })

	return out, nil
}

type BookRequest struct {
	ClientID      string
	SessionTypeID string
	StaffID       string
	LocationID    string
	StartDateTime string
	Notes         string
}

// Book creates an appointment.
func (s *Service) Book(ctx context.Context, br BookRequest) (*Appointment, error) {
	const op = "booking.Book"

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"clientId", br.ClientID},
		{"sessionTypeId", br.SessionTypeID},
		{"staffId", br.StaffID},
		{"locationId", br.LocationID},
		{"startDateTime", br.StartDateTime},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingParamsError{Fields: missing}
	}

	body := map[string]any{
		"ClientId":      strings.TrimSpace(br.ClientID),
		"SessionTypeId": numeric(br.SessionTypeID),
		"StaffId":       numeric(br.StaffID),
		"LocationId":    numeric(br.LocationID),
		"StartDateTime": strings.TrimSpace(br.StartDateTime),
		"ApplyPayment":  false,
		"SendEmail":     true,
	}
	if br.Notes != "" {
		body["Notes"] = br.Notes
	}

	var resp struct {
		Appointment upstreamAppointment `json:"Appointment"`
	}
	err := s.api.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/appointment/addappointment", Body: body}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a := resp.Appointment.reshape()
	s.log.Info("appointment booked",
		slog.String("appointment_id", string(a.ID)),
		slog.String("client_id", br.ClientID),
	)
	return &a, nil
}
