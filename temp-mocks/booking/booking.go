// Command booking runs a fake booking API with canned data so the gateway
// can be exercised locally. Point MINDBODY_BASE_URL at the printed address.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"serenity/gateway/internal/lib/logger/sl"
	"serenity/gateway/internal/upstream/upstreamtest"
)

const (
	defaultAddr  = "127.0.0.1:8089"
	slotsPerDay  = 6
	daysOffered  = 14
	mockPassword = "password"
)

var staff = []map[string]any{
	{"Id": 101, "FirstName": "Ana", "LastName": "Silva", "Bio": "Deep tissue and sports massage."},
	{"Id": 102, "FirstName": "Ben", "LastName": "Okafor", "Bio": "Facials and skin care."},
	{"Id": 103, "FirstName": "Chloe", "LastName": "Martin", "Bio": "Hot stone and aromatherapy."},
}

var sessionTypes = []map[string]any{
	{"Id": 11, "Name": "Swedish Massage", "Type": "Appointment", "ProgramId": 1, "DefaultTimeLength": 60, "OnlineDescription": "Relaxing full body massage."},
	{"Id": 12, "Name": "Hot Stone Massage", "Type": "Appointment", "ProgramId": 1, "DefaultTimeLength": 90},
	{"Id": 21, "Name": "Signature Facial", "Type": "Appointment", "ProgramId": 2, "DefaultTimeLength": 60},
	{"Id": 31, "Name": "Gift Voucher Consultation", "Type": "Appointment", "ProgramId": 3, "DefaultTimeLength": 30},
	{"Id": 91, "Name": "Morning Yoga", "Type": "Class", "ProgramId": 4, "DefaultTimeLength": 60},
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	addr := os.Getenv("MOCK_ADDRESS")
	if addr == "" {
		addr = defaultAddr
	}

	srv, err := upstreamtest.Listen(addr)
	if err != nil {
		log.Error("failed to start mock booking api", sl.Err(err))
		os.Exit(1)
	}
	defer srv.Close()

	register(srv, log)

	log.Info("mock booking api listening", slog.String("url", srv.URL))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("mock booking api stopped", slog.Int("calls", srv.TotalCalls()))
}

func register(srv *upstreamtest.Server, log *slog.Logger) {
	srv.Handle(http.MethodPost, "/usertoken/issue", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != mockPassword {
			upstreamtest.WriteJSON(w, http.StatusUnauthorized, errorBody("Invalid credentials"))
			return
		}
		log.Debug("token issued", slog.String("username", body.Username))
		upstreamtest.WriteJSON(w, http.StatusOK, map[string]any{
			"TokenType":   "Bearer",
			"AccessToken": fmt.Sprintf("mock-token-%d", time.Now().UnixNano()),
			"Expires":     time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
		})
	})

	srv.JSON(http.MethodGet, "/site/locations", http.StatusOK, map[string]any{
		"Locations": []map[string]any{{
			"Id": 1, "Name": "Serenity Day Spa", "Address": "12 Harbour Street", "City": "Sydney",
			"StateProvCode": "NSW", "PostalCode": "2000", "Phone": "0290000000",
			"Latitude": -33.8688, "Longitude": 151.2093,
		}},
	})
	srv.JSON(http.MethodGet, "/site/sessiontypes", http.StatusOK, map[string]any{"SessionTypes": sessionTypes})
	srv.JSON(http.MethodGet, "/site/programs", http.StatusOK, map[string]any{
		"Programs": []map[string]any{
			{"Id": 1, "Name": "Massage"},
			{"Id": 2, "Name": "Facials"},
			{"Id": 3, "Name": "Services"},
		},
	})
	srv.JSON(http.MethodGet, "/sale/services", http.StatusOK, map[string]any{
		"Services": []map[string]any{
			{"Id": "1001", "Name": "Swedish Massage", "Price": 132.0, "OnlinePrice": 125.0, "TaxIncluded": 12.0},
			{"Id": "1002", "Name": "Hot Stone Massage", "Price": 165.0, "TaxIncluded": 15.0},
			{"Id": "1003", "Name": "Signature Facial", "Price": 110.0, "TaxIncluded": 10.0, "Description": "Cleanse, exfoliate and mask."},
		},
	})
	srv.JSON(http.MethodGet, "/staff/staff", http.StatusOK, map[string]any{"StaffMembers": staff})

	srv.Handle(http.MethodGet, "/appointment/bookableitems", bookableItems)

	srv.Handle(http.MethodGet, "/client/clients", func(w http.ResponseWriter, r *http.Request) {
		text := strings.ToLower(r.URL.Query().Get("SearchText"))
		clients := []map[string]any{}
		if strings.Contains("jane@example.com jane doe", text) {
			clients = append(clients, janeDoe())
		}
		upstreamtest.WriteJSON(w, http.StatusOK, map[string]any{"Clients": clients})
	})
	srv.Handle(http.MethodPost, "/client/addclient", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if strings.EqualFold(fmt.Sprint(body["Email"]), "jane@example.com") {
			upstreamtest.WriteJSON(w, http.StatusBadRequest, errorBody("Duplicate client: a client with this email already exists"))
			return
		}
		body["Id"] = strconv.FormatInt(time.Now().Unix()%1000000, 10)
		upstreamtest.WriteJSON(w, http.StatusOK, map[string]any{"Client": body})
	})
	srv.Handle(http.MethodPost, "/client/validatelogin", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !strings.EqualFold(body.Username, "jane@example.com") || body.Password != mockPassword {
			upstreamtest.WriteJSON(w, http.StatusUnauthorized, errorBody("Invalid login"))
			return
		}
		upstreamtest.WriteJSON(w, http.StatusOK, map[string]any{"Client": janeDoe()})
	})
	srv.JSON(http.MethodPost, "/client/sendpasswordresetemail", http.StatusOK, map[string]any{})

	srv.Handle(http.MethodGet, "/appointment/staffappointments", func(w http.ResponseWriter, r *http.Request) {
		tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
		upstreamtest.WriteJSON(w, http.StatusOK, map[string]any{
			"Appointments": []map[string]any{
				{"Id": 9001, "Status": "Booked", "StartDateTime": tomorrow + "T10:00:00", "EndDateTime": tomorrow + "T11:00:00",
					"SessionTypeId": 11, "StaffId": 101, "LocationId": 1, "ClientId": r.URL.Query().Get("ClientIds")},
				{"Id": 9002, "Status": "Cancelled", "StartDateTime": tomorrow + "T14:00:00", "EndDateTime": tomorrow + "T15:00:00",
					"SessionTypeId": 21, "StaffId": 102, "LocationId": 1, "ClientId": r.URL.Query().Get("ClientIds")},
			},
		})
	})
	srv.Handle(http.MethodPost, "/appointment/addappointment", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["Id"] = time.Now().Unix() % 100000
		body["Status"] = "Booked"
		upstreamtest.WriteJSON(w, http.StatusOK, map[string]any{"Appointment": body})
	})
}

// bookableItems serves slotsPerDay windows per staff member per day,
// paginated by Limit and Offset like the real endpoint.
func bookableItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("Limit"))
	if limit <= 0 {
		limit = 100
	}
	offset, _ := strconv.Atoi(q.Get("Offset"))

	start, err := time.Parse("2006-01-02", q.Get("StartDate"))
	if err != nil {
		start = time.Now()
	}

	var all []map[string]any
	for d := 0; d < daysOffered; d++ {
		day := start.AddDate(0, 0, d).Format("2006-01-02")
		for _, s := range staff {
			for i := 0; i < slotsPerDay; i++ {
				from := fmt.Sprintf("%sT%02d:00:00", day, 9+i)
				to := fmt.Sprintf("%sT%02d:00:00", day, 10+i)
				all = append(all, map[string]any{
					"Id":                  len(all) + 1,
					"StartDateTime":       from,
					"EndDateTime":         to,
					"BookableEndDateTime": from,
					"Staff":               s,
					"SessionType":         map[string]any{"Id": q.Get("SessionTypeIds"), "DefaultTimeLength": 60},
					"Location":            map[string]any{"Id": 1, "Name": "Serenity Day Spa"},
				})
			}
		}
	}

	page := []map[string]any{}
	if offset < len(all) {
		page = all[offset:min(offset+limit, len(all))]
	}

	upstreamtest.WriteJSON(w, http.StatusOK, map[string]any{
		"PaginationResponse": map[string]any{
			"RequestedLimit":  limit,
			"RequestedOffset": offset,
			"PageSize":        len(page),
			"TotalResults":    len(all),
		},
		"Availabilities": page,
	})
}

func janeDoe() map[string]any {
	return map[string]any{
		"Id": "100015", "UniqueId": 100015, "FirstName": "Jane", "LastName": "Doe",
		"Email": "jane@example.com", "MobilePhone": "0400000000", "Status": "Active",
	}
}

func errorBody(msg string) map[string]any {
	return map[string]any{"Error": map[string]string{"Message": msg, "Code": "MockError"}}
}
