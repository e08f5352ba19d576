package upstream

import (
	"errors"
	"testing"
)

func TestParseAvailabilities(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantKey string
		wantLen int
		wantErr error
	}{
		{
			name:    "availabilities",
			body:    `{"PaginationResponse":{"TotalResults":2},"Availabilities":[{"Id":1},{"Id":2}]}`,
			wantKey: "Availabilities",
			wantLen: 2,
		},
		{
			name:    "schedule items",
			body:    `{"ScheduleItems":[{"Id":1}]}`,
			wantKey: "ScheduleItems",
			wantLen: 1,
		},
		{
			name:    "bookable items",
			body:    `{"BookableItems":[{"Id":1},{"Id":2},{"Id":3}]}`,
			wantKey: "BookableItems",
			wantLen: 3,
		},
		{
			name:    "priority order",
			body:    `{"BookableItems":[{"Id":1}],"Availabilities":[]}`,
			wantKey: "Availabilities",
			wantLen: 0,
		},
		{
			name:    "null list",
			body:    `{"Availabilities":null}`,
			wantKey: "Availabilities",
			wantLen: 0,
		},
		{
			name:    "unknown shape",
			body:    `{"Classes":[]}`,
			wantErr: ErrUnknownShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := ParseAvailabilities([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if page.Key != tt.wantKey || len(page.Items) != tt.wantLen {
				t.Fatalf("key = %q len = %d", page.Key, len(page.Items))
			}
		})
	}
}

func TestParseAvailabilitiesPagination(t *testing.T) {
	page, err := ParseAvailabilities([]byte(`{"PaginationResponse":{"RequestedLimit":100,"RequestedOffset":100,"PageSize":100,"TotalResults":250},"Availabilities":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.TotalResults != 250 || page.Pagination.RequestedOffset != 100 {
		t.Fatalf("pagination = %+v", page.Pagination)
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2026-03-02T10:30:00", "2026-03-02T10:30:00Z", "2026-03-02T10:30:00-05:00", "2026-03-02"} {
		if _, ok := ParseTime(s); !ok {
			t.Errorf("ParseTime(%q) failed", s)
		}
	}
	if _, ok := ParseTime("tomorrow"); ok {
		t.Error("ParseTime accepted garbage")
	}
}
