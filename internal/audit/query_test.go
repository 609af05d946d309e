package audit

import (
	"encoding/json"
	"testing"
	"time"
)

func TestQueryNormalize(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, DefaultQueryLimit},
		{-5, DefaultQueryLimit},
		{25, 25},
		{MaxQueryLimit, MaxQueryLimit},
		{MaxQueryLimit + 1, MaxQueryLimit},
	}
	for _, tc := range cases {
		got := Query{UserID: "u1", Limit: tc.in}.Normalize()
		if got.Limit != tc.want || got.UserID != "u1" {
			t.Fatalf("Normalize(%d) = %+v, want limit %d", tc.in, got, tc.want)
		}
	}
}

func TestRecordJSONFlattensEvent(t *testing.T) {
	rec := Record{
		ID: 7,
		Event: Event{
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			EventType: "login",
			UserID:    "u1",
			Success:   true,
		},
		User: &RecordUser{FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.com"},
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got["event_type"] != "login" || got["user_id"] != "u1" || got["id"] != float64(7) {
		t.Fatalf("expected event fields at the top level, got %s", raw)
	}
	user, ok := got["user"].(map[string]any)
	if !ok || user["email"] != "ada@x.com" {
		t.Fatalf("expected nested user, got %s", raw)
	}
	if _, ok := user["phoneNumber"]; ok {
		t.Fatalf("expected empty phone omitted, got %s", raw)
	}
}
