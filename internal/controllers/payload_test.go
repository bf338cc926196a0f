package controllers

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSamplePayloadTimestamps(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
		err  bool
	}{
		{"utc", `"2026-05-04T08:00:00Z"`, time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC), false},
		{"no zone means utc", `"2026-05-04T08:00:00.250"`, time.Date(2026, 5, 4, 8, 0, 0, 250e6, time.UTC), false},
		{"offset", `"2026-05-04T03:00:00-05:00"`, time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC), false},
		{"missing", `""`, time.Time{}, false},
		{"garbage", `"yesterday"`, time.Time{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte(`{"actor_id":7,"latitude":40,"longitude":-75,"speed":3.5,"timestamp":` + tc.raw + `}`)
			var p SamplePayload
			err := json.Unmarshal(body, &p)
			if tc.err {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !p.Timestamp.Equal(tc.want) {
				t.Fatalf("timestamp: got=%s want=%s", p.Timestamp, tc.want)
			}
			if p.ActorID != 7 || p.Latitude != 40 || p.Speed == nil || *p.Speed != 3.5 {
				t.Fatalf("fields not decoded: %+v", p)
			}
		})
	}
}
