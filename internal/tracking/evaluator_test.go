package tracking_test

import (
	"math"
	"testing"

	"landscape_tracker/internal/geo"
	"landscape_tracker/internal/models"
	"landscape_tracker/internal/tracking"
)

func TestClassifyOneKilometerOutside(t *testing.T) {
	fence := models.Geofence{CenterLat: 0, CenterLng: 0, RadiusMeters: 500}
	// 1 km north of the equator/prime meridian crossing.
	sample := models.LocationSample{Latitude: 1000 / geo.EarthRadiusMeters * 180 / math.Pi, Longitude: 0}

	got := tracking.Classify(sample, fence)
	if math.Abs(got.DistanceMeters-1000) > 0.5 {
		t.Fatalf("distance mismatch: got=%.3f want=1000", got.DistanceMeters)
	}
	if got.Inside {
		t.Fatalf("expected outside")
	}
	if got.State() != models.ProximityOutside {
		t.Fatalf("state mismatch: got=%s", got.State())
	}
}

func TestClassifyBoundaryIsInside(t *testing.T) {
	sample := models.LocationSample{Latitude: awayLat, Longitude: awayLng}
	d := geo.Distance(awayLat, awayLng, siteLat, siteLng)

	onEdge := tracking.Classify(sample, models.Geofence{CenterLat: siteLat, CenterLng: siteLng, RadiusMeters: d})
	if !onEdge.Inside {
		t.Fatalf("sample exactly on the boundary should be inside (d=%.6f)", d)
	}

	justOut := tracking.Classify(sample, models.Geofence{CenterLat: siteLat, CenterLng: siteLng, RadiusMeters: math.Nextafter(d, 0)})
	if justOut.Inside {
		t.Fatalf("sample beyond the boundary should be outside")
	}
}

func TestValidateGeofence(t *testing.T) {
	cases := []struct {
		name   string
		jobID  uint
		lat    float64
		lng    float64
		radius float64
		field  string
	}{
		{"missing job", 0, 40, -75, 50, "job_id"},
		{"latitude", 1, 91, -75, 50, "center_lat"},
		{"longitude", 1, 40, -181, 50, "center_lng"},
		{"zero radius", 1, 40, -75, 0, "radius_meters"},
		{"negative radius", 1, 40, -75, -5, "radius_meters"},
		{"nan radius", 1, 40, -75, math.NaN(), "radius_meters"},
		{"ok", 1, 40, -75, 50, ""},
		{"large radius still ok", 1, 40, -75, 5000, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tracking.ValidateGeofence(tc.jobID, tc.lat, tc.lng, tc.radius)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *tracking.ValidationError
			if !asValidation(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field mismatch: got=%s want=%s", verr.Field, tc.field)
			}
		})
	}
}

func TestGeofenceUpsertReplaces(t *testing.T) {
	h := newHarness(t)
	h.fence(3)
	if _, err := h.fences.Upsert(h.ctx, 3, 41, -74, 120); err != nil {
		t.Fatalf("replace geofence: %v", err)
	}
	got, err := h.fences.Get(h.ctx, 3)
	if err != nil || got == nil {
		t.Fatalf("get geofence: %v", err)
	}
	if got.CenterLat != 41 || got.CenterLng != -74 || got.RadiusMeters != 120 {
		t.Fatalf("geofence not replaced: %+v", got)
	}
	if len(got.Geometry) == 0 {
		t.Fatalf("expected WKB geometry")
	}

	missing, err := h.fences.Get(h.ctx, 99)
	if err != nil || missing != nil {
		t.Fatalf("expected absent geofence, got %+v err=%v", missing, err)
	}
	if _, err := h.fences.Lookup(h.ctx, 99); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
