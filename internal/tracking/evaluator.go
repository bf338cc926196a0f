package tracking

import (
	"landscape_tracker/internal/geo"
	"landscape_tracker/internal/models"
)

// Classification is the result of comparing one sample against a geofence.
type Classification struct {
	DistanceMeters float64 `json:"distance_meters"`
	Inside         bool    `json:"inside"`
}

// State maps the classification onto the detector's proximity state.
func (c Classification) State() string {
	if c.Inside {
		return models.ProximityInside
	}
	return models.ProximityOutside
}

// Classify measures the great-circle distance from the sample to the
// geofence center. The boundary is inclusive.
func Classify(sample models.LocationSample, fence models.Geofence) Classification {
	d := geo.Distance(sample.Latitude, sample.Longitude, fence.CenterLat, fence.CenterLng)
	return Classification{
		DistanceMeters: d,
		Inside:         d <= fence.RadiusMeters,
	}
}
