package geo

import (
	"encoding/binary"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// SRID of every geometry the tracker produces (WGS84).
const SRID = 4326

// Point builds a WGS84 point. go-geom orders coordinates lng, lat.
func Point(lat, lng float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(SRID)
}

// PointWKB encodes a point as little-endian WKB.
func PointWKB(lat, lng float64) ([]byte, error) {
	return wkb.Marshal(Point(lat, lng), binary.LittleEndian)
}

// PointFromWKB decodes WKB written by PointWKB and returns lat, lng.
func PointFromWKB(b []byte) (lat, lng float64, err error) {
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return 0, 0, err
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, fmt.Errorf("geo: expected point, got %T", g)
	}
	return p.Y(), p.X(), nil
}

// Feature is one point with display properties for a map layer.
type Feature struct {
	ID         string
	Lat, Lng   float64
	Properties map[string]interface{}
}

// FeatureCollection renders features as a GeoJSON FeatureCollection.
func FeatureCollection(features []Feature) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         f.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{f.Lng, f.Lat}),
			Properties: f.Properties,
		})
	}
	return fc.MarshalJSON()
}
