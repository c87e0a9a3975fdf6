// Package geodesy provides planar geometry over geographic coordinates:
// polygon area in hectares, point-in-polygon tests, and bounding boxes.
// Everything operates in WGS84 degrees; there is no reprojection.
package geodesy

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
)

// MetersPerDegree is the approximate length of one degree of latitude at the
// equator. Longitude degrees shrink with cos(latitude); the conversions below
// apply that correction at a single reference latitude, so accuracy degrades
// for rings spanning large latitude ranges or near the poles.
const MetersPerDegree = 111320.0

// Coord is a single (longitude, latitude) vertex, serialized as a
// two-element [lng, lat] JSON array to match GeoJSON coordinate order.
type Coord struct {
	Lng float64
	Lat float64
}

// MarshalJSON encodes the coordinate as [lng, lat].
func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lng, c.Lat})
}

// UnmarshalJSON decodes a [lng, lat] array.
func (c *Coord) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return eris.Wrap(err, "geodesy: decode coordinate")
	}
	c.Lng, c.Lat = pair[0], pair[1]
	return nil
}

// Ring is an ordered polygon ring of (lng, lat) vertices. Rings are treated
// as implicitly closed: the edge from the last vertex back to the first is
// always considered, whether or not the caller repeated the first vertex.
type Ring []Coord

// Closed reports whether the ring explicitly repeats its first vertex.
func (r Ring) Closed() bool {
	if len(r) < 2 {
		return false
	}
	return r[0] == r[len(r)-1]
}

// AreaHectares computes the ring's enclosed area in hectares using the
// shoelace formula with a local planar approximation: square degrees are
// scaled by MetersPerDegree² · cos(refLat), where refLat is the latitude of
// the ring's first vertex. Valid for field-scale rings that do not cross the
// anti-meridian; the error grows with ring extent and latitude.
func (r Ring) AreaHectares() float64 {
	if len(r) < 3 {
		return 0
	}

	var sum float64
	for i := range r {
		j := (i + 1) % len(r)
		sum += r[i].Lng*r[j].Lat - r[j].Lng*r[i].Lat
	}
	areaDeg := math.Abs(sum) / 2

	refLat := r[0].Lat * math.Pi / 180
	areaM2 := areaDeg * MetersPerDegree * MetersPerDegree * math.Cos(refLat)
	return areaM2 / 10000
}

// Contains reports whether the point (lng, lat) lies inside the ring using
// the even-odd ray-casting rule. The strict yi > y vs yj > y comparison
// gives each edge a half-open vertical extent, so shared vertices are not
// double-counted.
func (r Ring) Contains(lng, lat float64) bool {
	inside := false
	n := len(r)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := r[i].Lng, r[i].Lat
		xj, yj := r[j].Lng, r[j].Lat
		if (yi > lat) != (yj > lat) &&
			lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// BBox is an axis-aligned geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// NewBBox builds a bounding box from (south_west, north_east) corners given
// as (lat, lng) pairs, the order used by map-UI uploads.
func NewBBox(swLat, swLng, neLat, neLng float64) BBox {
	return BBox{MinLng: swLng, MinLat: swLat, MaxLng: neLng, MaxLat: neLat}
}

// Degenerate reports whether the box has zero or negative extent on either
// axis. Grid generation over a degenerate box must fail fast.
func (b BBox) Degenerate() bool {
	return !(b.MaxLat > b.MinLat) || !(b.MaxLng > b.MinLng)
}

// Center returns the arithmetic midpoint of the box as (lng, lat).
func (b BBox) Center() Coord {
	return Coord{
		Lng: (b.MinLng + b.MaxLng) / 2,
		Lat: (b.MinLat + b.MaxLat) / 2,
	}
}

// RingBBox derives the bounding box of a vertex ring.
func RingBBox(r Ring) (BBox, error) {
	if len(r) == 0 {
		return BBox{}, eris.New("geodesy: empty ring")
	}
	b := BBox{
		MinLng: r[0].Lng, MinLat: r[0].Lat,
		MaxLng: r[0].Lng, MaxLat: r[0].Lat,
	}
	for _, c := range r[1:] {
		b.MinLng = math.Min(b.MinLng, c.Lng)
		b.MinLat = math.Min(b.MinLat, c.Lat)
		b.MaxLng = math.Max(b.MaxLng, c.Lng)
		b.MaxLat = math.Max(b.MaxLat, c.Lat)
	}
	return b, nil
}
