// Package grid generates regular sampling meshes over a geographic bounding
// box, optionally clipped to an irregular field boundary.
package grid

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terraviva/soilgrid/internal/geodesy"
)

// ErrInvalidParams indicates a non-positive cell area or a degenerate
// bounding box. Classify with eris.Is.
var ErrInvalidParams = eris.New("grid: invalid grid parameters")

// Params are the inputs to a single grid generation run.
type Params struct {
	BBox       geodesy.BBox // area of interest, sw..ne
	CellAreaHa float64      // target cell size in hectares, > 0
	Boundary   geodesy.Ring // optional clipping ring; nil grids the whole box
}

// Cell is one retained rectangle of the sampling mesh. Ring is the closed
// 5-vertex outline in (lng, lat) order starting at the south-west corner.
type Cell struct {
	ID           int          `json:"id"`
	TargetAreaHa float64      `json:"target_area_ha"`
	Ring         geodesy.Ring `json:"ring"`
}

// SamplePoint is the sampling location for a retained cell: the midpoint of
// the cell's lat/lng extents, not a true polygon centroid.
type SamplePoint struct {
	ID         int     `json:"id"`
	GridSizeHa float64 `json:"grid_size_ha"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// Result holds the retained cells and their sample points, both in retention
// order with matching ids starting at 1.
type Result struct {
	Cells  []Cell        `json:"cells"`
	Points []SamplePoint `json:"points"`
}

// Steps returns the lat/lng step sizes in degrees for a cell of the given
// area. Both use the bounding box's south-west latitude as the sole cosine
// reference, so the mesh skews toward the northern edge of large or
// high-latitude boxes. Callers have accepted that approximation.
func Steps(bbox geodesy.BBox, cellAreaHa float64) (latStep, lngStep float64) {
	edgeMeters := math.Sqrt(cellAreaHa * 10000)
	swLat := bbox.MinLat * math.Pi / 180
	latStep = edgeMeters / (geodesy.MetersPerDegree * math.Cos(swLat))
	lngStep = edgeMeters / geodesy.MetersPerDegree
	return latStep, lngStep
}

// Generate enumerates cells of roughly CellAreaHa hectares over the bounding
// box in row-major order (south to north, west to east) and retains those
// that intersect the boundary. Retention is a corner-sampling test: a cell
// is kept iff at least one of its 4 distinct corners lies inside the
// boundary ring. A boundary wholly contained in a cell's interior therefore
// drops that cell; choose cell sizes small relative to boundary concavities.
//
// The ceiling on the cell counts means the last row/column may extend past
// the box's north-east corner; the union of cells is not clipped to the box.
func Generate(p Params) (*Result, error) {
	if !(p.CellAreaHa > 0) {
		return nil, eris.Wrapf(ErrInvalidParams, "cell area %v ha", p.CellAreaHa)
	}
	if p.BBox.Degenerate() {
		return nil, eris.Wrapf(ErrInvalidParams, "degenerate bounding box %+v", p.BBox)
	}

	latStep, lngStep := Steps(p.BBox, p.CellAreaHa)
	numLat := int(math.Ceil((p.BBox.MaxLat - p.BBox.MinLat) / latStep))
	numLng := int(math.Ceil((p.BBox.MaxLng - p.BBox.MinLng) / lngStep))

	res := &Result{}
	id := 0
	for i := 0; i < numLat; i++ {
		minLat := p.BBox.MinLat + float64(i)*latStep
		maxLat := minLat + latStep
		for j := 0; j < numLng; j++ {
			minLng := p.BBox.MinLng + float64(j)*lngStep
			maxLng := minLng + lngStep

			if p.Boundary != nil && !cornerInside(p.Boundary, minLng, minLat, maxLng, maxLat) {
				continue
			}

			id++
			res.Cells = append(res.Cells, Cell{
				ID:           id,
				TargetAreaHa: p.CellAreaHa,
				Ring: geodesy.Ring{
					{Lng: minLng, Lat: minLat},
					{Lng: maxLng, Lat: minLat},
					{Lng: maxLng, Lat: maxLat},
					{Lng: minLng, Lat: maxLat},
					{Lng: minLng, Lat: minLat},
				},
			})
			res.Points = append(res.Points, SamplePoint{
				ID:         id,
				GridSizeHa: p.CellAreaHa,
				Latitude:   (minLat + maxLat) / 2,
				Longitude:  (minLng + maxLng) / 2,
			})
		}
	}

	zap.L().Debug("grid generated",
		zap.Float64("cell_area_ha", p.CellAreaHa),
		zap.Int("rows", numLat),
		zap.Int("cols", numLng),
		zap.Int("retained", len(res.Cells)),
		zap.Bool("clipped", p.Boundary != nil),
	)
	return res, nil
}

// cornerInside tests the cell's 4 distinct corners against the boundary.
func cornerInside(boundary geodesy.Ring, minLng, minLat, maxLng, maxLat float64) bool {
	return boundary.Contains(minLng, minLat) ||
		boundary.Contains(maxLng, minLat) ||
		boundary.Contains(maxLng, maxLat) ||
		boundary.Contains(minLng, maxLat)
}
