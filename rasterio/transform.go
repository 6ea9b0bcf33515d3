package rasterio

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// Transform reprojects points and extents between two spatial references.
// A transform is created per source per task and must not be shared across
// goroutines.
type Transform struct {
	identity bool
	src      *godal.SpatialRef
	dst      *godal.SpatialRef
	tr       *godal.Transform
}

// NewTransform builds a coordinate transform between two CRS strings.
// Identical CRS strings short-circuit to the identity transform without
// touching the georeferencing library.
func NewTransform(srcCRS, dstCRS string) (*Transform, error) {
	if srcCRS == dstCRS || len(srcCRS) == 0 || len(dstCRS) == 0 {
		return &Transform{identity: true}, nil
	}

	src, err := newSpatialRef(srcCRS)
	if err != nil {
		return nil, err
	}
	dst, err := newSpatialRef(dstCRS)
	if err != nil {
		src.Close()
		return nil, err
	}
	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		src.Close()
		dst.Close()
		return nil, fmt.Errorf("cannot build transform: %v", err)
	}
	return &Transform{src: src, dst: dst, tr: tr}, nil
}

func newSpatialRef(crs string) (*godal.SpatialRef, error) {
	var code int
	if n, err := fmt.Sscanf(crs, "EPSG:%d", &code); err == nil && n == 1 {
		return godal.NewSpatialRefFromEPSG(code)
	}
	return godal.NewSpatialRefFromWKT(crs)
}

func (t *Transform) Close() {
	if t.identity {
		return
	}
	t.tr.Close()
	t.src.Close()
	t.dst.Close()
}

// Points transforms a batch of points. Points that fail to transform are
// reported through the second return value.
func (t *Transform) Points(pts []orb.Point) ([]orb.Point, []bool, error) {
	ok := make([]bool, len(pts))
	if t.identity {
		out := make([]orb.Point, len(pts))
		copy(out, pts)
		for i := range ok {
			ok[i] = true
		}
		return out, ok, nil
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, pt := range pts {
		xs[i] = pt[0]
		ys[i] = pt[1]
	}
	if err := t.tr.TransformEx(xs, ys, nil, ok); err != nil {
		return nil, nil, fmt.Errorf("point transform failed: %v", err)
	}

	out := make([]orb.Point, len(pts))
	for i := range pts {
		out[i] = orb.Point{xs[i], ys[i]}
	}
	return out, ok, nil
}

// Bound reprojects an extent by transforming its corners and edge midpoints
// and taking the bounding box of the successful ones. The second return is
// false when no part of the extent survives the transform.
func (t *Transform) Bound(b orb.Bound) (orb.Bound, bool) {
	if t.identity {
		return b, true
	}

	midX := (b.Min[0] + b.Max[0]) / 2
	midY := (b.Min[1] + b.Max[1]) / 2
	pts := []orb.Point{
		{b.Min[0], b.Min[1]}, {b.Min[0], b.Max[1]},
		{b.Max[0], b.Min[1]}, {b.Max[0], b.Max[1]},
		{midX, b.Min[1]}, {midX, b.Max[1]},
		{b.Min[0], midY}, {b.Max[0], midY},
	}

	out, ok, err := t.Points(pts)
	if err != nil {
		return orb.Bound{}, false
	}

	res := orb.Bound{
		Min: orb.Point{math.MaxFloat64, math.MaxFloat64},
		Max: orb.Point{-math.MaxFloat64, -math.MaxFloat64},
	}
	any := false
	for i, pt := range out {
		if !ok[i] || math.IsInf(pt[0], 0) || math.IsNaN(pt[0]) || math.IsInf(pt[1], 0) || math.IsNaN(pt[1]) {
			continue
		}
		any = true
		res.Min[0] = math.Min(res.Min[0], pt[0])
		res.Min[1] = math.Min(res.Min[1], pt[1])
		res.Max[0] = math.Max(res.Max[0], pt[0])
		res.Max[1] = math.Max(res.Max[1], pt[1])
	}
	if !any {
		return orb.Bound{}, false
	}
	return res, true
}
