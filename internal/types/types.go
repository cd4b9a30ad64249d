package types

import (
	"fmt"
	"math"
)

// Detection is one face region as reported by the external detector.
// Box coordinates are normalized to [0,1] of the frame size.
type Detection struct {
	XMin       float64 `msgpack:"x"`
	YMin       float64 `msgpack:"y"`
	Width      float64 `msgpack:"w"`
	Height     float64 `msgpack:"h"`
	Confidence float64 `msgpack:"c"`
}

// Center returns the box center in source-pixel coordinates.
func (d Detection) Center(frameWidth, frameHeight int) Point {
	return Point{
		X: (d.XMin + d.Width/2) * float64(frameWidth),
		Y: (d.YMin + d.Height/2) * float64(frameHeight),
	}
}

// Point is a position in source-pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// RawSample is the detector output for one frame. Point is nil when no face
// was found or its confidence was below threshold.
type RawSample struct {
	Frame int
	Point *Point
}

// Valid reports whether the sample carries a detection.
func (s RawSample) Valid() bool {
	return s.Point != nil
}

// FacePoint is the smoothed subject position for one frame.
type FacePoint struct {
	Frame int     `json:"frame"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Track is the per-frame subject trajectory of a whole video.
type Track []FacePoint

// Validate checks that the track covers frames 0..n-1 in order with finite positions.
func (t Track) Validate(n int) error {
	if len(t) != n {
		return fmt.Errorf("track has %d points, want %d", len(t), n)
	}
	for i, p := range t {
		if p.Frame != i {
			return fmt.Errorf("point %d has frame %d", i, p.Frame)
		}
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("point %d is not finite: (%v, %v)", i, p.X, p.Y)
		}
	}
	return nil
}
