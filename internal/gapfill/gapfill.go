// Package gapfill densifies a sparse per-frame detection signal.
package gapfill

import "github.com/andresmejia3/reframe/internal/types"

// DenseSignal holds one (x, y) pair per frame with no gaps.
type DenseSignal struct {
	X []float64
	Y []float64
}

// Len returns the number of frames in the signal.
func (d DenseSignal) Len() int {
	return len(d.X)
}

// Stats describes the raw input that produced a DenseSignal.
type Stats struct {
	Frames int
	Valid  int
	// Degenerate is set when no frame had a detection and the signal
	// fell back to the frame center.
	Degenerate bool
}

// Fill interpolates missing samples linearly between the nearest valid
// neighbours and holds the first/last valid value across leading and
// trailing gaps. With no valid samples every frame is the frame center.
func Fill(samples []types.RawSample, frameCount, width, height int) (DenseSignal, Stats) {
	if frameCount < 0 {
		frameCount = 0
	}
	out := DenseSignal{
		X: make([]float64, frameCount),
		Y: make([]float64, frameCount),
	}
	valid := make([]bool, frameCount)

	for _, s := range samples {
		if !s.Valid() || s.Frame < 0 || s.Frame >= frameCount {
			continue
		}
		out.X[s.Frame] = s.Point.X
		out.Y[s.Frame] = s.Point.Y
		valid[s.Frame] = true
	}

	idx := make([]int, 0, frameCount)
	for i, ok := range valid {
		if ok {
			idx = append(idx, i)
		}
	}
	stats := Stats{Frames: frameCount, Valid: len(idx)}

	if len(idx) == 0 {
		stats.Degenerate = frameCount > 0
		cx, cy := float64(width)/2, float64(height)/2
		for i := range out.X {
			out.X[i] = cx
			out.Y[i] = cy
		}
		return out, stats
	}

	first, last := idx[0], idx[len(idx)-1]
	for i := 0; i < first; i++ {
		out.X[i], out.Y[i] = out.X[first], out.Y[first]
	}
	for i := last + 1; i < frameCount; i++ {
		out.X[i], out.Y[i] = out.X[last], out.Y[last]
	}

	for k := 0; k+1 < len(idx); k++ {
		lo, hi := idx[k], idx[k+1]
		if hi-lo < 2 {
			continue
		}
		span := float64(hi - lo)
		for i := lo + 1; i < hi; i++ {
			t := float64(i-lo) / span
			out.X[i] = lerp(out.X[lo], out.X[hi], t)
			out.Y[i] = lerp(out.Y[lo], out.Y[hi], t)
		}
	}
	return out, stats
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
