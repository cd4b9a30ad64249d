// Package viewport maps tracked face positions to crop windows.
package viewport

import (
	"errors"
	"fmt"
	"math"

	"github.com/andresmejia3/reframe/internal/types"
)

// ErrTargetTooLarge is returned when the crop does not fit inside the (scaled) source.
var ErrTargetTooLarge = errors.New("target size exceeds source size")

// Size is a frame size in pixels.
type Size struct {
	W int
	H int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.W, s.H)
}

// Window is a crop rectangle inside the source frame.
type Window struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Clamp centers a target-sized window on p where possible and slides it back
// inside the frame near the edges, so the window never leaves the source.
//
// When scale != 1 the source has been resized by that factor before
// cropping; p and source are converted into the scaled space first.
// A scale <= 0 is treated as 1.
func Clamp(p types.FacePoint, source, target Size, scale float64) (Window, error) {
	if scale <= 0 {
		scale = 1
	}
	scaled := Size{
		W: int(math.Round(float64(source.W) * scale)),
		H: int(math.Round(float64(source.H) * scale)),
	}
	if target.W <= 0 || target.H <= 0 {
		return Window{}, fmt.Errorf("invalid target size %s", target)
	}
	if target.W > scaled.W || target.H > scaled.H {
		return Window{}, fmt.Errorf("%w: target %s, source %s", ErrTargetTooLarge, target, scaled)
	}

	x := p.X * scale
	y := p.Y * scale
	return Window{
		X:      clamp(originFor(x, target.W), 0, scaled.W-target.W),
		Y:      clamp(originFor(y, target.H), 0, scaled.H-target.H),
		Width:  target.W,
		Height: target.H,
	}, nil
}

// originFor returns the window origin that centers a span of length size on c.
// Non-finite centers pin the window to the origin.
func originFor(c float64, size int) int {
	v := c - float64(size)/2
	if math.IsNaN(v) {
		return 0
	}
	if math.IsInf(v, 1) || v > math.MaxInt32 {
		return math.MaxInt32
	}
	if math.IsInf(v, -1) || v < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Round(v))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// FrameIndex maps a timestamp to the frame shown at that time:
// min(floor(t*fps), n-1). Negative times map to frame 0; n <= 0 yields -1.
func FrameIndex(t, fps float64, n int) int {
	if n <= 0 {
		return -1
	}
	if t <= 0 || fps <= 0 || math.IsNaN(t) {
		return 0
	}
	f := math.Floor(t * fps)
	if f >= float64(n-1) {
		return n - 1
	}
	return int(f)
}

// ScaleToFit returns the smallest factor by which source must be resized so
// that target fits inside it, or 1 when it already fits.
func ScaleToFit(source, target Size) float64 {
	if source.W <= 0 || source.H <= 0 {
		return 1
	}
	s := math.Max(float64(target.W)/float64(source.W), float64(target.H)/float64(source.H))
	if s < 1 {
		return 1
	}
	return s
}

// AspectTarget returns the largest crop of aspect w:h that fits inside source,
// with even dimensions as most encoders require.
func AspectTarget(source Size, w, h int) (Size, error) {
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("invalid aspect %d:%d", w, h)
	}
	tw := source.W
	th := int(float64(tw) * float64(h) / float64(w))
	if th > source.H {
		th = source.H
		tw = int(float64(th) * float64(w) / float64(h))
	}
	tw -= tw % 2
	th -= th % 2
	if tw <= 0 || th <= 0 {
		return Size{}, fmt.Errorf("aspect %d:%d does not fit in %s", w, h, source)
	}
	return Size{W: tw, H: th}, nil
}
