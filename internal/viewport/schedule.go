package viewport

import (
	"errors"

	"github.com/andresmejia3/reframe/internal/types"
)

// Schedule answers "where is the crop window at time t" for one video.
// It holds no mutable state, so one Schedule can serve concurrent renderers.
type Schedule struct {
	Track  types.Track
	FPS    float64
	Source Size
	Target Size
	Scale  float64
}

// At returns the crop window for the frame shown at time t (seconds).
func (s Schedule) At(t float64) (Window, error) {
	idx := FrameIndex(t, s.FPS, len(s.Track))
	if idx < 0 {
		return Window{}, errors.New("empty track")
	}
	return Clamp(s.Track[idx], s.Source, s.Target, s.Scale)
}

// Sample evaluates the schedule every step seconds over [0, duration).
func (s Schedule) Sample(duration, step float64) ([]Keyframe, error) {
	if step <= 0 {
		return nil, errors.New("step must be > 0")
	}
	var out []Keyframe
	for i := 0; ; i++ {
		t := float64(i) * step
		if t >= duration {
			break
		}
		w, err := s.At(t)
		if err != nil {
			return nil, err
		}
		out = append(out, Keyframe{Time: t, Frame: FrameIndex(t, s.FPS, len(s.Track)), Window: w})
	}
	return out, nil
}

// Keyframe is one sampled point of a Schedule.
type Keyframe struct {
	Time  float64 `json:"t"`
	Frame int     `json:"frame"`
	Window
}
