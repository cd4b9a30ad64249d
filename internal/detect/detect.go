// Package detect turns a sequential frame stream into per-frame raw face samples.
package detect

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/reframe/internal/types"
)

// DefaultThreshold is the minimum detector confidence for a face to count.
const DefaultThreshold = 0.5

// ErrInvalidStride is returned for sampling strides below 1.
var ErrInvalidStride = errors.New("sampling stride must be >= 1")

// Detector is the external face-detection capability.
// Implementations are not assumed to be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, frame []byte, width, height int) ([]types.Detection, error)
	Close() error
}

// FrameSource is a sequential video reader. NextFrame returns io.EOF after the last frame.
type FrameSource interface {
	FrameCount() int
	Width() int
	Height() int
	NextFrame() ([]byte, error)
}

// SamplingPolicy selects which frames are sent to the detector.
type SamplingPolicy struct {
	// Stride 1 detects on every frame; N detects on frames 0, N, 2N, ...
	Stride int
}

// EveryFrame is the policy that runs detection on all frames.
var EveryFrame = SamplingPolicy{Stride: 1}

// Validate rejects unusable strides.
func (p SamplingPolicy) Validate() error {
	if p.Stride < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidStride, p.Stride)
	}
	return nil
}

// Sampled reports whether frame idx is sent to the detector.
func (p SamplingPolicy) Sampled(idx int) bool {
	return idx%p.Stride == 0
}

// Adapter wraps a Detector and applies the single-subject selection rules.
type Adapter struct {
	Detector  Detector
	Threshold float64
	// OnFrame is called after every frame read, sampled or not.
	OnFrame func(frame int)
}

// NewAdapter returns an Adapter with the default confidence threshold.
func NewAdapter(d Detector) *Adapter {
	return &Adapter{Detector: d, Threshold: DefaultThreshold}
}

// Sample reads src to the end and returns one RawSample per frame read.
// Any read or detector error aborts the whole video.
func (a *Adapter) Sample(ctx context.Context, src FrameSource, policy SamplingPolicy) ([]types.RawSample, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	width, height := src.Width(), src.Height()

	capacity := src.FrameCount()
	if capacity < 0 {
		capacity = 0
	}
	samples := make([]types.RawSample, 0, capacity)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.NextFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %d: %w", idx, err)
		}

		sample := types.RawSample{Frame: idx}
		if policy.Sampled(idx) {
			dets, err := a.Detector.Detect(ctx, frame, width, height)
			if err != nil {
				return nil, fmt.Errorf("detection failed on frame %d: %w", idx, err)
			}
			sample.Point = a.pick(dets, width, height)
		}
		samples = append(samples, sample)

		if a.OnFrame != nil {
			a.OnFrame(idx)
		}
	}
	return samples, nil
}

// pick returns the center of the first detection if it clears the threshold.
func (a *Adapter) pick(dets []types.Detection, width, height int) *types.Point {
	if len(dets) == 0 {
		return nil
	}
	top := dets[0]
	if top.Confidence < a.Threshold {
		return nil
	}
	c := top.Center(width, height)
	return &c
}
