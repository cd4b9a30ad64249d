// Package pipeline turns videos into cached, smoothed face tracks.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/andresmejia3/reframe/internal/detect"
	"github.com/andresmejia3/reframe/internal/gapfill"
	"github.com/andresmejia3/reframe/internal/smooth"
	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/types"
	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/andresmejia3/reframe/internal/video"
)

// Source is a frame source that owns resources.
type Source interface {
	detect.FrameSource
	io.Closer
}

// SourceOpener opens the frames of the video at path.
type SourceOpener func(ctx context.Context, path string) (Source, error)

// DetectorFactory creates a detector for one worker. Detectors are never shared.
type DetectorFactory func(ctx context.Context, worker int) (detect.Detector, error)

// KeyFunc maps a video path to its cache key.
type KeyFunc func(path string) (string, error)

// OpenVideo opens path with ffmpeg.
func OpenVideo(ctx context.Context, path string) (Source, error) {
	src, err := video.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// BaseNameKey is the default KeyFunc: the slug of the file's base name.
func BaseNameKey(path string) (string, error) {
	return utils.CacheKey(path), nil
}

// Pipeline computes tracks with read-through caching. A Pipeline may be
// used from several goroutines; work on the same cache key is serialized.
type Pipeline struct {
	Cache       store.Cache
	Smoother    smooth.Smoother
	Policy      detect.SamplingPolicy
	Threshold   float64
	NewDetector DetectorFactory
	OpenSource  SourceOpener
	KeyFunc     KeyFunc
	// Logger receives cache hits and warnings; nil discards them.
	Logger *log.Logger
	// OnFrame is called for every frame decoded on a cache miss.
	OnFrame func(path string, frame int)

	locks store.KeyLocks
}

// New returns a Pipeline with default sampling, threshold, smoothing and keys.
func New(cache store.Cache, open SourceOpener, newDetector DetectorFactory) *Pipeline {
	s, _ := smooth.New(smooth.DefaultConfig())
	return &Pipeline{
		Cache:       cache,
		Smoother:    s,
		Policy:      detect.EveryFrame,
		Threshold:   detect.DefaultThreshold,
		NewDetector: newDetector,
		OpenSource:  open,
		KeyFunc:     BaseNameKey,
	}
}

// Result is the outcome for one video of a batch.
type Result struct {
	Path   string
	Key    string
	Track  types.Track
	Cached bool
	Err    error
}

// ComputeTrack returns the track for path, from the cache when present.
// A failed computation leaves the cache untouched.
func (p *Pipeline) ComputeTrack(ctx context.Context, path string) (types.Track, error) {
	var det detect.Detector
	defer func() {
		if det != nil {
			det.Close()
		}
	}()
	r := p.compute(ctx, 0, path, &det)
	return r.Track, r.Err
}

// ComputeAll processes paths with at most workers videos in flight. Each
// worker owns one detector for its lifetime. Results are in input order and
// a failing video never prevents the others from completing.
func (p *Pipeline) ComputeAll(ctx context.Context, paths []string, workers int) []Result {
	results := make([]Result, len(paths))
	if len(paths) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			var det detect.Detector
			defer func() {
				if det != nil {
					det.Close()
				}
			}()
			for idx := range jobs {
				results[idx] = p.compute(ctx, workerID, paths[idx], &det)
			}
		}(i)
	}

	for idx := range paths {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
	return results
}

// compute runs one video. *det is created on the first cache miss and
// discarded after a failure, since a detector that errored mid-stream may
// be out of sync.
func (p *Pipeline) compute(ctx context.Context, workerID int, path string, det *detect.Detector) Result {
	res := Result{Path: path}

	keyFn := p.KeyFunc
	if keyFn == nil {
		keyFn = BaseNameKey
	}
	key, err := keyFn(path)
	if err != nil {
		res.Err = fmt.Errorf("failed to derive cache key for %s: %w", path, err)
		return res
	}
	res.Key = key

	unlock := p.locks.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	track, ok, err := p.Cache.Load(ctx, key)
	switch {
	case err != nil:
		p.logger().Printf("[CACHE] ⚠️  Ignoring unreadable entry %q: %v", key, err)
	case ok:
		p.logger().Printf("[CACHE] Loaded cached face tracking for %s from %q (%d frames)", path, key, len(track))
		res.Track = track
		res.Cached = true
		return res
	}

	if *det == nil {
		if p.NewDetector == nil {
			res.Err = fmt.Errorf("no detector configured")
			return res
		}
		d, err := p.NewDetector(ctx, workerID)
		if err != nil {
			res.Err = fmt.Errorf("failed to start detector: %w", err)
			return res
		}
		*det = d
	}

	track, err = p.track(ctx, path, *det)
	if err != nil {
		res.Err = discardDetector(*det, err)
		*det = nil
		return res
	}

	if err := p.Cache.Store(ctx, key, track); err != nil {
		p.logger().Printf("[CACHE] ⚠️  Failed to cache %q: %v", key, err)
	}
	res.Track = track
	return res
}

// discardDetector closes a detector after a failed video. If the detector
// did not exit cleanly, whatever it logged is attached to err.
func discardDetector(d detect.Detector, err error) error {
	if closeErr := d.Close(); closeErr != nil {
		if l, ok := d.(interface{ Logs() string }); ok && l.Logs() != "" {
			return fmt.Errorf("%w\nDETECTOR CRASH LOGS (%v):\n%s", err, closeErr, l.Logs())
		}
	}
	return err
}

// track runs Sample -> Fill -> Smooth for one video.
func (p *Pipeline) track(ctx context.Context, path string, det detect.Detector) (types.Track, error) {
	if p.OpenSource == nil {
		return nil, fmt.Errorf("no frame source configured")
	}
	src, err := p.OpenSource(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer src.Close()

	adapter := &detect.Adapter{Detector: det, Threshold: p.Threshold}
	if p.OnFrame != nil {
		adapter.OnFrame = func(frame int) { p.OnFrame(path, frame) }
	}

	samples, err := adapter.Sample(ctx, src, p.Policy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	n := len(samples)
	dense, stats := gapfill.Fill(samples, n, src.Width(), src.Height())
	if stats.Degenerate {
		p.logger().Printf("[TRACK] ⚠️  No face detected in %s; holding frame center for all %d frames", path, n)
	}

	smoother := p.Smoother
	if smoother == nil {
		smoother, _ = smooth.New(smooth.DefaultConfig())
	}
	smoothed := smooth.Apply(smoother, dense)

	track := make(types.Track, n)
	for i := range track {
		track[i] = types.FacePoint{Frame: i, X: smoothed.X[i], Y: smoothed.Y[i]}
	}
	if err := track.Validate(n); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return track, nil
}

var discard = log.New(io.Discard, "", 0)

func (p *Pipeline) logger() *log.Logger {
	if p.Logger == nil {
		return discard
	}
	return p.Logger
}
