// Package smooth removes detector jitter from a dense per-frame trajectory.
//
// Three strategies are available and selected by Config.Strategy:
//
//   - savgol: local cubic fit in a sliding odd window (default). Keeps
//     motion curvature, needs the whole signal.
//   - gaussian: Gaussian kernel convolution. Always stable, lags a little
//     on sharp moves.
//   - kalman: causal position/velocity/acceleration filter. Uses no future
//     samples, so the first few outputs carry startup bias.
//
// Every strategy returns exactly as many samples as it was given, and
// signals of length 0 or 1 are returned unchanged.
package smooth

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/reframe/internal/gapfill"
)

// Strategy names accepted by New.
const (
	StrategySavGol   = "savgol"
	StrategyGaussian = "gaussian"
	StrategyKalman   = "kalman"
)

// ErrUnknownStrategy is returned by New for unrecognised strategy names.
var ErrUnknownStrategy = errors.New("unknown smoothing strategy")

// Smoother filters one channel of a trajectory.
type Smoother interface {
	Name() string
	Smooth(values []float64) []float64
}

// Config selects and parameterises a Smoother.
type Config struct {
	Strategy         string
	Window           int
	Order            int
	Sigma            float64
	ProcessNoise     float64
	MeasurementNoise float64
}

// DefaultConfig returns the savgol(11, 3) configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:         StrategySavGol,
		Window:           11,
		Order:            3,
		Sigma:            2,
		ProcessNoise:     DefaultProcessNoise,
		MeasurementNoise: DefaultMeasurementNoise,
	}
}

// New builds the Smoother described by cfg.
func New(cfg Config) (Smoother, error) {
	switch cfg.Strategy {
	case StrategySavGol, "":
		if cfg.Window < 1 {
			return nil, fmt.Errorf("savgol window must be >= 1, got %d", cfg.Window)
		}
		if cfg.Order < 0 {
			return nil, fmt.Errorf("savgol order must be >= 0, got %d", cfg.Order)
		}
		return &SavitzkyGolay{Window: cfg.Window, Order: cfg.Order}, nil
	case StrategyGaussian:
		if cfg.Sigma < 0 {
			return nil, fmt.Errorf("gaussian sigma must be >= 0, got %v", cfg.Sigma)
		}
		return &Gaussian{Sigma: cfg.Sigma}, nil
	case StrategyKalman:
		if cfg.ProcessNoise <= 0 || cfg.MeasurementNoise <= 0 {
			return nil, fmt.Errorf("kalman noise must be > 0, got q=%v r=%v", cfg.ProcessNoise, cfg.MeasurementNoise)
		}
		return &Kalman{ProcessNoise: cfg.ProcessNoise, MeasurementNoise: cfg.MeasurementNoise}, nil
	default:
		return nil, fmt.Errorf("%w %q (want savgol, gaussian or kalman)", ErrUnknownStrategy, cfg.Strategy)
	}
}

// Apply smooths the x and y channels independently.
func Apply(s Smoother, d gapfill.DenseSignal) gapfill.DenseSignal {
	return gapfill.DenseSignal{
		X: s.Smooth(d.X),
		Y: s.Smooth(d.Y),
	}
}

func clone(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
