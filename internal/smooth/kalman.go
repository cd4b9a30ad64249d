package smooth

import (
	"fmt"
	"math"
)

// Default noise covariances for the causal filter, in squared pixels.
const (
	DefaultProcessNoise     = 0.05
	DefaultMeasurementNoise = 25.0
)

// Kalman is a causal filter over the state [position, velocity, acceleration]
// with a unit time step per sample. The state starts at the first
// observation with zero velocity and acceleration.
type Kalman struct {
	ProcessNoise     float64
	MeasurementNoise float64
}

func (k *Kalman) Name() string {
	return fmt.Sprintf("kalman(q=%g,r=%g)", k.ProcessNoise, k.MeasurementNoise)
}

// kalmanState holds the state vector and its 3x3 covariance (row-major).
type kalmanState struct {
	x [3]float64
	P [9]float64
}

func (k *Kalman) init(z float64) kalmanState {
	return kalmanState{
		x: [3]float64{z, 0, 0},
		P: [9]float64{
			k.MeasurementNoise, 0, 0,
			0, 1, 0,
			0, 0, 1,
		},
	}
}

func (k *Kalman) Smooth(values []float64) []float64 {
	n := len(values)
	if n < 2 {
		return clone(values)
	}

	out := make([]float64, n)
	s := k.init(values[0])
	out[0] = s.x[0]
	for i := 1; i < n; i++ {
		k.predict(&s)
		k.update(&s, values[i])
		if !s.finite() {
			s = k.init(values[i])
		}
		out[i] = s.x[0]
	}
	return out
}

// predict applies x' = F x and P' = F P F^T + Q with
//
//	F = [1 1 0.5]
//	    [0 1 1  ]
//	    [0 0 1  ]
func (k *Kalman) predict(s *kalmanState) {
	s.x[0] += s.x[1] + 0.5*s.x[2]
	s.x[1] += s.x[2]

	P := s.P
	var FP [9]float64
	for j := 0; j < 3; j++ {
		FP[0*3+j] = P[0*3+j] + P[1*3+j] + 0.5*P[2*3+j]
		FP[1*3+j] = P[1*3+j] + P[2*3+j]
		FP[2*3+j] = P[2*3+j]
	}
	for i := 0; i < 3; i++ {
		s.P[i*3+0] = FP[i*3+0] + FP[i*3+1] + 0.5*FP[i*3+2]
		s.P[i*3+1] = FP[i*3+1] + FP[i*3+2]
		s.P[i*3+2] = FP[i*3+2]
	}

	for i := 0; i < 3; i++ {
		s.P[i*3+i] += k.ProcessNoise
	}
}

// update applies the measurement z of the position with H = [1 0 0].
func (k *Kalman) update(s *kalmanState, z float64) {
	S := s.P[0] + k.MeasurementNoise
	if S <= 0 {
		return
	}
	var K [3]float64
	for i := 0; i < 3; i++ {
		K[i] = s.P[i*3+0] / S
	}

	y := z - s.x[0]
	for i := 0; i < 3; i++ {
		s.x[i] += K[i] * y
	}

	// P' = (I - K H) P; only the first column of K H is non-zero.
	var newP [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			newP[i*3+j] = s.P[i*3+j] - K[i]*s.P[0*3+j]
		}
	}
	s.P = newP
}

func (s *kalmanState) finite() bool {
	for _, v := range s.x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		v := s.P[i*3+i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
