package smooth

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SavitzkyGolay fits a polynomial of degree Order over a sliding window of
// Window samples and takes the fitted value at the window center. The first
// and last half-windows are evaluated on the polynomial fitted to the first
// and last full window.
type SavitzkyGolay struct {
	Window int
	Order  int
}

func (s *SavitzkyGolay) Name() string {
	return fmt.Sprintf("savgol(window=%d,order=%d)", s.Window, s.Order)
}

// effective shrinks the window to the largest odd size <= n and lowers the
// order so the fit stays determined.
func (s *SavitzkyGolay) effective(n int) (window, order int) {
	window = s.Window
	if window > n {
		window = n
	}
	if window%2 == 0 {
		window--
	}
	order = s.Order
	if order > window-1 {
		order = window - 1
	}
	if order < 0 {
		order = 0
	}
	return window, order
}

func (s *SavitzkyGolay) Smooth(values []float64) []float64 {
	n := len(values)
	if n < 2 {
		return clone(values)
	}
	window, order := s.effective(n)
	if window < 3 {
		return clone(values)
	}

	proj, err := projection(window, order)
	if err != nil {
		return clone(values)
	}

	half := window / 2
	out := make([]float64, n)

	weights := proj.RawRowView(0)
	for i := half; i < n-half; i++ {
		out[i] = floats.Dot(weights, values[i-half:i+half+1])
	}

	head := fitWindow(proj, values[:window])
	for i := 0; i < half; i++ {
		out[i] = evalPoly(head, float64(i-half))
	}
	tail := fitWindow(proj, values[n-window:])
	for j := 0; j < half; j++ {
		pos := window - half + j
		out[n-half+j] = evalPoly(tail, float64(pos-half))
	}
	return out
}

// projection returns the (order+1) x window least-squares operator mapping
// window samples to polynomial coefficients in u = position - center.
// Row 0 is the smoothing kernel.
func projection(window, order int) (*mat.Dense, error) {
	half := window / 2
	vander := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		u := float64(i - half)
		v := 1.0
		for j := 0; j <= order; j++ {
			vander.Set(i, j, v)
			v *= u
		}
	}

	ident := mat.NewDense(window, window, nil)
	for i := 0; i < window; i++ {
		ident.Set(i, i, 1)
	}

	var proj mat.Dense
	if err := proj.Solve(vander, ident); err != nil {
		return nil, fmt.Errorf("savgol projection (window=%d, order=%d): %w", window, order, err)
	}
	return &proj, nil
}

func fitWindow(proj *mat.Dense, window []float64) []float64 {
	var coef mat.VecDense
	coef.MulVec(proj, mat.NewVecDense(len(window), window))
	return coef.RawVector().Data
}

func evalPoly(coef []float64, u float64) float64 {
	v := 0.0
	for k := len(coef) - 1; k >= 0; k-- {
		v = v*u + coef[k]
	}
	return v
}
