package smooth

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// gaussianTruncate is the kernel half-width in standard deviations.
const gaussianTruncate = 4.0

// Gaussian convolves the signal with a normalized Gaussian kernel.
// Samples past either end are mirrored (d c b a | a b c d | d c b a).
type Gaussian struct {
	Sigma float64
}

func (g *Gaussian) Name() string {
	return fmt.Sprintf("gaussian(sigma=%g)", g.Sigma)
}

func (g *Gaussian) Smooth(values []float64) []float64 {
	n := len(values)
	if n < 2 || g.Sigma <= 0 {
		return clone(values)
	}
	kernel := gaussianKernel(g.Sigma)
	radius := len(kernel) / 2
	if radius == 0 {
		return clone(values)
	}

	out := make([]float64, n)
	for i := range out {
		var acc float64
		for k, w := range kernel {
			acc += w * values[reflect(i+k-radius, n)]
		}
		out[i] = acc
	}
	return out
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(gaussianTruncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for k := -radius; k <= radius; k++ {
		x := float64(k) / sigma
		kernel[k+radius] = math.Exp(-0.5 * x * x)
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// reflect maps any index onto [0, n) by mirroring about the edges.
func reflect(i, n int) int {
	period := 2 * n
	m := i % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}
