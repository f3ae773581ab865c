// Package edgeparams derives Canny hysteresis thresholds from gradient
// statistics.
//
// thigh is the fraction of candidate edge pixels whose gradient magnitude
// falls below the high threshold; tlow scales the high threshold down to the
// low one. Candidates are pixels that survive non-maximum suppression.
package edgeparams

import (
	"fmt"
	"math"
)

// MaxMagnitude bounds the histogram. L1 magnitudes of a 3x3 Sobel on 8-bit
// input never exceed 2040.
const MaxMagnitude = 32767

// Gradient holds horizontal and vertical derivatives for a width x height image
type Gradient struct {
	Width  int
	Height int
	DX     []int16
	DY     []int16
}

// Validate checks that the derivative planes match the dimensions.
func (g Gradient) Validate() error {
	n := g.Width * g.Height
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("edgeparams: invalid dimensions %dx%d", g.Width, g.Height)
	}
	if len(g.DX) < n || len(g.DY) < n {
		return fmt.Errorf("edgeparams: gradient planes hold %d/%d values, need %d", len(g.DX), len(g.DY), n)
	}
	return nil
}

// Magnitudes returns |dx|+|dy| per pixel, clamped to MaxMagnitude.
func Magnitudes(g Gradient) []int {
	n := g.Width * g.Height
	mag := make([]int, n)
	for i := 0; i < n; i++ {
		m := abs(int(g.DX[i])) + abs(int(g.DY[i]))
		if m > MaxMagnitude {
			m = MaxMagnitude
		}
		mag[i] = m
	}
	return mag
}

// Suppress marks pixels whose magnitude is a local maximum along the
// gradient direction. Border pixels are never candidates.
func Suppress(g Gradient, mag []int) []bool {
	w, h := g.Width, g.Height
	keep := make([]bool, w*h)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m == 0 {
				continue
			}

			var a, b int
			switch direction(int(g.DX[i]), int(g.DY[i])) {
			case horizontal:
				a, b = mag[i-1], mag[i+1]
			case vertical:
				a, b = mag[i-w], mag[i+w]
			case diagonalDown:
				a, b = mag[i-w-1], mag[i+w+1]
			case diagonalUp:
				a, b = mag[i-w+1], mag[i+w-1]
			}

			// Ties on one side keep plateaus one pixel wide.
			keep[i] = m > a && m >= b
		}
	}
	return keep
}

// Histogram counts candidate magnitudes
type Histogram struct {
	counts [MaxMagnitude + 1]int
	total  int
}

// NewHistogram builds the histogram of mag over the pixels set in candidates.
// A nil candidates slice counts every nonzero magnitude.
func NewHistogram(mag []int, candidates []bool) *Histogram {
	h := &Histogram{}
	for i, m := range mag {
		if m <= 0 {
			continue
		}
		if candidates != nil && !candidates[i] {
			continue
		}
		h.counts[m]++
		h.total++
	}
	return h
}

// Total is the number of counted pixels.
func (h *Histogram) Total() int { return h.total }

// Thresholds returns the low and high hysteresis thresholds.
//
// The high threshold is the smallest magnitude r such that more than
// thigh*Total candidates have magnitude <= r. With no candidates both
// thresholds are 0.
func (h *Histogram) Thresholds(tlow, thigh float64) (low, high int) {
	if h.total == 0 {
		return 0, 0
	}

	highCount := int(float64(h.total)*thigh + 0.5)

	r := 1
	seen := h.counts[1]
	for r < MaxMagnitude && seen < highCount {
		r++
		seen += h.counts[r]
	}
	high = r
	low = int(float64(high)*tlow + 0.5)
	return low, high
}

// Derive runs the whole pipeline on a gradient.
func Derive(g Gradient, tlow, thigh float64) (low, high int, err error) {
	if err := g.Validate(); err != nil {
		return 0, 0, err
	}
	mag := Magnitudes(g)
	low, high = NewHistogram(mag, Suppress(g, mag)).Thresholds(tlow, thigh)
	return low, high, nil
}

type orientation int

const (
	horizontal orientation = iota
	vertical
	diagonalDown
	diagonalUp
)

// direction quantizes the gradient to one of four neighbour axes using
// tan(22.5°) ≈ 0.4142 ≈ 53/128.
func direction(dx, dy int) orientation {
	ax, ay := abs(dx), abs(dy)
	switch {
	case ay*128 <= ax*53:
		return horizontal
	case ax*128 <= ay*53:
		return vertical
	case (dx > 0) == (dy > 0):
		return diagonalDown
	default:
		return diagonalUp
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// KernelSize returns the odd Gaussian window width covering 2.5 sigma on
// each side of the center.
func KernelSize(sigma float64) int {
	if sigma <= 0 {
		return 1
	}
	return 1 + 2*int(math.Ceil(2.5*sigma))
}
