package analytics

import (
	"math"
	"math/rand"
	"sort"
)

// Method selects how the hedge ratio is fit. OLS is the default and the
// only method driving the signal path; the others are diagnostic.
type Method string

const (
	MethodOLS    Method = "ols"
	MethodTLS    Method = "tls"
	MethodRANSAC Method = "ransac"
	MethodHuber  Method = "huber"
)

// IsValid checks if the Method is a supported regression method.
func (m Method) IsValid() bool {
	switch m {
	case MethodOLS, MethodTLS, MethodRANSAC, MethodHuber:
		return true
	}
	return false
}

// fit regresses y on x with the given method and returns (slope, intercept).
// ok is false when the fit is degenerate (fewer than two points, zero
// variance in x).
func fit(method Method, x, y []float64) (slope, intercept float64, ok bool) {
	switch method {
	case MethodTLS:
		return fitTLS(x, y)
	case MethodRANSAC:
		return fitRANSAC(x, y)
	case MethodHuber:
		return fitHuber(x, y)
	default:
		return fitOLS(x, y)
	}
}

// fitOLS computes the ordinary least squares line y = intercept + slope*x:
// slope = cov(x,y)/var(x), intercept = mean(y) - slope*mean(x).
func fitOLS(x, y []float64) (float64, float64, bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, 0, false
	}
	mx, my := mean(x), mean(y)
	var sxx, sxy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		sxx += dx * dx
		sxy += dx * (y[i] - my)
	}
	if sxx == 0 {
		return 0, 0, false
	}
	slope := sxy / sxx
	return slope, my - slope*mx, true
}

// fitTLS computes the total least squares (orthogonal) line through the
// window's principal axis, from the eigenvector of the 2x2 covariance
// matrix belonging to its largest eigenvalue.
func fitTLS(x, y []float64) (float64, float64, bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, 0, false
	}
	mx, my := mean(x), mean(y)
	var sxx, syy, sxy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx == 0 {
		return 0, 0, false
	}
	if sxy == 0 {
		// Axis-aligned cloud; fall back to the flat line through the mean.
		return 0, my, true
	}
	slope := (syy - sxx + math.Sqrt((syy-sxx)*(syy-sxx)+4*sxy*sxy)) / (2 * sxy)
	return slope, my - slope*mx, true
}

const (
	ransacIterations = 32
	ransacMinInliers = 2
)

// fitRANSAC fits repeated two-point candidate lines on random subsets,
// scores each by its inlier count, and refits OLS on the best inlier set.
// The generator is seeded deterministically so diagnostics are repeatable
// for a given window.
func fitRANSAC(x, y []float64) (float64, float64, bool) {
	n := len(x)
	if n < 3 || len(y) != n {
		return fitOLS(x, y)
	}

	// Residual tolerance from the spread of y; a flat window degenerates
	// to OLS.
	tol := 1.5 * sampleStd(y)
	if tol == 0 {
		return fitOLS(x, y)
	}

	rng := rand.New(rand.NewSource(int64(n)))
	bestCount := -1
	var bestInliers []int

	for iter := 0; iter < ransacIterations; iter++ {
		i := rng.Intn(n)
		j := rng.Intn(n)
		if i == j || x[i] == x[j] {
			continue
		}
		slope := (y[j] - y[i]) / (x[j] - x[i])
		intercept := y[i] - slope*x[i]

		var inliers []int
		for p := 0; p < n; p++ {
			if math.Abs(y[p]-(intercept+slope*x[p])) <= tol {
				inliers = append(inliers, p)
			}
		}
		if len(inliers) > bestCount {
			bestCount = len(inliers)
			bestInliers = inliers
		}
	}
	if bestCount < ransacMinInliers {
		return fitOLS(x, y)
	}

	xs := make([]float64, 0, bestCount)
	ys := make([]float64, 0, bestCount)
	for _, p := range bestInliers {
		xs = append(xs, x[p])
		ys = append(ys, y[p])
	}
	if slope, intercept, ok := fitOLS(xs, ys); ok {
		return slope, intercept, true
	}
	return fitOLS(x, y)
}

const (
	huberIterations = 8
	huberK          = 1.345
)

// fitHuber runs iteratively reweighted least squares with the Huber weight
// function, down-weighting points whose residual exceeds huberK scales.
func fitHuber(x, y []float64) (float64, float64, bool) {
	slope, intercept, ok := fitOLS(x, y)
	if !ok {
		return 0, 0, false
	}
	n := len(x)

	for iter := 0; iter < huberIterations; iter++ {
		residuals := make([]float64, n)
		for i := 0; i < n; i++ {
			residuals[i] = y[i] - (intercept + slope*x[i])
		}
		scale := madScale(residuals)
		if scale == 0 {
			return slope, intercept, true
		}

		// Weighted least squares pass.
		var sw, swx, swy float64
		for i := 0; i < n; i++ {
			w := 1.0
			if r := math.Abs(residuals[i]) / scale; r > huberK {
				w = huberK / r
			}
			sw += w
			swx += w * x[i]
			swy += w * y[i]
		}
		mx, my := swx/sw, swy/sw

		var sxx, sxy float64
		for i := 0; i < n; i++ {
			w := 1.0
			if r := math.Abs(residuals[i]) / scale; r > huberK {
				w = huberK / r
			}
			dx := x[i] - mx
			sxx += w * dx * dx
			sxy += w * dx * (y[i] - my)
		}
		if sxx == 0 {
			return slope, intercept, true
		}

		newSlope := sxy / sxx
		newIntercept := my - newSlope*mx
		if math.Abs(newSlope-slope) < 1e-12 && math.Abs(newIntercept-intercept) < 1e-12 {
			return newSlope, newIntercept, true
		}
		slope, intercept = newSlope, newIntercept
	}
	return slope, intercept, true
}

// madScale estimates residual scale as 1.4826 * median(|r - median(r)|),
// consistent with the standard deviation under normality.
func madScale(residuals []float64) float64 {
	med := median(residuals)
	devs := make([]float64, len(residuals))
	for i, r := range residuals {
		devs[i] = math.Abs(r - med)
	}
	return 1.4826 * median(devs)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
