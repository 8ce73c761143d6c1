package analytics

import "math"

// adfMinSamples is the minimum spread series length for the ADF probe.
const adfMinSamples = 12

// adfCritical5 is the 5% critical value of the Dickey-Fuller distribution
// for a regression with constant term.
const adfCritical5 = -2.89

// ADFResult summarizes an augmented Dickey-Fuller stationarity probe of
// the spread series. A stationary spread is the precondition for mean
// reversion; this is a diagnostic read, never part of the signal path.
type ADFResult struct {
	Statistic  float64 `json:"statistic"`
	Stationary bool    `json:"stationary"`
	Samples    int     `json:"samples"`
	Ok         bool    `json:"ok"` // false when the series is too short or degenerate
}

// Stationarity runs a one-lag ADF test on the engine's current spread
// series.
func (e *Engine) Stationarity() ADFResult {
	e.mu.Lock()
	wa, wb := e.windowSlices(e.cfg.Window)
	var slope float64
	if s, _, ok := fit(e.cfg.Method, wb, wa); ok {
		slope = s
	}
	spreads := make([]float64, len(wa))
	for i := range wa {
		spreads[i] = wa[i] - slope*wb[i]
	}
	e.mu.Unlock()

	return adfTest(spreads)
}

// adfTest regresses Δy_t on y_{t-1} and Δy_{t-1} with a constant and
// tests gamma (the y_{t-1} coefficient) against the 5% critical value.
func adfTest(series []float64) ADFResult {
	n := len(series)
	res := ADFResult{Statistic: math.NaN(), Samples: n}
	if n < adfMinSamples {
		return res
	}

	// Build the regression rows: dy[t] = c + gamma*y[t-1] + delta*dy[t-1].
	rows := n - 2
	y := make([]float64, rows)    // dependent: Δy_t
	lag := make([]float64, rows)  // y_{t-1}
	dlag := make([]float64, rows) // Δy_{t-1}
	for t := 2; t < n; t++ {
		y[t-2] = series[t] - series[t-1]
		lag[t-2] = series[t-1]
		dlag[t-2] = series[t-1] - series[t-2]
	}

	gamma, se, ok := olsCoefficient(y, lag, dlag)
	if !ok || se == 0 {
		return res
	}
	res.Statistic = gamma / se
	res.Stationary = res.Statistic < adfCritical5
	res.Ok = true
	return res
}

// olsCoefficient solves the three-variable regression y = c + b1*x1 + b2*x2
// by normal equations and returns b1 with its standard error.
func olsCoefficient(y, x1, x2 []float64) (b1, se float64, ok bool) {
	n := float64(len(y))
	if len(y) < 4 || len(x1) != len(y) || len(x2) != len(y) {
		return 0, 0, false
	}

	m1, m2, my := mean(x1), mean(x2), mean(y)
	var s11, s22, s12, s1y, s2y float64
	for i := range y {
		d1, d2, dy := x1[i]-m1, x2[i]-m2, y[i]-my
		s11 += d1 * d1
		s22 += d2 * d2
		s12 += d1 * d2
		s1y += d1 * dy
		s2y += d2 * dy
	}
	det := s11*s22 - s12*s12
	if det == 0 {
		return 0, 0, false
	}
	b1 = (s1y*s22 - s2y*s12) / det
	b2 := (s2y*s11 - s1y*s12) / det
	c := my - b1*m1 - b2*m2

	var sse float64
	for i := range y {
		r := y[i] - c - b1*x1[i] - b2*x2[i]
		sse += r * r
	}
	dof := n - 3
	if dof <= 0 {
		return 0, 0, false
	}
	sigma2 := sse / dof
	varB1 := sigma2 * s22 / det
	if varB1 < 0 {
		return 0, 0, false
	}
	return b1, math.Sqrt(varB1), true
}
