package indicators

import "math"

// sma is a rolling mean that starts with whatever is available (min periods 1).
func sma(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		sum += v
		if i >= window {
			sum -= x[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// ewm is an adjusted exponentially weighted mean with smoothing alpha.
// NaN inputs leave the running state untouched and produce NaN until the
// first valid value.
func ewm(x []float64, alpha float64) []float64 {
	out := make([]float64, len(x))
	num, den := 0.0, 0.0
	seen := false
	for i, v := range x {
		if math.IsNaN(v) {
			if seen {
				out[i] = num / den
			} else {
				out[i] = math.NaN()
			}
			continue
		}
		num = v + (1-alpha)*num
		den = 1 + (1-alpha)*den
		seen = true
		out[i] = num / den
	}
	return out
}

func ema(x []float64, span int) []float64 { return ewm(x, 2/(float64(span)+1)) }

// smma is Wilder's smoothing.
func smma(x []float64, window int) []float64 { return ewm(x, 1/float64(window)) }

// rollingStd is the sample standard deviation over the window; the first value is NaN.
func rollingStd(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		n := i - lo + 1
		if n < 2 {
			out[i] = math.NaN()
			continue
		}
		mean := 0.0
		for _, v := range x[lo : i+1] {
			mean += v
		}
		mean /= float64(n)
		ss := 0.0
		for _, v := range x[lo : i+1] {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}

// rollingMAD is the mean absolute deviation from the window mean.
func rollingMAD(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		w := x[lo : i+1]
		mean := 0.0
		for _, v := range w {
			mean += v
		}
		mean /= float64(len(w))
		dev := 0.0
		for _, v := range w {
			dev += math.Abs(v - mean)
		}
		out[i] = dev / float64(len(w))
	}
	return out
}

func diff(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) > 0 {
		out[0] = math.NaN()
	}
	for i := 1; i < len(x); i++ {
		out[i] = x[i] - x[i-1]
	}
	return out
}

// ratio divides elementwise; a zero denominator yields NaN.
func ratio(num, den []float64, scale float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		if den[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = scale * num[i] / den[i]
	}
	return out
}
