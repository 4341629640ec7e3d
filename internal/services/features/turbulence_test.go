package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"FinPrep/internal/domain/models"
)

func waveCloses(n int, base, amp, freq, drift float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amp*math.Sin(float64(i)*freq) + drift*float64(i)
	}
	return out
}

// referenceScores computes the two-ticker score with an explicit 2x2 inverse.
func referenceScores(a, b []float64, lookback int) []float64 {
	ra, rb := PctChange(a), PctChange(b)
	out := make([]float64, len(a))
	positives := 0
	for i := lookback; i < len(a); i++ {
		var xs, ys []float64
		for j := i - lookback; j < i; j++ {
			if finite(ra[j]) && finite(rb[j]) {
				xs = append(xs, ra[j])
				ys = append(ys, rb[j])
			}
		}
		n := float64(len(xs))
		var mx, my float64
		for k := range xs {
			mx += xs[k]
			my += ys[k]
		}
		mx /= n
		my /= n
		var sxx, syy, sxy float64
		for k := range xs {
			sxx += (xs[k] - mx) * (xs[k] - mx)
			syy += (ys[k] - my) * (ys[k] - my)
			sxy += (xs[k] - mx) * (ys[k] - my)
		}
		sxx /= n - 1
		syy /= n - 1
		sxy /= n - 1
		det := sxx*syy - sxy*sxy
		dx, dy := ra[i]-mx, rb[i]-my
		score := (dx*dx*syy - 2*dx*dy*sxy + dy*dy*sxx) / det
		if score > 0 {
			positives++
			if positives > 2 {
				out[i] = score
			}
		}
	}
	return out
}

func TestTurbulenceMatchesReference(t *testing.T) {
	a := waveCloses(40, 100, 10, 0.7, 0.3)
	b := waveCloses(40, 50, 5, 1.3, -0.1)
	panel := panelFromCloses(map[string][]float64{"A": a, "B": b})

	got, err := Turbulence(panel, 6)
	require.NoError(t, err)
	want := referenceScores(a, b, 6)
	require.Len(t, got, 40)
	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-6*math.Max(1, want[i]), "index %d", i)
	}
}

func TestTurbulenceZeroBeforeLookback(t *testing.T) {
	panel := panelFromCloses(map[string][]float64{
		"A": waveCloses(30, 100, 10, 0.7, 0.3),
		"B": waveCloses(30, 50, 5, 1.3, -0.1),
	})
	got, err := Turbulence(panel, 10)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.Equal(t, 0.0, got[i])
	}
	for _, v := range got {
		require.GreaterOrEqual(t, v, 0.0)
	}
}

func TestTurbulenceWarmupSuppressesFirstTwoPositives(t *testing.T) {
	a := waveCloses(40, 100, 10, 0.7, 0.3)
	b := waveCloses(40, 50, 5, 1.3, -0.1)
	panel := panelFromCloses(map[string][]float64{"A": a, "B": b})

	got, err := Turbulence(panel, 6)
	require.NoError(t, err)

	// Every raw score here is positive, so the first two after the lookback are zeroed.
	require.Equal(t, 0.0, got[6])
	require.Equal(t, 0.0, got[7])
	for i := 8; i < len(got); i++ {
		require.Greater(t, got[i], 0.0, "index %d", i)
	}
}

func TestTurbulenceIgnoresAllZeroTicker(t *testing.T) {
	a := waveCloses(30, 100, 10, 0.7, 0.3)
	b := waveCloses(30, 50, 5, 1.3, -0.1)

	base, err := Turbulence(panelFromCloses(map[string][]float64{"A": a, "B": b}), 5)
	require.NoError(t, err)
	withDead, err := Turbulence(panelFromCloses(map[string][]float64{"A": a, "B": b, "C": make([]float64, 30)}), 5)
	require.NoError(t, err)
	require.InDeltaSlice(t, base, withDead, 1e-9)
}

func TestTurbulenceSparseTickerRejoinsLaterWindows(t *testing.T) {
	a := waveCloses(30, 100, 10, 0.7, 0.3)
	b := waveCloses(30, 50, 5, 1.3, -0.1)
	// C has no prices for the first 10 rows, so its returns are missing
	// through row 10 and present from row 11.
	c := waveCloses(30, 80, 8, 0.4, 0.2)
	for i := 0; i < 10; i++ {
		c[i] = 0
	}

	base, err := Turbulence(panelFromCloses(map[string][]float64{"A": a, "B": b}), 5)
	require.NoError(t, err)
	got, err := Turbulence(panelFromCloses(map[string][]float64{"A": a, "B": b, "C": c}), 5)
	require.NoError(t, err)

	// Windows touching rows 0..10 drop C and score A and B alone.
	for i := 0; i < 16; i++ {
		require.InDelta(t, base[i], got[i], 1e-9, "index %d", i)
	}
	// From row 16 the window is fully covered and C counts again.
	differs := false
	for i := 16; i < len(got); i++ {
		require.GreaterOrEqual(t, got[i], base[i]-1e-9, "index %d", i)
		if math.Abs(got[i]-base[i]) > 1e-6 {
			differs = true
		}
	}
	require.True(t, differs, "C never rejoined the covariance window")
}

func TestTurbulenceInsufficientCoverage(t *testing.T) {
	panel := panelFromCloses(map[string][]float64{"Z": make([]float64, 10)})

	_, err := Turbulence(panel, 3)
	require.ErrorIs(t, err, models.ErrInsufficientCoverage)

	metrics := &countingMetrics{}
	got, err := NewTurbulenceEngine(3, WithInsufficientPolicy(InsufficientZero), WithTurbulenceMetrics(metrics)).Compute(panel)
	require.NoError(t, err)
	require.Equal(t, make([]float64, 10), got)
	require.Len(t, metrics.errors, 7)
}

func TestTurbulenceSingleRowWindowIsInsufficient(t *testing.T) {
	panel := panelFromCloses(map[string][]float64{"A": waveCloses(10, 100, 10, 0.7, 0.3)})
	_, err := Turbulence(panel, 2)
	require.ErrorIs(t, err, models.ErrInsufficientCoverage)
}

func TestSelectWindowDropsSparseTickers(t *testing.T) {
	nan := math.NaN()
	window := [][]float64{
		{0.01, 0.02, nan, 0.01, 0.03},
		{0.02, 0.01, nan, 0.02, 0.01},
		{0.03, 0.00, 0.05, 0.01, 0.02},
	}
	cols, rows := selectWindow(window)
	require.Equal(t, []int{0, 1, 3, 4}, cols)
	require.Len(t, rows, 3)
	require.Equal(t, []float64{0.03, 0.00, 0.01, 0.02}, rows[2])
}

func TestSelectWindowTiesKeepColumnOrder(t *testing.T) {
	nan := math.NaN()
	window := [][]float64{
		{nan, nan, nan, nan},
		{nan, 0.01, nan, 0.02},
		{0.01, 0.02, nan, 0.03},
		{0.02, 0.03, 0.01, 0.01},
	}
	cols, rows := selectWindow(window)
	require.Equal(t, []int{1, 3}, cols)
	require.Equal(t, [][]float64{{0.01, 0.02}, {0.02, 0.03}, {0.03, 0.01}}, rows)
}

func TestPseudoInverseSingular(t *testing.T) {
	cov := mat2(1, 1, 1, 1)
	pinv, err := pseudoInverse(cov)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			require.InDelta(t, 0.25, pinv.At(i, j), 1e-12)
		}
	}
}
