package whiten

import (
	"math"
	"math/rand"
	"testing"
)

func TestApply_ShortBlockPassesThrough(t *testing.T) {
	block := []float64{1, 2, 3, 4}
	want := append([]float64(nil), block...)

	Apply(block, 2, 2, [][]int{{0, 1}, {0, 1}}, 40)

	for i := range block {
		if block[i] != want[i] {
			t.Fatalf("sample %d changed: got %v, want %v", i, block[i], want[i])
		}
	}
}

func TestApply_DecorrelatesChannels(t *testing.T) {
	const (
		rows = 4000
		cols = 2
	)

	rng := rand.New(rand.NewSource(7))
	block := make([]float64, rows*cols)

	// Two strongly correlated channels built from a shared source.
	for t0 := 0; t0 < rows; t0++ {
		shared := rng.NormFloat64()
		block[t0*cols+0] = shared + 0.1*rng.NormFloat64()
		block[t0*cols+1] = shared + 0.1*rng.NormFloat64()
	}

	Apply(block, rows, cols, [][]int{{0, 1}, {0, 1}}, 40)

	var c00, c01, c11 float64
	for t0 := 0; t0 < rows; t0++ {
		a := block[t0*cols+0]
		b := block[t0*cols+1]
		c00 += a * a
		c01 += a * b
		c11 += b * b
	}

	corr := c01 / math.Sqrt(c00*c11)
	if math.Abs(corr) > 0.05 {
		t.Fatalf("post-whitening correlation = %v, want |corr| < 0.05", corr)
	}

	// Whitened channels should be roughly unit variance.
	if v := c00 / rows; v < 0.8 || v > 1.2 {
		t.Fatalf("channel 0 variance = %v, want near 1", v)
	}
}

func TestApply_IsolatedChannelScalesToUnitVariance(t *testing.T) {
	const rows = 1000

	block := make([]float64, rows)
	rng := rand.New(rand.NewSource(3))
	for i := range block {
		block[i] = 2 * rng.NormFloat64()
	}

	Apply(block, rows, 1, [][]int{{0}}, 40)

	var sum float64
	for _, v := range block {
		sum += v * v
	}

	if v := sum / rows; math.Abs(v-1) > 0.1 {
		t.Fatalf("variance = %v, want near 1", v)
	}
}

func TestInverseSqrt_IdentityStaysIdentity(t *testing.T) {
	q := inverseSqrt(nil, []float64{1, 0, 0, 1}, 2)

	want := []float64{1, 0, 0, 1}
	for i := range want {
		if math.Abs(q[i]-want[i]) > 1e-9 {
			t.Fatalf("q[%d] = %v, want %v", i, q[i], want[i])
		}
	}
}

func TestJacobi_KnownEigenvalues(t *testing.T) {
	// [[2,1],[1,2]] has eigenvalues 1 and 3.
	a := []float64{2, 1, 1, 2}
	v := identity(2)
	jacobi(a, v, 2)

	lo := math.Min(a[0], a[3])
	hi := math.Max(a[0], a[3])

	if math.Abs(lo-1) > 1e-9 || math.Abs(hi-3) > 1e-9 {
		t.Fatalf("eigenvalues = (%v, %v), want (1, 3)", lo, hi)
	}
}
