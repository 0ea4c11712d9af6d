package filter

import (
	"math"
	"testing"
)

func sine(freq, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	step := 2 * math.Pi * freq / sampleRate
	for i := range out {
		out[i] = math.Sin(step * float64(i))
	}
	return out
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestBandpass_PassbandAndStopband(t *testing.T) {
	const (
		sampleRate = 20000.0
		lowCut     = 300.0
		highCut    = 1000.0 // 0.1 * Nyquist
		order      = 3
		n          = 20000
	)

	cases := []struct {
		name    string
		freq    float64
		passing bool
	}{
		{"below passband", 30, false},
		{"in passband", 550, true},
		{"above passband", 8000, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bp := Bandpass(lowCut, highCut, order, sampleRate)
			buf := sine(tc.freq, sampleRate, n)
			bp.ProcessBlock(buf)

			// Skip the transient before measuring.
			out := rms(buf[n/2:])
			if tc.passing && out < 0.5 {
				t.Fatalf("passband rms = %v, want > 0.5", out)
			}
			if !tc.passing && out > 0.2 {
				t.Fatalf("stopband rms = %v, want < 0.2", out)
			}
		})
	}
}

func TestBandpass_RejectsDC(t *testing.T) {
	bp := Bandpass(300, 1000, 3, 20000)

	buf := make([]float64, 8000)
	for i := range buf {
		buf[i] = 1
	}

	bp.ProcessBlock(buf)

	if tail := rms(buf[len(buf)/2:]); tail > 1e-3 {
		t.Fatalf("DC leak rms = %v, want < 1e-3", tail)
	}
}

func TestChain_ResetClearsState(t *testing.T) {
	bp := Bandpass(300, 1000, 3, 20000)

	first := sine(550, 20000, 512)
	bp.ProcessBlock(first)
	bp.Reset()

	second := sine(550, 20000, 512)
	bp.ProcessBlock(second)

	third := sine(550, 20000, 512)
	fresh := Bandpass(300, 1000, 3, 20000)
	fresh.ProcessBlock(third)

	for i := range second {
		if second[i] != third[i] {
			t.Fatalf("sample %d: reset chain %v differs from fresh chain %v", i, second[i], third[i])
		}
	}
}

func TestButterworthCascade_SectionCount(t *testing.T) {
	if got := len(ButterworthLP(1000, 3, 20000)); got != 2 {
		t.Fatalf("order-3 lowpass sections = %d, want 2", got)
	}

	if got := len(ButterworthHP(300, 4, 20000)); got != 2 {
		t.Fatalf("order-4 highpass sections = %d, want 2", got)
	}

	if ButterworthLP(1000, 0, 20000) != nil {
		t.Fatal("order 0 must design no sections")
	}
}
