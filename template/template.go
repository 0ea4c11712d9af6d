// Package template estimates per-unit mean waveforms ("templates") from a
// preprocessed recording stream and a spike train, and derives per-template
// descriptors such as peak channels and power spectra.
package template

import (
	"errors"
	"fmt"
	"sort"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// Errors returned by template functions.
var (
	ErrUnitOutOfRange    = errors.New("template: unit index out of range")
	ErrChannelOutOfRange = errors.New("template: channel index out of range")
)

// Set holds one waveform snippet per unit over a fixed window across all
// channels. Waveforms are accumulated in place during estimation and must be
// treated as read-only once estimation finishes. A unit that never
// contributed a valid window keeps an all-zero waveform and a zero count.
type Set struct {
	pre      int // samples before the spike time
	post     int // samples after (window = pre + post)
	channels int

	units  [][]float64 // unit -> flat [window][channel] row-major
	counts []int
}

// NewSet allocates zeroed templates for numUnits units.
func NewSet(numUnits, pre, post, channels int) *Set {
	s := &Set{
		pre:      pre,
		post:     post,
		channels: channels,
		units:    make([][]float64, numUnits),
		counts:   make([]int, numUnits),
	}

	window := pre + post
	for u := range s.units {
		s.units[u] = make([]float64, window*channels)
	}

	return s
}

// NumUnits returns the number of units in the set.
func (s *Set) NumUnits() int { return len(s.units) }

// Window returns the waveform length in samples.
func (s *Set) Window() int { return s.pre + s.post }

// Pre returns the number of window samples before the spike time.
func (s *Set) Pre() int { return s.pre }

// Post returns the number of window samples after the spike time.
func (s *Set) Post() int { return s.post }

// Channels returns the channel count.
func (s *Set) Channels() int { return s.channels }

// Count returns how many spikes contributed to unit u's template.
func (s *Set) Count(u int) int { return s.counts[u] }

// Waveform returns unit u's flat [window][channel] row-major waveform,
// aliasing the set's storage.
func (s *Set) Waveform(u int) []float64 { return s.units[u] }

// Row returns the channel vector of unit u at window offset w.
func (s *Set) Row(u, w int) []float64 {
	return s.units[u][w*s.channels : (w+1)*s.channels]
}

// channelSamples gathers unit u's waveform on channel c into dst.
func (s *Set) channelSamples(u, c int, dst []float64) {
	window := s.Window()
	for w := 0; w < window; w++ {
		dst[w] = s.units[u][w*s.channels+c]
	}
}

// PeakChannels returns the indices of the k channels carrying unit u's
// largest peak absolute amplitude, ordered ascending by amplitude (the
// strongest channel last). k is clamped to the channel count.
func (s *Set) PeakChannels(u, k int) []int {
	if k > s.channels {
		k = s.channels
	}
	if k <= 0 {
		return nil
	}

	peaks := make([]float64, s.channels)
	scratch := make([]float64, s.Window())

	for c := 0; c < s.channels; c++ {
		s.channelSamples(u, c, scratch)
		peaks[c] = vecmath.MaxAbs(scratch)
	}

	order := make([]int, s.channels)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return peaks[order[i]] < peaks[order[j]] })

	return order[s.channels-k:]
}

// PowerSpectrum returns the one-sided magnitude spectrum of unit u's waveform
// on one channel. The waveform is zero-padded to the next power of two before
// the FFT; the result has fftSize/2+1 bins from DC to Nyquist.
func (s *Set) PowerSpectrum(u, channel int) ([]float64, error) {
	if u < 0 || u >= len(s.units) {
		return nil, fmt.Errorf("%w: %d of %d", ErrUnitOutOfRange, u, len(s.units))
	}
	if channel < 0 || channel >= s.channels {
		return nil, fmt.Errorf("%w: %d of %d", ErrChannelOutOfRange, channel, s.channels)
	}

	window := s.Window()
	fftSize := nextPowerOf2(window)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("template: creating FFT plan: %w", err)
	}

	in := make([]complex128, fftSize)
	scratch := make([]float64, window)
	s.channelSamples(u, channel, scratch)
	for i, v := range scratch {
		in[i] = complex(v, 0)
	}

	out := make([]complex128, fftSize)
	if err := plan.Forward(out, in); err != nil {
		return nil, fmt.Errorf("template: forward FFT: %w", err)
	}

	bins := fftSize/2 + 1
	re := make([]float64, bins)
	im := make([]float64, bins)
	for i := 0; i < bins; i++ {
		re[i] = real(out[i])
		im[i] = imag(out[i])
	}

	mag := make([]float64, bins)
	vecmath.Magnitude(mag, re, im)

	return mag, nil
}

// SpectralCentroid returns the amplitude-weighted mean frequency of a
// one-sided magnitude spectrum, in Hz. A silent spectrum yields 0.
func SpectralCentroid(magnitude []float64, sampleRate float64) float64 {
	if len(magnitude) < 2 {
		return 0
	}

	var sum, weighted float64
	for i, m := range magnitude {
		f := float64(i) * sampleRate / float64(2*(len(magnitude)-1))
		sum += m
		weighted += f * m
	}

	if sum == 0 {
		return 0
	}

	return weighted / sum
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
