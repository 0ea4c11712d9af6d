// Package augment synthesizes a ground-truth recording: it draws new spike
// times from each unit's inter-spike-interval statistics, optionally
// relocates a subset of unit templates across the probe, injects the
// waveforms into the streamed original recording, and writes the result in
// the input's binary layout together with the combined ground-truth train.
package augment

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-spike/recording"
	"github.com/cwbudde/algo-spike/spiketrain"
	"github.com/cwbudde/algo-spike/template"
)

// Errors returned by the synthesizer.
var (
	ErrNilTemplates  = errors.New("augment: templates must not be nil")
	ErrNilReader     = errors.New("augment: reader must not be nil")
	ErrNilRand       = errors.New("augment: random source must not be nil")
	ErrEmptyTrain    = errors.New("augment: spike train contains no events")
	ErrInvalidRate   = errors.New("augment: rates must lie in [0, 1]")
	ErrInvalidScale  = errors.New("augment: scale must be positive")
	ErrInvalidLength = errors.New("augment: length must be positive")
)

// Defaults matching the reference pipeline.
const (
	DefaultAugmentRate   = 0.25
	DefaultScale         = 1e3
	DefaultSpatialSize   = 10
	DefaultXSpacing      = 20.0
	DefaultRefractory    = 60
	DefaultPoissonLambda = 15.0
)

// Config describes one augmentation run. Train must be the normalized train
// the templates were estimated from; Reader must be the same reader, with its
// cursor handed over (Run resets it). Rand is explicit so runs reproduce.
type Config struct {
	Templates *template.Set
	Train     spiketrain.Train
	Reader    *recording.BatchReader

	MoveRate      float64 // fraction of units relocated spatially
	AugmentRate   float64 // new spikes per unit as a fraction of its count
	Scale         float64 // amplitude factor applied before writing
	LengthBatches int     // augmented recording length, in batches

	SpatialSize   int     // channels forming a template's spatial trace
	XSpacing      float64 // horizontal channel pitch in coordinate units
	Refractory    int64   // minimum gap between same-unit spikes, samples
	PoissonLambda float64 // shift-distance distribution parameter

	Rand     *rand.Rand
	Progress func(done, total int)
}

func (c *Config) applyDefaults() {
	if c.AugmentRate == 0 {
		c.AugmentRate = DefaultAugmentRate
	}
	if c.Scale == 0 {
		c.Scale = DefaultScale
	}
	if c.SpatialSize == 0 {
		c.SpatialSize = DefaultSpatialSize
	}
	if c.XSpacing == 0 {
		c.XSpacing = DefaultXSpacing
	}
	if c.Refractory == 0 {
		c.Refractory = DefaultRefractory
	}
	if c.PoissonLambda == 0 {
		c.PoissonLambda = DefaultPoissonLambda
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	if c.Templates == nil {
		return ErrNilTemplates
	}
	if c.Reader == nil {
		return ErrNilReader
	}
	if c.Rand == nil {
		return ErrNilRand
	}
	if len(c.Train) == 0 {
		return ErrEmptyTrain
	}

	if c.MoveRate < 0 || c.MoveRate > 1 || c.AugmentRate < 0 || c.AugmentRate > 1 {
		return fmt.Errorf("%w: move %v, augment %v", ErrInvalidRate, c.MoveRate, c.AugmentRate)
	}

	if c.Scale <= 0 {
		return ErrInvalidScale
	}

	if c.LengthBatches <= 0 {
		return ErrInvalidLength
	}

	return nil
}

// Result is the outcome of one augmentation run.
type Result struct {
	// GroundTruth is the original train plus the augmented spikes, with each
	// relocated unit's augmented events relabeled to a fresh unit id appended
	// after all existing ids.
	GroundTruth spiketrain.Train

	// MovedUnits maps each relocated original unit to its fresh unit id.
	MovedUnits map[int]int

	// BoundaryViolations counts augmented spikes whose injection window
	// crossed a batch edge and were skipped.
	BoundaryViolations int
}

// Synthesizer drives one augmentation run.
type Synthesizer struct {
	cfg       Config
	summaries []spiketrain.ISISummary
	numUnits  int
}

// NewSynthesizer validates the configuration and computes the per-unit
// inter-spike-interval summaries once.
func NewSynthesizer(cfg Config) (*Synthesizer, error) {
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	numUnits := cfg.Templates.NumUnits()

	return &Synthesizer{
		cfg:       cfg,
		summaries: spiketrain.SummarizeISI(cfg.Train, numUnits),
		numUnits:  numUnits,
	}, nil
}

// Summaries returns the per-unit inter-spike-interval statistics.
func (s *Synthesizer) Summaries() []spiketrain.ISISummary { return s.summaries }

// MoveSpatialTrace returns a copy of unit u's template relocated by dist
// horizontal channel-position steps. The template's SpatialSize highest-peak
// channels move to the channels found at their x-shifted coordinates;
// channels with no match after the shift drop out of the relocated waveform,
// leaving those samples silent.
func (s *Synthesizer) MoveSpatialTrace(u, dist int) []float64 {
	set := s.cfg.Templates
	geometry := s.cfg.Reader.Geometry()

	moved := make([]float64, len(set.Waveform(u)))
	xMove := float64(dist) * s.cfg.XSpacing
	channels := set.Channels()

	for _, from := range set.PeakChannels(u, s.cfg.SpatialSize) {
		x, y := geometry.Position(from)

		to, ok := geometry.ChannelAt(x+xMove, y)
		if !ok {
			continue
		}

		src := set.Waveform(u)
		for w := 0; w < set.Window(); w++ {
			moved[w*channels+to] = src[w*channels+from]
		}
	}

	return moved
}

// SynthesizeTrain draws a new spike train from the ISI summaries: per unit,
// round(AugmentRate × count) gaps sampled as exp(Normal(logMean, logStd)),
// gaps under the refractory floor raised by the floor, each added to a
// distinct anchor drawn from the unit's existing spike times. Degenerate
// units contribute nothing.
func (s *Synthesizer) SynthesizeTrain() spiketrain.Train {
	var out spiketrain.Train

	for u := 0; u < s.numUnits; u++ {
		sum := s.summaries[u]
		if sum.Degenerate() {
			continue
		}

		count := int(math.Round(s.cfg.AugmentRate * float64(sum.Count)))
		if count <= 0 {
			continue
		}

		times := spiketrain.UnitTimes(s.cfg.Train, u)
		if count > len(times) {
			count = len(times)
		}

		gaps := make([]int64, count)
		for i := range gaps {
			gap := int64(math.Exp(s.cfg.Rand.NormFloat64()*sum.LogStd + sum.LogMean))
			if gap < s.cfg.Refractory {
				gap += s.cfg.Refractory
			}
			gaps[i] = gap
		}

		anchors := sampleWithoutReplacement(s.cfg.Rand, times, count)
		sort.Slice(anchors, func(i, j int) bool { return anchors[i] < anchors[j] })

		for i := range gaps {
			out = append(out, spiketrain.Event{Time: anchors[i] + gaps[i], Unit: u})
		}
	}

	return out
}

// Run streams LengthBatches batches from the reset reader, injects the
// augmented spikes (relocated templates for the selected units), scales each
// batch, writes the result to outPath, and returns the combined ground truth.
func (s *Synthesizer) Run(outPath string) (*Result, error) {
	if err := s.cfg.Reader.ResetCursor(); err != nil {
		return nil, fmt.Errorf("augment: %w", err)
	}

	// Relocation set: round(MoveRate × U) distinct units, each shifted by
	// sign(uniform) × Poisson(lambda) channel positions.
	relocated := make(map[int][]float64)

	numMoved := int(math.Round(s.cfg.MoveRate * float64(s.numUnits)))
	for _, u := range sampleUnits(s.cfg.Rand, s.numUnits, numMoved) {
		dist := poisson(s.cfg.Rand, s.cfg.PoissonLambda)
		if s.cfg.Rand.Float64() < 0.5 {
			dist = -dist
		}
		relocated[u] = s.MoveSpatialTrace(u, dist)
	}

	augTrain := s.SynthesizeTrain()

	writer, err := recording.NewWriter(outPath)
	if err != nil {
		return nil, fmt.Errorf("augment: %w", err)
	}

	set := s.cfg.Templates
	batchSamples := int64(s.cfg.Reader.BatchSamples())
	violations := 0

	for i := 0; i < s.cfg.LengthBatches; i++ {
		block, err := s.cfg.Reader.NextBatch()
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("augment: streaming batch %d: %w", i, err)
		}

		lo := int64(i) * batchSamples
		hi := lo + batchSamples

		for _, ev := range augTrain {
			if ev.Time <= lo || ev.Time >= hi {
				continue
			}

			t := int(ev.Time - lo)
			start := t - set.Pre()
			end := t + set.Post()

			if start < 0 || end > block.Rows() {
				violations++
				continue
			}

			waveform := set.Waveform(ev.Unit)
			if w, ok := relocated[ev.Unit]; ok {
				waveform = w
			}

			channels := set.Channels()
			for w := 0; w < set.Window(); w++ {
				vecmath.AddBlockInPlace(block.Row(start+w), waveform[w*channels:(w+1)*channels])
			}
		}

		vecmath.ScaleBlockInPlace(block.Data(), s.cfg.Scale)

		if err := writer.WriteBlock(block); err != nil {
			writer.Close()
			return nil, fmt.Errorf("augment: %w", err)
		}

		if s.cfg.Progress != nil {
			s.cfg.Progress(i+1, s.cfg.LengthBatches)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("augment: %w", err)
	}

	// Relabel relocated units' augmented spikes to fresh ids appended after
	// all existing ids, so a scorer can tell recovered-in-place units from
	// moved ones.
	movedUnits := make(map[int]int, len(relocated))

	nextID := s.numUnits
	for u := 0; u < s.numUnits; u++ {
		if _, ok := relocated[u]; !ok {
			continue
		}
		movedUnits[u] = nextID
		nextID++
	}

	groundTruth := make(spiketrain.Train, 0, len(s.cfg.Train)+len(augTrain))
	groundTruth = append(groundTruth, s.cfg.Train...)
	for _, ev := range augTrain {
		if id, ok := movedUnits[ev.Unit]; ok {
			ev.Unit = id
		}
		groundTruth = append(groundTruth, ev)
	}

	return &Result{
		GroundTruth:        groundTruth,
		MovedUnits:         movedUnits,
		BoundaryViolations: violations,
	}, nil
}

// sampleUnits draws k distinct unit indices from 0..n-1, ascending.
func sampleUnits(rng *rand.Rand, n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	units := rng.Perm(n)[:k]
	sort.Ints(units)

	return units
}

// sampleWithoutReplacement draws k distinct values from times.
func sampleWithoutReplacement(rng *rand.Rand, times []int64, k int) []int64 {
	idx := rng.Perm(len(times))[:k]

	out := make([]int64, k)
	for i, j := range idx {
		out[i] = times[j]
	}

	return out
}

// poisson draws from a Poisson distribution with Knuth's method. Adequate
// for the small lambda used for shift distances.
func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)

	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
