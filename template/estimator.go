package template

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-spike/recording"
	"github.com/cwbudde/algo-spike/spiketrain"
)

// Errors returned by the estimator.
var (
	ErrNilReader     = errors.New("template: reader must not be nil")
	ErrEmptyTrain    = errors.New("template: spike train contains no events")
	ErrInvalidWindow = errors.New("template: window bounds must be positive")
)

// Default extraction window around each spike time.
const (
	DefaultPre  = 10
	DefaultPost = 30
)

// BatchSource is the slice of recording.BatchReader the estimator consumes:
// a resettable stream of fixed-shape preprocessed blocks.
type BatchSource interface {
	NextBatch() (*recording.Block, error)
	BatchSamples() int
	Channels() int
}

// EstimatorConfig configures template estimation. Zero Pre/Post take the
// defaults. Progress, when set, is called after every processed batch.
type EstimatorConfig struct {
	Pre      int
	Post     int
	Progress func(done, total int)
}

// Estimator accumulates per-unit mean waveforms from a batch stream.
//
// The estimator owns the reader's cursor for the duration of Estimate;
// callers reset the cursor before handing the reader to another component.
type Estimator struct {
	reader BatchSource
	train  spiketrain.Train
	set    *Set
	cfg    EstimatorConfig
}

// NewEstimator normalizes the spike train (dense 0..U-1 labels) and allocates
// zeroed templates sized by the discovered unit count.
func NewEstimator(reader BatchSource, train spiketrain.Train, cfg EstimatorConfig) (*Estimator, error) {
	if reader == nil {
		return nil, ErrNilReader
	}

	if len(train) == 0 {
		return nil, ErrEmptyTrain
	}

	if cfg.Pre == 0 {
		cfg.Pre = DefaultPre
	}
	if cfg.Post == 0 {
		cfg.Post = DefaultPost
	}
	if cfg.Pre < 0 || cfg.Post < 0 {
		return nil, fmt.Errorf("%w: pre %d, post %d", ErrInvalidWindow, cfg.Pre, cfg.Post)
	}

	normalized := spiketrain.Normalize(train)
	numUnits := spiketrain.MaxUnit(normalized) + 1

	return &Estimator{
		reader: reader,
		train:  normalized,
		set:    NewSet(numUnits, cfg.Pre, cfg.Post, reader.Channels()),
		cfg:    cfg,
	}, nil
}

// Train returns the normalized spike train the estimator works from.
func (e *Estimator) Train() spiketrain.Train { return e.train }

// Templates returns the estimated template set. Valid after Estimate.
func (e *Estimator) Templates() *Set { return e.set }

// Estimate consumes up to maxBatches batches from the reader's current
// cursor position and averages each unit's windows in place.
//
// For batch i, spikes with time strictly inside (i*B, (i+1)*B) are shifted to
// batch-local time; a spike whose window crosses either batch edge is counted
// as a boundary violation and contributes nothing to sums or counts. The
// returned count tallies all such violations. After the last batch every
// unit's sum is divided by its own count; units with no valid windows keep
// all-zero templates.
func (e *Estimator) Estimate(maxBatches int) (boundaryViolations int, err error) {
	batchSamples := int64(e.reader.BatchSamples())

	for i := 0; i < maxBatches; i++ {
		block, err := e.reader.NextBatch()
		if err != nil {
			return boundaryViolations, fmt.Errorf("template: estimating batch %d: %w", i, err)
		}

		lo := int64(i) * batchSamples
		hi := lo + batchSamples

		for _, ev := range e.train {
			if ev.Time <= lo || ev.Time >= hi {
				continue
			}

			boundaryViolations += e.accumulate(block, int(ev.Time-lo), ev.Unit)
		}

		if e.cfg.Progress != nil {
			e.cfg.Progress(i+1, maxBatches)
		}
	}

	for u := 0; u < e.set.NumUnits(); u++ {
		if n := e.set.Count(u); n > 0 {
			vecmath.ScaleBlockInPlace(e.set.Waveform(u), 1/float64(n))
		}
	}

	return boundaryViolations, nil
}

// accumulate adds the window around batch-local time t into unit u's sum.
// It returns 1 when the window crosses the batch boundary, 0 otherwise.
func (e *Estimator) accumulate(block *recording.Block, t, u int) int {
	start := t - e.set.Pre()
	end := t + e.set.Post()

	if start < 0 || end > block.Rows() {
		return 1
	}

	for w := 0; w < e.set.Window(); w++ {
		vecmath.AddBlockInPlace(e.set.Row(u, w), block.Row(start+w))
	}
	e.set.counts[u]++

	return 0
}
