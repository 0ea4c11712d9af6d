package recording

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-spike/geom"
	"github.com/cwbudde/algo-spike/internal/filter"
	"github.com/cwbudde/algo-spike/internal/whiten"
)

// Errors returned by the batch reader.
var (
	ErrEndOfStream       = errors.New("recording: fewer samples remain than one full batch")
	ErrNilGeometry       = errors.New("recording: geometry must not be nil")
	ErrChannelMismatch   = errors.New("recording: channel count must match geometry")
	ErrInvalidSampleRate = errors.New("recording: sample rate must be positive")
	ErrInvalidBatchSize  = errors.New("recording: batch samples must be positive")
	ErrInvalidBand       = errors.New("recording: band edges must satisfy 0 < low < high < Nyquist")
)

// Default preprocessing parameters.
const (
	DefaultLowCutHz      = 300.0
	DefaultHighFraction  = 0.1 // of Nyquist
	DefaultFilterOrder   = 3
	DefaultWhitenSamples = 40
)

// ReaderConfig describes one recording file and its preprocessing.
// Zero-valued filter fields take the documented defaults.
type ReaderConfig struct {
	Geometry     *geom.Geometry
	SampleRate   float64
	BatchSamples int
	Channels     int
	Radius       float64 // neighbor radius for whitening

	LowCutHz      float64 // band-pass low edge, default 300 Hz
	HighFraction  float64 // band-pass high edge as a fraction of Nyquist, default 0.1
	FilterOrder   int     // Butterworth order, default 3
	WhitenSamples int     // minimum samples for covariance estimation, default 40
}

func (c *ReaderConfig) applyDefaults() {
	if c.LowCutHz == 0 {
		c.LowCutHz = DefaultLowCutHz
	}
	if c.HighFraction == 0 {
		c.HighFraction = DefaultHighFraction
	}
	if c.FilterOrder == 0 {
		c.FilterOrder = DefaultFilterOrder
	}
	if c.WhitenSamples == 0 {
		c.WhitenSamples = DefaultWhitenSamples
	}
}

// Validate checks the configuration after defaults are applied.
func (c *ReaderConfig) Validate() error {
	if c.Geometry == nil {
		return ErrNilGeometry
	}

	if c.Channels != c.Geometry.Channels() {
		return fmt.Errorf("%w: config has %d, geometry has %d",
			ErrChannelMismatch, c.Channels, c.Geometry.Channels())
	}

	if c.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	if c.BatchSamples <= 0 {
		return ErrInvalidBatchSize
	}

	nyquist := c.SampleRate / 2

	high := c.HighFraction * nyquist
	if c.LowCutHz <= 0 || high <= c.LowCutHz || high >= nyquist {
		return fmt.Errorf("%w: low %v Hz, high %v Hz, Nyquist %v Hz",
			ErrInvalidBand, c.LowCutHz, high, nyquist)
	}

	return nil
}

// BatchReader streams preprocessed batches from a raw recording file.
//
// The file cursor is the reader's only mutable state. Exactly one component
// may drive the reader at a time; callers hand it off between passes with
// ResetCursor. Concurrent use without a reset is undefined.
type BatchReader struct {
	cfg       ReaderConfig
	file      *os.File
	neighbors [][]int
	bandpass  *filter.Chain
	batchIdx  int

	raw []byte    // one batch of encoded samples
	col []float64 // per-channel scratch
}

// NewBatchReader opens the recording and builds the neighbor graph and the
// band-pass cascade once.
func NewBatchReader(path string, cfg ReaderConfig) (*BatchReader, error) {
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	neighbors, err := cfg.Geometry.FindChannelNeighbors(cfg.Radius)
	if err != nil {
		return nil, fmt.Errorf("recording: building neighbor graph: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recording: opening %s: %w", path, err)
	}

	high := cfg.HighFraction * cfg.SampleRate / 2

	return &BatchReader{
		cfg:       cfg,
		file:      file,
		neighbors: neighbors,
		bandpass:  filter.Bandpass(cfg.LowCutHz, high, cfg.FilterOrder, cfg.SampleRate),
		raw:       make([]byte, cfg.BatchSamples*cfg.Channels*2),
		col:       make([]float64, cfg.BatchSamples),
	}, nil
}

// BatchSamples returns the number of time samples per batch.
func (r *BatchReader) BatchSamples() int { return r.cfg.BatchSamples }

// Channels returns the channel count.
func (r *BatchReader) Channels() int { return r.cfg.Channels }

// Geometry returns the probe geometry the reader was built with.
func (r *BatchReader) Geometry() *geom.Geometry { return r.cfg.Geometry }

// NextBatch reads, decodes, and preprocesses the next batch: band-pass per
// channel, divide by the batch's global sample standard deviation, then
// spatially whiten over the neighbor graph. It fails with ErrEndOfStream when
// fewer samples than a full batch remain; downstream accumulation assumes
// full-length blocks, so short reads always surface as errors.
func (r *BatchReader) NextBatch() (*Block, error) {
	if _, err := io.ReadFull(r.file, r.raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w (batch %d)", ErrEndOfStream, r.batchIdx)
		}
		return nil, fmt.Errorf("recording: reading batch %d: %w", r.batchIdx, err)
	}
	r.batchIdx++

	block := NewBlock(r.cfg.BatchSamples, r.cfg.Channels)

	data := block.Data()
	for i := range data {
		data[i] = float64(int16(binary.LittleEndian.Uint16(r.raw[2*i:])))
	}

	for c := 0; c < r.cfg.Channels; c++ {
		block.Column(c, r.col)
		r.bandpass.Reset()
		r.bandpass.ProcessBlock(r.col)
		block.SetColumn(c, r.col)
	}

	if std := block.std(); std > 0 {
		vecmath.ScaleBlockInPlace(data, 1/std)
	}

	whiten.Apply(data, block.Rows(), block.Cols(), r.neighbors, r.cfg.WhitenSamples)

	return block, nil
}

// ResetCursor rewinds the reader to the start of the recording so another
// component can take over for a fresh pass.
func (r *BatchReader) ResetCursor() error {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("recording: resetting cursor: %w", err)
	}
	r.batchIdx = 0

	return nil
}

// Close releases the underlying file.
func (r *BatchReader) Close() error {
	return r.file.Close()
}
