package augment

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-spike/geom"
	"github.com/cwbudde/algo-spike/internal/testutil"
	"github.com/cwbudde/algo-spike/recording"
	"github.com/cwbudde/algo-spike/spiketrain"
	"github.com/cwbudde/algo-spike/template"
)

const (
	testChannels     = 4
	testBatchSamples = 512
	testBatches      = 2
)

func testReader(t *testing.T) *recording.BatchReader {
	t.Helper()

	x := make([]float64, testChannels)
	y := make([]float64, testChannels)
	for i := range x {
		x[i] = float64(i) * 20
	}

	g, err := geom.FromCoordinates(x, y)
	if err != nil {
		t.Fatalf("FromCoordinates: %v", err)
	}

	samples := testutil.Int16Noise(99, 2000, testBatchSamples*testChannels*testBatches)

	reader, err := recording.NewBatchReader(testutil.WriteRecording(t, samples), recording.ReaderConfig{
		Geometry:     g,
		SampleRate:   20000,
		BatchSamples: testBatchSamples,
		Channels:     testChannels,
		Radius:       25,
	})
	if err != nil {
		t.Fatalf("NewBatchReader: %v", err)
	}
	t.Cleanup(func() { reader.Close() })

	return reader
}

func testTrain() spiketrain.Train {
	// Two units firing throughout both batches, away from batch edges.
	var train spiketrain.Train
	for t0 := int64(100); t0 < testBatchSamples*testBatches-100; t0 += 120 {
		train = append(train, spiketrain.Event{Time: t0, Unit: 0})
		train = append(train, spiketrain.Event{Time: t0 + 57, Unit: 1})
	}
	return spiketrain.Normalize(train)
}

func testSynthesizer(t *testing.T, moveRate float64, seed int64) (*Synthesizer, *recording.BatchReader) {
	t.Helper()

	reader := testReader(t)
	train := testTrain()

	est, err := template.NewEstimator(reader, train, template.EstimatorConfig{})
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	if _, err := est.Estimate(testBatches); err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	syn, err := NewSynthesizer(Config{
		Templates:     est.Templates(),
		Train:         est.Train(),
		Reader:        reader,
		MoveRate:      moveRate,
		AugmentRate:   0.5,
		Scale:         1,
		LengthBatches: testBatches,
		Rand:          rand.New(rand.NewSource(seed)),
	})
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}

	return syn, reader
}

func TestConfig_Validate(t *testing.T) {
	reader := testReader(t)
	set := template.NewSet(1, 10, 30, testChannels)
	train := spiketrain.Train{{Time: 1, Unit: 0}}
	rng := rand.New(rand.NewSource(1))

	base := Config{
		Templates:     set,
		Train:         train,
		Reader:        reader,
		LengthBatches: 1,
		Rand:          rng,
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"nil templates", func(c *Config) { c.Templates = nil }, ErrNilTemplates},
		{"nil reader", func(c *Config) { c.Reader = nil }, ErrNilReader},
		{"nil rand", func(c *Config) { c.Rand = nil }, ErrNilRand},
		{"empty train", func(c *Config) { c.Train = nil }, ErrEmptyTrain},
		{"move rate above one", func(c *Config) { c.MoveRate = 1.5 }, ErrInvalidRate},
		{"negative scale", func(c *Config) { c.Scale = -1 }, ErrInvalidScale},
		{"zero length", func(c *Config) { c.LengthBatches = 0 }, ErrInvalidLength},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)

			if _, err := NewSynthesizer(cfg); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSynthesizeTrain_CountsAndReproducibility(t *testing.T) {
	syn, _ := testSynthesizer(t, 0, 7)

	train := syn.SynthesizeTrain()
	if len(train) == 0 {
		t.Fatal("no augmented spikes generated")
	}

	// Per unit, the new spike count is round(rate × original count).
	counts := make(map[int]int)
	for _, ev := range train {
		counts[ev.Unit]++
	}

	for u, sum := range syn.Summaries() {
		want := int(math.Round(0.5 * float64(sum.Count)))
		if counts[u] != want {
			t.Fatalf("unit %d: %d augmented spikes, want %d", u, counts[u], want)
		}
	}

	// Same seed, same draw sequence.
	again, _ := testSynthesizer(t, 0, 7)
	other := again.SynthesizeTrain()

	if len(other) != len(train) {
		t.Fatalf("reproduced train length %d, want %d", len(other), len(train))
	}
	for i := range train {
		if train[i] != other[i] {
			t.Fatalf("event %d: %+v != %+v", i, train[i], other[i])
		}
	}
}

func TestSynthesizeTrain_RespectsAnchors(t *testing.T) {
	syn, _ := testSynthesizer(t, 0, 11)

	earliest := make(map[int]int64)
	for _, ev := range syn.cfg.Train {
		if cur, ok := earliest[ev.Unit]; !ok || ev.Time < cur {
			earliest[ev.Unit] = ev.Time
		}
	}

	for _, ev := range syn.SynthesizeTrain() {
		// Every new time is an existing anchor plus a positive gap.
		if ev.Time <= earliest[ev.Unit] {
			t.Fatalf("unit %d: synthesized time %d not after earliest anchor %d",
				ev.Unit, ev.Time, earliest[ev.Unit])
		}
	}
}

func TestMoveSpatialTrace_ShiftsColumns(t *testing.T) {
	syn, _ := testSynthesizer(t, 0, 3)

	set := syn.cfg.Templates
	u := 0

	// Mark each channel with a distinct value at window offset 0.
	row := set.Row(u, 0)
	for c := range row {
		row[c] = float64(c + 1)
	}

	moved := syn.MoveSpatialTrace(u, 1)

	// Channel c relocates to c+1 (x + 20); the last channel has no target
	// and drops out, channel 0 receives nothing.
	if moved[0] != 0 {
		t.Fatalf("channel 0 = %v, want 0 (no source)", moved[0])
	}
	for c := 1; c < testChannels; c++ {
		if moved[c] != float64(c) {
			t.Fatalf("channel %d = %v, want %v", c, moved[c], float64(c))
		}
	}

	// A shift off the probe relocates nothing.
	gone := syn.MoveSpatialTrace(u, testChannels+1)
	for i, v := range gone {
		if v != 0 {
			t.Fatalf("off-probe shift left sample %d = %v", i, v)
		}
	}
}

func TestRun_GroundTruthAndUntouchedRegions(t *testing.T) {
	syn, reader := testSynthesizer(t, 0, 21)
	outPath := filepath.Join(t.TempDir(), "aug.bin")

	res, err := syn.Run(outPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.MovedUnits) != 0 {
		t.Fatalf("MovedUnits = %v, want none at move rate 0", res.MovedUnits)
	}

	orig := syn.cfg.Train
	if len(res.GroundTruth) <= len(orig) {
		t.Fatalf("ground truth has %d events, want more than original %d", len(res.GroundTruth), len(orig))
	}
	for i, ev := range orig {
		if res.GroundTruth[i] != ev {
			t.Fatalf("ground truth event %d = %+v, want original %+v", i, res.GroundTruth[i], ev)
		}
	}

	// Injection must not perturb regions no augmented window touches:
	// re-stream the original and compare clamped samples outside all windows.
	augmented := res.GroundTruth[len(orig):]
	touched := make(map[int64]bool)
	set := syn.cfg.Templates
	for _, ev := range augmented {
		for w := -int64(set.Pre()); w < int64(set.Post()); w++ {
			touched[ev.Time+w] = true
		}
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(raw) != testBatchSamples*testChannels*testBatches*2 {
		t.Fatalf("output size = %d bytes, want %d", len(raw), testBatchSamples*testChannels*testBatches*2)
	}

	if err := reader.ResetCursor(); err != nil {
		t.Fatalf("ResetCursor: %v", err)
	}

	for i := 0; i < testBatches; i++ {
		block, err := reader.NextBatch()
		if err != nil {
			t.Fatalf("NextBatch: %v", err)
		}

		for t0 := 0; t0 < testBatchSamples; t0++ {
			global := int64(i*testBatchSamples + t0)
			if touched[global] {
				continue
			}

			for c := 0; c < testChannels; c++ {
				wantRaw := math.Round(block.At(t0, c))
				idx := (int(global)*testChannels + c) * 2
				got := float64(int16(binary.LittleEndian.Uint16(raw[idx:])))

				if math.Abs(got-wantRaw) > 1 {
					t.Fatalf("sample t=%d c=%d: output %v, original %v", global, c, got, wantRaw)
				}
			}
		}
	}
}

func TestRun_MovedUnitsRelabeled(t *testing.T) {
	syn, _ := testSynthesizer(t, 1, 5)
	outPath := filepath.Join(t.TempDir(), "aug.bin")

	res, err := syn.Run(outPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	numUnits := syn.cfg.Templates.NumUnits()
	if len(res.MovedUnits) != numUnits {
		t.Fatalf("moved %d units, want all %d at move rate 1", len(res.MovedUnits), numUnits)
	}

	// Fresh ids start after the existing ones, assigned in unit order.
	next := numUnits
	for u := 0; u < numUnits; u++ {
		if res.MovedUnits[u] != next {
			t.Fatalf("unit %d relabeled to %d, want %d", u, res.MovedUnits[u], next)
		}
		next++
	}

	// Augmented events must carry only fresh ids; originals keep theirs.
	orig := len(syn.cfg.Train)
	for _, ev := range res.GroundTruth[orig:] {
		if ev.Unit < numUnits {
			t.Fatalf("augmented event kept old unit id %d", ev.Unit)
		}
	}
	for _, ev := range res.GroundTruth[:orig] {
		if ev.Unit >= numUnits {
			t.Fatalf("original event gained fresh unit id %d", ev.Unit)
		}
	}
}

func TestRun_TooManyBatchesFails(t *testing.T) {
	reader := testReader(t)
	train := testTrain()

	est, err := template.NewEstimator(reader, train, template.EstimatorConfig{})
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	if _, err := est.Estimate(testBatches); err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	syn, err := NewSynthesizer(Config{
		Templates:     est.Templates(),
		Train:         est.Train(),
		Reader:        reader,
		Scale:         1,
		LengthBatches: testBatches + 1,
		Rand:          rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}

	if _, err := syn.Run(filepath.Join(t.TempDir(), "aug.bin")); !errors.Is(err, recording.ErrEndOfStream) {
		t.Fatalf("got %v, want ErrEndOfStream", err)
	}
}
