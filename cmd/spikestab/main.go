// Command spikestab runs the spike-sorting stability pipeline: it estimates
// per-unit templates from a raw recording, optionally synthesizes an
// augmented ground-truth recording, and scores a candidate sorting against
// the ground truth.
//
// Usage:
//
//	spikestab -rec raw.bin -geom probe.txt -channels 64 -spikes train.txt [flags]
//
// Examples:
//
//	spikestab -rec raw.bin -geom probe.txt -channels 64 -spikes train.txt
//	spikestab -rec raw.bin -geom probe.txt -channels 64 -spikes train.txt \
//	    -out augmented.bin -truth truth.txt -move 0.2 -seed 42
//	spikestab -rec raw.bin -geom probe.txt -channels 64 -spikes train.txt \
//	    -candidate sorted.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-spike/augment"
	"github.com/cwbudde/algo-spike/evaluate"
	"github.com/cwbudde/algo-spike/geom"
	"github.com/cwbudde/algo-spike/recording"
	"github.com/cwbudde/algo-spike/spiketrain"
	"github.com/cwbudde/algo-spike/template"
)

func main() {
	var (
		recPath   = flag.String("rec", "", "raw recording file (int16 little-endian, [time][channel])")
		geomPath  = flag.String("geom", "", "geometry file (one 'x y' line per channel)")
		spikes    = flag.String("spikes", "", "spike train file (one 'time unit' line per event)")
		candidate = flag.String("candidate", "", "candidate sorting to score against the reference")

		sampleRate = flag.Float64("rate", 20000, "sample rate in Hz")
		channels   = flag.Int("channels", 0, "channel count")
		batchSize  = flag.Int("batch", 20000, "time samples per batch")
		radius     = flag.Float64("radius", 70, "whitening neighbor radius")
		batches    = flag.Int("batches", 5, "batches used for template estimation")

		outPath     = flag.String("out", "", "write an augmented recording to this file")
		truthPath   = flag.String("truth", "", "write the combined ground-truth train to this file")
		length      = flag.Int("length", 5, "augmented recording length in batches")
		moveRate    = flag.Float64("move", 0.2, "fraction of units relocated spatially")
		augmentRate = flag.Float64("augment-rate", 0.25, "augmented spikes per unit as a fraction of its count")
		scale       = flag.Float64("scale", 1e3, "amplitude scale applied to augmented batches")
		seed        = flag.Int64("seed", 1, "random seed for augmentation")

		tolerance = flag.Int64("tol", evaluate.DefaultTolerance, "match tolerance in samples")
	)

	flag.Parse()

	if *recPath == "" || *geomPath == "" || *spikes == "" || *channels <= 0 {
		fmt.Fprintln(os.Stderr, "spikestab: -rec, -geom, -spikes, and -channels are required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(pipelineParams{
		recPath:     *recPath,
		geomPath:    *geomPath,
		spikesPath:  *spikes,
		candidate:   *candidate,
		sampleRate:  *sampleRate,
		channels:    *channels,
		batchSize:   *batchSize,
		radius:      *radius,
		batches:     *batches,
		outPath:     *outPath,
		truthPath:   *truthPath,
		length:      *length,
		moveRate:    *moveRate,
		augmentRate: *augmentRate,
		scale:       *scale,
		seed:        *seed,
		tolerance:   *tolerance,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "spikestab: %v\n", err)
		os.Exit(1)
	}
}

type pipelineParams struct {
	recPath    string
	geomPath   string
	spikesPath string
	candidate  string

	sampleRate float64
	channels   int
	batchSize  int
	radius     float64
	batches    int

	outPath     string
	truthPath   string
	length      int
	moveRate    float64
	augmentRate float64
	scale       float64
	seed        int64

	tolerance int64
}

func run(p pipelineParams) error {
	geomFile, err := os.Open(p.geomPath)
	if err != nil {
		return err
	}

	geometry, err := geom.ParseGeometry(geomFile)
	geomFile.Close()
	if err != nil {
		return err
	}

	train, err := loadTrain(p.spikesPath)
	if err != nil {
		return err
	}

	reader, err := recording.NewBatchReader(p.recPath, recording.ReaderConfig{
		Geometry:     geometry,
		SampleRate:   p.sampleRate,
		BatchSamples: p.batchSize,
		Channels:     p.channels,
		Radius:       p.radius,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	est, err := template.NewEstimator(reader, train, template.EstimatorConfig{
		Progress: func(done, total int) {
			fmt.Fprintf(os.Stderr, "templates: batch %d/%d\n", done, total)
		},
	})
	if err != nil {
		return err
	}

	violations, err := est.Estimate(p.batches)
	if err != nil {
		return err
	}

	fmt.Printf("estimated %d templates, %d boundary violations\n", est.Templates().NumUnits(), violations)
	printTemplateTable(est.Templates(), p.sampleRate)

	reference := est.Train()

	if p.outPath != "" {
		syn, err := augment.NewSynthesizer(augment.Config{
			Templates:     est.Templates(),
			Train:         reference,
			Reader:        reader,
			MoveRate:      p.moveRate,
			AugmentRate:   p.augmentRate,
			Scale:         p.scale,
			LengthBatches: p.length,
			Rand:          rand.New(rand.NewSource(p.seed)),
			Progress: func(done, total int) {
				fmt.Fprintf(os.Stderr, "augment: batch %d/%d\n", done, total)
			},
		})
		if err != nil {
			return err
		}

		res, err := syn.Run(p.outPath)
		if err != nil {
			return err
		}

		fmt.Printf("augmented recording written to %s (%d moved units, %d boundary violations)\n",
			p.outPath, len(res.MovedUnits), res.BoundaryViolations)

		reference = res.GroundTruth

		if p.truthPath != "" {
			if err := saveTrain(p.truthPath, res.GroundTruth); err != nil {
				return err
			}
			fmt.Printf("ground truth written to %s\n", p.truthPath)
		}
	}

	if p.candidate != "" {
		cand, err := loadTrain(p.candidate)
		if err != nil {
			return err
		}

		ev, err := evaluate.Evaluate(reference, cand, evaluate.WithTolerance(p.tolerance))
		if err != nil {
			return err
		}

		printEvaluation(ev)
	}

	return nil
}

func printTemplateTable(set *template.Set, sampleRate float64) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "unit\tspikes\tpeak channel\tcentroid [Hz]")

	for u := 0; u < set.NumUnits(); u++ {
		peaks := set.PeakChannels(u, 1)
		peak := 0
		if len(peaks) > 0 {
			peak = peaks[len(peaks)-1]
		}

		centroid := 0.0
		if mag, err := set.PowerSpectrum(u, peak); err == nil {
			centroid = template.SpectralCentroid(mag, sampleRate)
		}

		fmt.Fprintf(w, "%d\t%d\t%d\t%.1f\n", u, set.Count(u), peak, centroid)
	}

	w.Flush()
}

func printEvaluation(ev *evaluate.Evaluation) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "unit\tspikes\ttrue positive")

	for u, tp := range ev.TruePositive {
		fmt.Fprintf(w, "%d\t%d\t%.3f\n", u, ev.RefCounts[u], tp)
	}

	fmt.Fprintln(w, "\ncluster\tspikes\tbest unit\tfalse discovery")
	for c, fdr := range ev.FalseDiscovery {
		fmt.Fprintf(w, "%d\t%d\t%d\t%.3f\n", c, ev.ClusterCounts[c], ev.BestUnit[c], fdr)
	}

	w.Flush()
}

// loadTrain reads a spike train as one "time unit" pair per line.
func loadTrain(path string) (spiketrain.Train, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var train spiketrain.Train

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s: line %d: want 'time unit', got %q", path, line, text)
		}

		t, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, line, err)
		}

		u, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, line, err)
		}

		train = append(train, spiketrain.Event{Time: t, Unit: u})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return train, nil
}

// saveTrain writes a spike train as one "time unit" pair per line.
func saveTrain(path string, train spiketrain.Train) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(file)
	for _, ev := range train {
		fmt.Fprintf(w, "%d %d\n", ev.Time, ev.Unit)
	}

	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}

	return file.Close()
}
