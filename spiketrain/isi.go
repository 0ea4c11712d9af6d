package spiketrain

import "math"

// ISISummary models a unit's inter-spike intervals as log-normal: the mean
// and population standard deviation of log-intervals, plus the unit's spike
// count. A unit with fewer than two spikes keeps the degenerate zero summary.
type ISISummary struct {
	LogMean float64
	LogStd  float64
	Count   int
}

// Degenerate reports whether the unit had too few spikes for a summary.
func (s ISISummary) Degenerate() bool {
	return s.Count < 2
}

// SummarizeISI computes per-unit ISISummary values for units 0..numUnits-1.
// Times are sorted per unit; zero intervals (duplicate times) are promoted to
// one sample before the log so the summary stays finite.
func SummarizeISI(t Train, numUnits int) []ISISummary {
	out := make([]ISISummary, numUnits)

	for u := 0; u < numUnits; u++ {
		times := UnitTimes(t, u)
		if len(times) < 2 {
			out[u] = ISISummary{Count: len(times)}
			continue
		}

		logs := make([]float64, len(times)-1)
		for i := range logs {
			diff := times[i+1] - times[i]
			if diff == 0 {
				diff = 1
			}
			logs[i] = math.Log(float64(diff))
		}

		var mean float64
		for _, v := range logs {
			mean += v
		}
		mean /= float64(len(logs))

		var m2 float64
		for _, v := range logs {
			d := v - mean
			m2 += d * d
		}

		out[u] = ISISummary{
			LogMean: mean,
			LogStd:  math.Sqrt(m2 / float64(len(logs))),
			Count:   len(times),
		}
	}

	return out
}
