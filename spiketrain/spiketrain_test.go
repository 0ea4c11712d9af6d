package spiketrain

import (
	"math"
	"testing"
)

func TestNormalize_DenseLabels(t *testing.T) {
	train := Train{
		{Time: 100, Unit: 7},
		{Time: 200, Unit: 3},
		{Time: 300, Unit: 7},
		{Time: 400, Unit: 42},
	}

	got := Normalize(train)

	want := Train{
		{Time: 100, Unit: 1},
		{Time: 200, Unit: 0},
		{Time: 300, Unit: 1},
		{Time: 400, Unit: 2},
	}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if NumUnits(got) != 3 || MaxUnit(got) != 2 {
		t.Fatalf("normalized train has units %d max %d, want 3 and 2", NumUnits(got), MaxUnit(got))
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	train := Train{{Time: 10, Unit: 5}, {Time: 20, Unit: 9}, {Time: 30, Unit: 5}}

	once := Normalize(train)
	twice := Normalize(once)

	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("event %d: %+v != %+v", i, once[i], twice[i])
		}
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	train := Train{{Time: 10, Unit: 5}}
	Normalize(train)

	if train[0].Unit != 5 {
		t.Fatalf("input mutated: unit = %d, want 5", train[0].Unit)
	}
}

func TestNormalize_Empty(t *testing.T) {
	if got := Normalize(nil); len(got) != 0 {
		t.Fatalf("Normalize(nil) = %v, want empty", got)
	}
}

func TestUnitTimes_SortsCopies(t *testing.T) {
	train := Train{
		{Time: 500, Unit: 0},
		{Time: 100, Unit: 0},
		{Time: 300, Unit: 1},
	}

	times := UnitTimes(train, 0)
	if len(times) != 2 || times[0] != 100 || times[1] != 500 {
		t.Fatalf("UnitTimes = %v, want [100 500]", times)
	}
}

func TestCountPerUnit(t *testing.T) {
	train := Train{
		{Time: 1, Unit: 0},
		{Time: 2, Unit: 0},
		{Time: 3, Unit: 1},
	}

	counts := CountPerUnit(train, 3)
	if counts[0] != 2 || counts[1] != 1 || counts[2] != 0 {
		t.Fatalf("counts = %v, want [2 1 0]", counts)
	}
}

func TestSummarizeISI(t *testing.T) {
	// Unit 0 fires with constant interval 100: LogStd must be 0 and
	// LogMean exactly log(100). Unit 1 has a single spike (degenerate).
	train := Train{
		{Time: 100, Unit: 0},
		{Time: 200, Unit: 0},
		{Time: 300, Unit: 0},
		{Time: 50, Unit: 1},
	}

	sums := SummarizeISI(train, 2)

	if sums[0].Count != 3 {
		t.Fatalf("unit 0 count = %d, want 3", sums[0].Count)
	}
	if math.Abs(sums[0].LogMean-math.Log(100)) > 1e-12 {
		t.Fatalf("unit 0 LogMean = %v, want log(100)", sums[0].LogMean)
	}
	if sums[0].LogStd != 0 {
		t.Fatalf("unit 0 LogStd = %v, want 0", sums[0].LogStd)
	}

	if !sums[1].Degenerate() || sums[1].LogMean != 0 || sums[1].LogStd != 0 {
		t.Fatalf("unit 1 summary = %+v, want degenerate zero", sums[1])
	}
}

func TestSummarizeISI_DuplicateTimes(t *testing.T) {
	train := Train{
		{Time: 100, Unit: 0},
		{Time: 100, Unit: 0},
	}

	sums := SummarizeISI(train, 1)

	// The zero interval is promoted to 1 sample, so log(1) = 0.
	if sums[0].LogMean != 0 || math.IsInf(sums[0].LogMean, -1) {
		t.Fatalf("LogMean = %v, want 0", sums[0].LogMean)
	}
}
