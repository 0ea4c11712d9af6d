// Package spiketrain defines the spike-train event list shared by template
// estimation, augmentation, and scoring, plus the label normalization that all
// consumers rely on.
package spiketrain

import "sort"

// Event is one detected firing: a sample index and the unit it was assigned to.
type Event struct {
	Time int64
	Unit int
}

// Train is an event list. Input order is arbitrary; consumers that need
// time order sort per unit via UnitTimes.
type Train []Event

// Normalize relabels units to dense 0..U-1 and returns a fresh train.
//
// Raw labels are first offset by the train's own distinct-unit count, then
// renumbered in ascending original-label order. When two trains from
// different sources are compared, each must be normalized independently; the
// offset guarantees a raw label can never alias a normalized one mid-way.
// Normalizing an already-normalized train reproduces it unchanged.
func Normalize(t Train) Train {
	if len(t) == 0 {
		return Train{}
	}

	labels := distinctUnits(t)
	offset := len(labels)

	remap := make(map[int]int, len(labels))
	for i, u := range labels {
		remap[u+offset] = i
	}

	out := make(Train, len(t))
	for i, ev := range t {
		out[i] = Event{Time: ev.Time, Unit: remap[ev.Unit+offset]}
	}

	return out
}

// NumUnits returns the number of distinct unit labels in the train.
func NumUnits(t Train) int {
	return len(distinctUnits(t))
}

// MaxUnit returns the largest unit label, or -1 for an empty train.
// For a normalized train this is U-1.
func MaxUnit(t Train) int {
	maxU := -1
	for _, ev := range t {
		if ev.Unit > maxU {
			maxU = ev.Unit
		}
	}
	return maxU
}

// UnitTimes returns the sorted spike times of unit u as a fresh slice.
func UnitTimes(t Train, u int) []int64 {
	var times []int64
	for _, ev := range t {
		if ev.Unit == u {
			times = append(times, ev.Time)
		}
	}

	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	return times
}

// CountPerUnit tallies events per unit for labels 0..numUnits-1.
// Events with labels outside that range are ignored.
func CountPerUnit(t Train, numUnits int) []int {
	counts := make([]int, numUnits)
	for _, ev := range t {
		if ev.Unit >= 0 && ev.Unit < numUnits {
			counts[ev.Unit]++
		}
	}
	return counts
}

func distinctUnits(t Train) []int {
	seen := make(map[int]struct{}, 16)
	for _, ev := range t {
		seen[ev.Unit] = struct{}{}
	}

	labels := make([]int, 0, len(seen))
	for u := range seen {
		labels = append(labels, u)
	}
	sort.Ints(labels)

	return labels
}
