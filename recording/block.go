// Package recording streams a raw binary multichannel recording in
// fixed-length batches, applying band-pass filtering, amplitude
// normalization, and spatial whitening to each batch, and writes processed
// batches back out in the same binary layout.
//
// The on-disk format is row-major interleaved int16 little-endian samples,
// [time][channel], with a fixed channel count for the whole file.
package recording

import "math"

// Block is a dense row-major [rows × cols] slab of samples, rows indexing
// time and cols indexing channels. A Block belongs to whichever stage is
// currently processing it and is never reused across batch iterations.
type Block struct {
	data []float64
	rows int
	cols int
}

// NewBlock returns a zero-filled Block of the given shape.
func NewBlock(rows, cols int) *Block {
	return &Block{
		data: make([]float64, rows*cols),
		rows: rows,
		cols: cols,
	}
}

// Rows returns the number of time samples.
func (b *Block) Rows() int { return b.rows }

// Cols returns the number of channels.
func (b *Block) Cols() int { return b.cols }

// Row returns the channel vector at time t, aliasing the block's storage.
func (b *Block) Row(t int) []float64 {
	return b.data[t*b.cols : t*b.cols+b.cols]
}

// At returns the sample at time t on channel c.
func (b *Block) At(t, c int) float64 {
	return b.data[t*b.cols+c]
}

// Set stores a sample at time t on channel c.
func (b *Block) Set(t, c int, v float64) {
	b.data[t*b.cols+c] = v
}

// Data returns the backing row-major slice.
func (b *Block) Data() []float64 { return b.data }

// Column gathers channel c into dst, which must have length Rows().
func (b *Block) Column(c int, dst []float64) {
	for t := 0; t < b.rows; t++ {
		dst[t] = b.data[t*b.cols+c]
	}
}

// SetColumn scatters src (length Rows()) into channel c.
func (b *Block) SetColumn(c int, src []float64) {
	for t := 0; t < b.rows; t++ {
		b.data[t*b.cols+c] = src[t]
	}
}

// std returns the population standard deviation of all samples in the block.
func (b *Block) std() float64 {
	n := float64(len(b.data))
	if n == 0 {
		return 0
	}

	var mean float64
	for _, v := range b.data {
		mean += v
	}
	mean /= n

	var m2 float64
	for _, v := range b.data {
		d := v - mean
		m2 += d * d
	}

	return math.Sqrt(m2 / n)
}
