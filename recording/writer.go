package recording

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Writer appends Blocks to a recording file in the input layout: row-major
// interleaved int16 little-endian samples. Values outside the int16 range
// are clamped.
type Writer struct {
	file *os.File
	buf  *bufio.Writer
	enc  []byte
	n    int // batches written
}

// NewWriter creates (or truncates) the output recording at path.
func NewWriter(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recording: creating %s: %w", path, err)
	}

	return &Writer{
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// WriteBlock encodes and appends one block.
func (w *Writer) WriteBlock(b *Block) error {
	data := b.Data()

	need := len(data) * 2
	if cap(w.enc) < need {
		w.enc = make([]byte, need)
	}
	w.enc = w.enc[:need]

	for i, v := range data {
		binary.LittleEndian.PutUint16(w.enc[2*i:], uint16(clampInt16(v)))
	}

	if _, err := w.buf.Write(w.enc); err != nil {
		return fmt.Errorf("recording: writing batch %d: %w", w.n, err)
	}
	w.n++

	return nil
}

// BatchesWritten returns how many blocks have been written so far.
func (w *Writer) BatchesWritten() int { return w.n }

// Close flushes buffered samples and closes the file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("recording: flushing output: %w", err)
	}

	return w.file.Close()
}

func clampInt16(v float64) int16 {
	r := math.Round(v)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}
