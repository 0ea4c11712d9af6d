package testutil

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// Int16Noise generates deterministic int16 noise in [-amplitude, amplitude).
func Int16Noise(seed int64, amplitude, length int) []int16 {
	rng := rand.New(rand.NewSource(seed))

	out := make([]int16, length)
	for i := range out {
		out[i] = int16(rng.Intn(2*amplitude) - amplitude)
	}

	return out
}

// WriteRecording writes samples as a little-endian int16 recording in a
// temporary directory and returns the file path.
func WriteRecording(t *testing.T, samples []int16) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rec.bin")

	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}

	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("writing recording fixture: %v", err)
	}

	return path
}
