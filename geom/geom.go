// Package geom models the spatial layout of a multichannel extracellular
// probe: per-channel (x, y) coordinates, the inverse coordinate-to-channel
// lookup, and radius-bounded channel neighborhoods.
package geom

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Errors returned by geometry functions.
var (
	ErrMalformedGeometry    = errors.New("geom: geometry line must contain exactly two coordinates")
	ErrEmptyGeometry        = errors.New("geom: geometry contains no channels")
	ErrNonUniqueCoordinates = errors.New("geom: channel coordinates must be unique")
	ErrInvalidRadius        = errors.New("geom: radius must be positive")
)

// coordQuantum is the grid step used to key coordinates for inverse lookup.
// Coordinates closer than half a quantum map to the same key, which sidesteps
// exact float equality when matching spatially shifted positions.
const coordQuantum = 1e-6

type coordKey struct {
	x, y int64
}

func quantize(x, y float64) coordKey {
	return coordKey{
		x: int64(math.Round(x / coordQuantum)),
		y: int64(math.Round(y / coordQuantum)),
	}
}

// Geometry holds the probe layout. Construct it once via ParseGeometry and
// treat it as read-only afterwards.
type Geometry struct {
	x, y    []float64
	inverse map[coordKey]int
}

// ParseGeometry reads the text geometry format: one line per channel, two
// whitespace-separated numeric coordinates, line order defining channel order.
// Blank lines are skipped. The inverse coordinate map requires unique
// coordinates; duplicates fail with ErrNonUniqueCoordinates.
func ParseGeometry(r io.Reader) (*Geometry, error) {
	g := &Geometry{inverse: make(map[coordKey]int)}

	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformedGeometry, line, len(fields))
		}

		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("geom: line %d: %w", line, err)
		}

		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("geom: line %d: %w", line, err)
		}

		key := quantize(x, y)
		if _, dup := g.inverse[key]; dup {
			return nil, fmt.Errorf("%w: line %d duplicates (%v, %v)", ErrNonUniqueCoordinates, line, x, y)
		}

		g.inverse[key] = len(g.x)
		g.x = append(g.x, x)
		g.y = append(g.y, y)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("geom: reading geometry: %w", err)
	}

	if len(g.x) == 0 {
		return nil, ErrEmptyGeometry
	}

	return g, nil
}

// FromCoordinates builds a Geometry directly from coordinate slices.
// Both slices must have equal length and unique coordinate pairs.
func FromCoordinates(x, y []float64) (*Geometry, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d x values vs %d y values", ErrMalformedGeometry, len(x), len(y))
	}

	if len(x) == 0 {
		return nil, ErrEmptyGeometry
	}

	g := &Geometry{
		x:       append([]float64(nil), x...),
		y:       append([]float64(nil), y...),
		inverse: make(map[coordKey]int, len(x)),
	}

	for i := range x {
		key := quantize(x[i], y[i])
		if _, dup := g.inverse[key]; dup {
			return nil, fmt.Errorf("%w: channel %d duplicates (%v, %v)", ErrNonUniqueCoordinates, i, x[i], y[i])
		}

		g.inverse[key] = i
	}

	return g, nil
}

// Channels returns the channel count.
func (g *Geometry) Channels() int {
	return len(g.x)
}

// Position returns the (x, y) coordinate of channel c.
func (g *Geometry) Position(c int) (float64, float64) {
	return g.x[c], g.y[c]
}

// ChannelAt returns the channel located at (x, y), matching through the
// quantized inverse map. The second result reports whether any channel sits
// at that coordinate.
func (g *Geometry) ChannelAt(x, y float64) (int, bool) {
	c, ok := g.inverse[quantize(x, y)]
	return c, ok
}

// FindChannelNeighbors returns, for each channel, the ascending indices of
// all channels within Euclidean radius (inclusive). Every channel neighbors
// itself.
func (g *Geometry) FindChannelNeighbors(radius float64) ([][]int, error) {
	if radius <= 0 || math.IsNaN(radius) {
		return nil, ErrInvalidRadius
	}

	n := len(g.x)
	r2 := radius * radius

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dx := g.x[i] - g.x[j]
			dy := g.y[i] - g.y[j]

			if dx*dx+dy*dy <= r2 {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	return neighbors, nil
}
