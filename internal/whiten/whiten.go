// Package whiten implements spatial decorrelation of a recording block over
// channel neighborhoods. Each channel is replaced by the corresponding row of
// the ZCA transform Q = V D^-1/2 V^T of its neighborhood covariance, which
// removes correlated noise between nearby channels.
package whiten

import "math"

const (
	// eigenFloor clamps eigenvalues before the inverse square root so that
	// near-singular neighborhoods do not explode.
	eigenFloor = 1e-9

	jacobiSweeps = 64
	jacobiTol    = 1e-12
)

// Apply whitens block (row-major [rows × cols]) in place over the given
// channel neighborhoods. refSamples is the minimum number of time samples
// required for a stable covariance estimate; blocks with fewer rows pass
// through unchanged. Neighbor lists must contain the channel itself.
func Apply(block []float64, rows, cols int, neighbors [][]int, refSamples int) {
	if rows < refSamples || rows == 0 {
		return
	}

	out := make([]float64, rows*cols)

	var (
		sub []float64 // gathered neighborhood, column-major [k][rows]
		cov []float64
		q   []float64
	)

	for c := 0; c < cols; c++ {
		hood := neighbors[c]
		k := len(hood)
		if k == 0 {
			for t := 0; t < rows; t++ {
				out[t*cols+c] = block[t*cols+c]
			}
			continue
		}

		if cap(sub) < k*rows {
			sub = make([]float64, k*rows)
		}
		sub = sub[:k*rows]

		self := -1
		for j, ch := range hood {
			if ch == c {
				self = j
			}
			for t := 0; t < rows; t++ {
				sub[j*rows+t] = block[t*cols+ch]
			}
		}
		if self < 0 {
			// the channel must appear in its own neighborhood
			self = 0
		}

		cov = covariance(cov, sub, k, rows)
		q = inverseSqrt(q, cov, k)

		// out[t][c] = sum_j q[self][j] * sub[j][t]
		row := q[self*k : self*k+k]
		for t := 0; t < rows; t++ {
			var acc float64
			for j := 0; j < k; j++ {
				acc += row[j] * sub[j*rows+t]
			}
			out[t*cols+c] = acc
		}
	}

	copy(block, out)
}

// covariance computes C = X X^T / rows for column-major X [k][rows].
// The block is band-passed upstream, so channel means are treated as zero.
func covariance(dst, x []float64, k, rows int) []float64 {
	if cap(dst) < k*k {
		dst = make([]float64, k*k)
	}
	dst = dst[:k*k]

	inv := 1 / float64(rows)
	for i := 0; i < k; i++ {
		xi := x[i*rows : i*rows+rows]
		for j := i; j < k; j++ {
			xj := x[j*rows : j*rows+rows]

			var acc float64
			for t := 0; t < rows; t++ {
				acc += xi[t] * xj[t]
			}

			dst[i*k+j] = acc * inv
			dst[j*k+i] = acc * inv
		}
	}

	return dst
}

// inverseSqrt computes Q = V D^-1/2 V^T of the symmetric matrix a [k×k].
func inverseSqrt(dst, a []float64, k int) []float64 {
	eig := append([]float64(nil), a...)
	vec := identity(k)

	jacobi(eig, vec, k)

	if cap(dst) < k*k {
		dst = make([]float64, k*k)
	}
	dst = dst[:k*k]
	for i := range dst {
		dst[i] = 0
	}

	for m := 0; m < k; m++ {
		lambda := eig[m*k+m]
		if lambda < eigenFloor {
			lambda = eigenFloor
		}
		w := 1 / math.Sqrt(lambda)

		for i := 0; i < k; i++ {
			vi := vec[i*k+m] * w
			for j := 0; j < k; j++ {
				dst[i*k+j] += vi * vec[j*k+m]
			}
		}
	}

	return dst
}

func identity(k int) []float64 {
	v := make([]float64, k*k)
	for i := 0; i < k; i++ {
		v[i*k+i] = 1
	}
	return v
}

// jacobi diagonalizes the symmetric matrix a in place with cyclic Jacobi
// rotations, accumulating eigenvectors into v (columns).
func jacobi(a, v []float64, k int) {
	for sweep := 0; sweep < jacobiSweeps; sweep++ {
		var off float64
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				off += a[i*k+j] * a[i*k+j]
			}
		}
		if off < jacobiTol {
			return
		}

		for p := 0; p < k; p++ {
			for q := p + 1; q < k; q++ {
				apq := a[p*k+q]
				if math.Abs(apq) < jacobiTol {
					continue
				}

				app := a[p*k+p]
				aqq := a[q*k+q]

				theta := (aqq - app) / (2 * apq)
				t := math.Copysign(1, theta) / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				cs := 1 / math.Sqrt(t*t+1)
				sn := t * cs

				for i := 0; i < k; i++ {
					aip := a[i*k+p]
					aiq := a[i*k+q]
					a[i*k+p] = cs*aip - sn*aiq
					a[i*k+q] = sn*aip + cs*aiq
				}

				for i := 0; i < k; i++ {
					api := a[p*k+i]
					aqi := a[q*k+i]
					a[p*k+i] = cs*api - sn*aqi
					a[q*k+i] = sn*api + cs*aqi
				}

				for i := 0; i < k; i++ {
					vip := v[i*k+p]
					viq := v[i*k+q]
					v[i*k+p] = cs*vip - sn*viq
					v[i*k+q] = sn*vip + cs*viq
				}
			}
		}
	}
}
