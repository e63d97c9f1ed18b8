// Package imagehash implements perceptual-similarity grouping for images:
// a 64-bit DCT-based hash, a BK-tree for Hamming-radius queries, and
// union-find for transitive clustering. No pack repo ships a ready-made
// phash/metric-tree library; two pack repos (autobrr-qui,
// leefowlercu-agentic-memorizer) depend on golang.org/x/image for extended
// image decoding, so decoding and downscaling reuse that package while the
// DCT, hash, tree and clustering are hand-rolled (justified in DESIGN.md).
package imagehash

import (
	"fmt"
	"image"
	"math"
	"math/bits"
	"os"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// hashSize is the side length of the downscaled grayscale image fed to the
// DCT; 32x32 gives an 8x8 low-frequency DCT block, i.e. a 64-bit hash.
const (
	hashSize  = 32
	dctBlock  = 8
	bitLength = dctBlock * dctBlock
)

// Hash64 is a 64-bit perceptual hash.
type Hash64 uint64

// HammingDistance returns the number of differing bits between two hashes.
func HammingDistance(a, b Hash64) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// ComputeFile decodes the image at path and computes its perceptual hash.
func ComputeFile(path string) (Hash64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return Compute(img), nil
}

// Compute produces a 64-bit DCT-based perceptual hash for an image:
// downscale to hashSize x hashSize grayscale, run a 2D DCT-II, keep the top-left
// 8x8 low-frequency block (excluding the DC term), and set each output bit
// according to whether that coefficient exceeds the block's median.
func Compute(img image.Image) Hash64 {
	gray := downscaleGray(img, hashSize, hashSize)
	coeffs := dct2D(gray, hashSize)

	// Collect the 8x8 low-frequency block, skipping the DC coefficient
	// (coeffs[0][0]) which only encodes overall brightness.
	values := make([]float64, 0, bitLength-1)
	for y := 0; y < dctBlock; y++ {
		for x := 0; x < dctBlock; x++ {
			if x == 0 && y == 0 {
				continue
			}
			values = append(values, coeffs[y*hashSize+x])
		}
	}
	median := medianOf(values)

	var hash uint64
	bit := 0
	for y := 0; y < dctBlock; y++ {
		for x := 0; x < dctBlock; x++ {
			if x == 0 && y == 0 {
				continue
			}
			if coeffs[y*hashSize+x] > median {
				hash |= 1 << uint(bit)
			}
			bit++
		}
	}
	return Hash64(hash)
}

// downscaleGray resizes img to w x h using golang.org/x/image/draw and
// returns a flattened row-major slice of luminance values in [0, 255].
func downscaleGray(img image.Image, w, h int) []float64 {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = float64(dst.GrayAt(x, y).Y)
		}
	}
	return out
}

// dct2D computes a separable 2D DCT-II over an n x n row-major grid.
func dct2D(pixels []float64, n int) []float64 {
	rowsTransformed := make([]float64, n*n)
	for y := 0; y < n; y++ {
		row := pixels[y*n : y*n+n]
		out := dct1D(row)
		copy(rowsTransformed[y*n:y*n+n], out)
	}

	out := make([]float64, n*n)
	col := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = rowsTransformed[y*n+x]
		}
		transformed := dct1D(col)
		for y := 0; y < n; y++ {
			out[y*n+x] = transformed[y]
		}
	}
	return out
}

// dct1D computes the 1D DCT-II of in, the textbook O(n^2) formulation
// (images are downscaled to 32x32 first, so this is 1024 multiplications
// per row or column — cheap relative to the file I/O that dominates a scan).
func dct1D(in []float64) []float64 {
	n := len(in)
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += in[i] * math.Cos(math.Pi/float64(n)*(float64(i)+0.5)*float64(k))
		}
		c := 1.0
		if k == 0 {
			c = 1.0 / math.Sqrt2
		}
		out[k] = sum * c
	}
	return out
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
