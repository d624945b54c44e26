// Package distance provides the similarity kernels used to score card pairs.
//
// Embeddings are expected to be unit length, so cosine similarity reduces to a
// dot product. Vectors may be kept in single (float32) or half (float16)
// precision; half precision halves the memory of large decks at the cost of
// about three decimal digits of similarity.
//
// The float32 kernel is picked at init time from runtime CPU detection: when
// SIMD is available the Gonum BLAS implementation is used, otherwise a pure Go
// loop.
package distance

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/klauspost/cpuid/v2"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/blas/gonum"
)

// PrecisionType defines the data type used for vector storage during similarity search.
type PrecisionType string

const (
	// Float32 represents single-precision floating-point numbers.
	Float32 PrecisionType = "float32"
	// Float16 represents half-precision floating-point numbers stored as raw bits.
	Float16 PrecisionType = "float16"
)

// ErrLengthMismatch is returned when two vectors have different dimensions.
var ErrLengthMismatch = errors.New("vectors must have the same length")

type DotFuncF32 func(v1, v2 []float32) (float64, error)
type DotFuncF16 func(v1, v2 []uint16) (float64, error)

var gonumEngine = gonum.Implementation{}

// dotF32 is the active float32 kernel.
var dotF32 DotFuncF32 = dotProductGo

func init() {
	if cpuid.CPU.Has(cpuid.AVX) || cpuid.CPU.Has(cpuid.SSE2) || cpuid.CPU.Has(cpuid.ASIMD) {
		dotF32 = dotProductGonum
	}
	slog.Debug("similarity kernels selected",
		"cpu", cpuid.CPU.BrandName,
		"float32", kernelName(),
		"f16c", cpuid.CPU.Has(cpuid.F16C),
	)
}

func kernelName() string {
	if cpuid.CPU.Has(cpuid.AVX) || cpuid.CPU.Has(cpuid.SSE2) || cpuid.CPU.Has(cpuid.ASIMD) {
		return "gonum"
	}
	return "go"
}

// dotProductGo is the pure Go reference implementation for the dot product.
func dotProductGo(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	var sum float64
	for i := range v1 {
		sum += float64(v1[i]) * float64(v2[i])
	}
	return sum, nil
}

// dotProductGonum uses the Gonum BLAS Sdot, which dispatches to SIMD internally.
func dotProductGonum(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	return float64(gonumEngine.Sdot(len(v1), v1, 1, v2, 1)), nil
}

// dotProductFloat16 computes the dot product of two half-precision vectors.
func dotProductFloat16(v1, v2 []uint16) (float64, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	var sum float64
	for i := range v1 {
		sum += float64(float16.Frombits(v1[i]).Float32()) * float64(float16.Frombits(v2[i]).Float32())
	}
	return sum, nil
}

// GetFloat32Func returns the active float32 kernel. For unit vectors the dot
// product is the cosine similarity.
func GetFloat32Func() DotFuncF32 { return dotF32 }

// GetFloat16Func returns the float16 kernel.
func GetFloat16Func() DotFuncF16 { return dotProductFloat16 }

// ParsePrecision validates a precision name. The empty string means Float32.
func ParsePrecision(s string) (PrecisionType, error) {
	switch PrecisionType(s) {
	case "", Float32:
		return Float32, nil
	case Float16:
		return Float16, nil
	}
	return "", fmt.Errorf("precision '%s' not supported", s)
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// Normalize returns a unit-length copy of v, or nil if v has zero (or
// non-finite) norm. The input is not modified.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	out := make([]float32, len(v))
	inv := 1 / n
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// ToFloat16 converts a float32 vector into its half-precision bit representation.
func ToFloat16(v []float32) []uint16 {
	out := make([]uint16, len(v))
	for i, x := range v {
		out[i] = float16.Fromfloat32(x).Bits()
	}
	return out
}
