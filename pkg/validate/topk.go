package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

type score interface {
	~uint8 | ~float32
}

// TopKClasses ranks the elements of t by value, highest first, and returns
// the indices of the first k. Ties keep index order and NaN ranks below
// every number. k larger than the tensor is clamped.
func TopKClasses(t *infer.Tensor, k int) ([]int, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if t == nil {
		return nil, ErrNilTensor
	}
	switch t.Precision {
	case tensor.PrecisionU8:
		v, err := t.Uint8s()
		if err != nil {
			return nil, err
		}
		return topK(v, k), nil
	case tensor.PrecisionFP32:
		v, err := t.Float32s()
		if err != nil {
			return nil, err
		}
		return topK(v, k), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPrecision, t.Precision)
	}
}

func topK[T score](values []T, k int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return above(values[idx[i]], values[idx[j]])
	})
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}

// above orders a before b; NaN is never above anything
func above[T score](a, b T) bool {
	if a != a {
		return false
	}
	if b != b {
		return true
	}
	return a > b
}

// CompareTopK reports whether the top k classes of a and b are the same set
func CompareTopK(a, b *infer.Tensor, k int) (bool, error) {
	r, err := Compare(a, b, k)
	if err != nil {
		return false, err
	}
	return r.Match, nil
}

// Report is the diagnostic result of comparing two rankings
type Report struct {
	K         int
	Offload   []int
	Reference []int

	// OnlyOffload and OnlyReference hold the classes present in one ranking only
	OnlyOffload   []int
	OnlyReference []int
	Match         bool

	// Tolerance is the score distance from the reference's k-th class
	// within which a class crossing the cut still counts as a tie
	Tolerance float64
}

// Compare ranks both tensors and diffs their top k sets
func Compare(offload, reference *infer.Tensor, k int) (*Report, error) {
	a, err := TopKClasses(offload, k)
	if err != nil {
		return nil, fmt.Errorf("offload: %w", err)
	}
	b, err := TopKClasses(reference, k)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}

	r := &Report{
		K:             k,
		Offload:       a,
		Reference:     b,
		OnlyOffload:   missing(a, b),
		OnlyReference: missing(b, a),
	}
	r.Match = len(a) == len(b) && len(r.OnlyOffload) == 0 && len(r.OnlyReference) == 0
	return r, nil
}

// CompareWithin is Compare for outputs computed by different resamplers.
// A class in only one ranking is accepted when its reference score is
// within tol of the reference's k-th score, i.e. it tied at the cut.
func CompareWithin(offload, reference *infer.Tensor, k int, tol float64) (*Report, error) {
	if tol < 0 || tol != tol {
		return nil, fmt.Errorf("%w: tolerance %v", ErrInvalidTolerance, tol)
	}
	r, err := Compare(offload, reference, k)
	if err != nil {
		return nil, err
	}
	r.Tolerance = tol
	if r.Match || len(r.Offload) != len(r.Reference) || len(r.Reference) == 0 {
		return r, nil
	}

	ref, err := scores(reference)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	cut := ref[r.Reference[len(r.Reference)-1]]
	r.Match = true
	for _, c := range append(append([]int{}, r.OnlyOffload...), r.OnlyReference...) {
		if d := math.Abs(ref[c] - cut); !(d <= tol) {
			r.Match = false
			break
		}
	}
	return r, nil
}

func scores(t *infer.Tensor) ([]float64, error) {
	if t.Precision == tensor.PrecisionU8 {
		v, err := t.Uint8s()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	}
	v, err := t.Float32s()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out, nil
}

// missing returns the members of a absent from b, in a's order
func missing(a, b []int) []int {
	in := make(map[int]struct{}, len(b))
	for _, v := range b {
		in[v] = struct{}{}
	}
	var out []int
	for _, v := range a {
		if _, ok := in[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func (r *Report) String() string {
	var sb strings.Builder
	if r.Match {
		fmt.Fprintf(&sb, "top-%d match", r.K)
	} else {
		fmt.Fprintf(&sb, "top-%d mismatch", r.K)
	}
	fmt.Fprintf(&sb, ": offload %v, reference %v", r.Offload, r.Reference)
	if r.Tolerance > 0 {
		fmt.Fprintf(&sb, ", ties within %g", r.Tolerance)
	}
	if !r.Match {
		fmt.Fprintf(&sb, " (only offload %v, only reference %v)", r.OnlyOffload, r.OnlyReference)
	}
	return sb.String()
}
