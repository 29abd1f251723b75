package blob

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"

	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// Classifier evaluates a network's linear layer
type Classifier struct {
	w        *mat.Dense
	b        *mat.VecDense
	classes  int
	features int
}

// Classifier builds the evaluator for the network weights
func (n *Network) Classifier() (*Classifier, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	features := n.Features()
	w := make([]float64, len(n.Weights))
	for i, v := range n.Weights {
		w[i] = float64(v)
	}
	b := make([]float64, len(n.Bias))
	for i, v := range n.Bias {
		b[i] = float64(v)
	}
	return &Classifier{
		w:        mat.NewDense(n.Classes, features, w),
		b:        mat.NewVecDense(n.Classes, b),
		classes:  n.Classes,
		features: features,
	}, nil
}

// Classes returns the number of output classes
func (c *Classifier) Classes() int {
	return c.classes
}

// Logits computes W·x + b
func (c *Classifier) Logits(features []float32) ([]float32, error) {
	if len(features) != c.features {
		return nil, fmt.Errorf("classifier takes %d features, got %d", c.features, len(features))
	}
	x := make([]float64, len(features))
	for i, v := range features {
		x[i] = float64(v)
	}

	var y mat.VecDense
	y.MulVec(c.w, mat.NewVecDense(len(x), x))
	y.AddVec(&y, c.b)

	out := make([]float32, c.classes)
	for i := range out {
		out[i] = float32(y.AtVec(i))
	}
	return out, nil
}

// RandomOptions shapes a generated network
type RandomOptions struct {
	Name            string
	Archs           []string
	InputWidth      int
	InputHeight     int
	Classes         int
	OutputPrecision tensor.Precision
	Encoding        WeightEncoding
}

// Random generates a network with seeded uniform weights. FP16 networks
// carry weights already rounded to half precision.
func Random(seed int64, opts RandomOptions) *Network {
	if opts.Name == "" {
		opts.Name = "classifier"
	}
	if len(opts.Archs) == 0 {
		opts.Archs = []string{ArchAny}
	}
	if opts.InputWidth <= 0 {
		opts.InputWidth = 32
	}
	if opts.InputHeight <= 0 {
		opts.InputHeight = 32
	}
	if opts.Classes <= 0 {
		opts.Classes = 100
	}

	features := 3 * opts.InputWidth * opts.InputHeight
	rng := rand.New(rand.NewSource(seed))
	draw := func(limit float32) float32 {
		v := (rng.Float32()*2 - 1) * limit
		if opts.Encoding == WeightsFP16 {
			v = float16.Fromfloat32(v).Float32()
		}
		return v
	}

	// keeps logits of [0, 1] inputs within a few units
	limit := 4 / float32(math.Sqrt(float64(features)))
	weights := make([]float32, opts.Classes*features)
	for i := range weights {
		weights[i] = draw(limit)
	}
	bias := make([]float32, opts.Classes)
	for i := range bias {
		bias[i] = draw(0.5)
	}

	out := infer.PortInfo{
		Name:      "prob",
		Precision: opts.OutputPrecision,
		Layout:    tensor.LayoutNCHW,
		Shape:     tensor.Shape{N: 1, C: opts.Classes, H: 1, W: 1},
	}
	if opts.OutputPrecision == tensor.PrecisionU8 {
		out.Scale = 1.0 / 16
		out.ZeroPoint = 128
	}

	return &Network{
		Version: VersionV1,
		Name:    opts.Name,
		Archs:   opts.Archs,
		Inputs: []infer.PortInfo{{
			Name:        "data",
			Precision:   tensor.PrecisionU8,
			Layout:      tensor.LayoutNCHW,
			Shape:       tensor.Shape{N: 1, C: 3, H: opts.InputHeight, W: opts.InputWidth},
			ColorFormat: tensor.ColorRGB,
		}},
		Outputs:  []infer.PortInfo{out},
		Encoding: opts.Encoding,
		Classes:  opts.Classes,
		Weights:  weights,
		Bias:     bias,
	}
}
