package nn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const (
	Linear Activation = iota
	ReLU
)

var (
	ErrShapeMismatch  = errors.New("nn: shape mismatch")
	ErrEmptyDataset   = errors.New("nn: empty dataset")
	ErrNonFiniteLoss  = errors.New("nn: loss is not finite")
	ErrInvalidConfig  = errors.New("nn: invalid training config")
	ErrNonFiniteInput = errors.New("nn: input is not finite")
	ErrNonFiniteOut   = errors.New("nn: output is not finite")
)

type Activation int

// TrainConfig holds the optimizer settings for Fit.
type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	Shuffle      bool
}

// DefaultTrainConfig mirrors the forecasting defaults: Adam at 0.01, 50 epochs.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       50,
		BatchSize:    8,
		LearningRate: 0.01,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
		Shuffle:      true,
	}
}

func (c TrainConfig) validate() error {
	if c.Epochs <= 0 || c.BatchSize <= 0 || c.LearningRate <= 0 {
		return fmt.Errorf("%w: epochs=%d batch=%d lr=%g", ErrInvalidConfig, c.Epochs, c.BatchSize, c.LearningRate)
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 || c.Epsilon <= 0 {
		return fmt.Errorf("%w: beta1=%g beta2=%g eps=%g", ErrInvalidConfig, c.Beta1, c.Beta2, c.Epsilon)
	}
	return nil
}

// Dense is a fully connected layer. W is Out x In, row-major.
type Dense struct {
	In, Out int
	Act     Activation

	W, B []float64
	// Adam moments and gradients
	mW, vW, mB, vB []float64
	gW, gB         []float64
}

func newDense(a *Arena, rng *rand.Rand, in, out int, act Activation) *Dense {
	d := &Dense{
		In: in, Out: out, Act: act,
		W:  a.Alloc(in * out), B: a.Alloc(out),
		mW: a.Alloc(in * out), vW: a.Alloc(in * out),
		mB: a.Alloc(out), vB: a.Alloc(out),
		gW: a.Alloc(in * out), gB: a.Alloc(out),
	}
	// Glorot uniform, zero bias
	limit := math.Sqrt(6 / float64(in+out))
	for i := range d.W {
		d.W[i] = (rng.Float64()*2 - 1) * limit
	}
	return d
}

// forward computes z = x W^T + b and a = act(z) for the first m rows.
func (d *Dense) forward(x, z, out Matrix, m int) {
	for r := 0; r < m; r++ {
		xr := x.Row(r)
		zr := z.Row(r)
		ar := out.Row(r)
		for o := 0; o < d.Out; o++ {
			s := d.B[o]
			w := d.W[o*d.In : (o+1)*d.In]
			for i, xv := range xr {
				s += w[i] * xv
			}
			zr[o] = s
			ar[o] = activate(d.Act, s)
		}
	}
}

func activate(act Activation, v float64) float64 {
	if act == ReLU && v < 0 {
		return 0
	}
	return v
}

func derivative(act Activation, z float64) float64 {
	if act == ReLU {
		if z > 0 {
			return 1
		}
		return 0
	}
	return 1
}

// Model is a stack of dense layers ending in a single linear unit.
type Model struct {
	layers []*Dense
	arena  *Arena
	step   int
}

// NewRegressor builds in -> hidden... -> 1 with ReLU hidden layers. All
// parameters live in arena.
func NewRegressor(arena *Arena, rng *rand.Rand, in int, hidden ...int) *Model {
	m := &Model{arena: arena}
	prev := in
	for _, h := range hidden {
		m.layers = append(m.layers, newDense(arena, rng, prev, h, ReLU))
		prev = h
	}
	m.layers = append(m.layers, newDense(arena, rng, prev, 1, Linear))
	return m
}

// InputWidth is the number of features the model expects.
func (m *Model) InputWidth() int {
	return m.layers[0].In
}

// workspace holds per-layer activations for a batch of up to rows samples.
type workspace struct {
	input  Matrix
	z, a   []Matrix
	deltas []Matrix
}

func (m *Model) newWorkspace(rows int) *workspace {
	ws := &workspace{input: m.arena.Matrix(rows, m.InputWidth())}
	for _, l := range m.layers {
		ws.z = append(ws.z, m.arena.Matrix(rows, l.Out))
		ws.a = append(ws.a, m.arena.Matrix(rows, l.Out))
		ws.deltas = append(ws.deltas, m.arena.Matrix(rows, l.Out))
	}
	return ws
}

func (m *Model) forward(ws *workspace, rows int) {
	in := ws.input
	for i, l := range m.layers {
		l.forward(in, ws.z[i], ws.a[i], rows)
		in = ws.a[i]
	}
}

// Fit trains on x (n x in) against y (n) with mean-absolute-error loss and
// returns the final epoch loss.
func (m *Model) Fit(ctx context.Context, rng *rand.Rand, x Matrix, y []float64, cfg TrainConfig) (float64, error) {
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	if x.Rows == 0 {
		return 0, ErrEmptyDataset
	}
	if x.Cols != m.InputWidth() || len(y) != x.Rows {
		return 0, fmt.Errorf("%w: x=%dx%d y=%d want width %d", ErrShapeMismatch, x.Rows, x.Cols, len(y), m.InputWidth())
	}

	batch := min(cfg.BatchSize, x.Rows)
	ws := m.newWorkspace(batch)
	order := make([]int, x.Rows)
	for i := range order {
		order[i] = i
	}
	targets := m.arena.Alloc(batch)

	var loss float64
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return loss, err
		}
		if cfg.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var total float64
		for start := 0; start < x.Rows; start += batch {
			rows := min(batch, x.Rows-start)
			for r := 0; r < rows; r++ {
				copy(ws.input.Row(r), x.Row(order[start+r]))
				targets[r] = y[order[start+r]]
			}
			total += m.trainBatch(ws, targets, rows, cfg)
		}
		loss = total / float64(x.Rows)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return loss, fmt.Errorf("%w at epoch %d", ErrNonFiniteLoss, epoch)
		}
	}
	return loss, nil
}

// trainBatch runs one forward/backward pass and an Adam step. It returns the
// summed absolute error of the batch.
func (m *Model) trainBatch(ws *workspace, targets []float64, rows int, cfg TrainConfig) float64 {
	m.forward(ws, rows)

	last := len(m.layers) - 1
	out := ws.a[last]
	var sum float64
	for r := 0; r < rows; r++ {
		diff := out.At(r, 0) - targets[r]
		sum += math.Abs(diff)
		g := 0.0
		switch {
		case diff > 0:
			g = 1
		case diff < 0:
			g = -1
		}
		ws.deltas[last].Set(r, 0, g/float64(rows)*derivative(m.layers[last].Act, ws.z[last].At(r, 0)))
	}

	for li := last; li >= 0; li-- {
		l := m.layers[li]
		prev := ws.input
		if li > 0 {
			prev = ws.a[li-1]
		}
		delta := ws.deltas[li]

		clear(l.gW)
		clear(l.gB)
		for r := 0; r < rows; r++ {
			dr := delta.Row(r)
			pr := prev.Row(r)
			for o, dv := range dr {
				if dv == 0 {
					continue
				}
				l.gB[o] += dv
				g := l.gW[o*l.In : (o+1)*l.In]
				for i, pv := range pr {
					g[i] += dv * pv
				}
			}
		}

		if li > 0 {
			below := m.layers[li-1]
			bd := ws.deltas[li-1]
			for r := 0; r < rows; r++ {
				dr := delta.Row(r)
				for i := 0; i < l.In; i++ {
					var s float64
					for o, dv := range dr {
						s += dv * l.W[o*l.In+i]
					}
					bd.Set(r, i, s*derivative(below.Act, ws.z[li-1].At(r, i)))
				}
			}
		}
	}

	m.step++
	for _, l := range m.layers {
		adam(l.W, l.gW, l.mW, l.vW, m.step, cfg)
		adam(l.B, l.gB, l.mB, l.vB, m.step, cfg)
	}
	return sum
}

func adam(param, grad, mom, vel []float64, step int, cfg TrainConfig) {
	c1 := 1 - math.Pow(cfg.Beta1, float64(step))
	c2 := 1 - math.Pow(cfg.Beta2, float64(step))
	for i, g := range grad {
		mom[i] = cfg.Beta1*mom[i] + (1-cfg.Beta1)*g
		vel[i] = cfg.Beta2*vel[i] + (1-cfg.Beta2)*g*g
		mh := mom[i] / c1
		vh := vel[i] / c2
		param[i] -= cfg.LearningRate * mh / (math.Sqrt(vh) + cfg.Epsilon)
	}
}

// Predict runs a forward pass for a single sample.
func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != m.InputWidth() {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, len(x), m.InputWidth())
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, ErrNonFiniteInput
		}
	}
	ws := m.newWorkspace(1)
	copy(ws.input.Row(0), x)
	m.forward(ws, 1)
	out := ws.a[len(m.layers)-1].At(0, 0)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, ErrNonFiniteOut
	}
	return out, nil
}
