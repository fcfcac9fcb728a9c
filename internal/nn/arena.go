// Package nn implements the small feed-forward regressor used for spending
// forecasts: dense layers, ReLU, mean-absolute-error loss and Adam.
//
// Every buffer a model touches comes from an Arena. Callers acquire one arena
// per training session and release it when done; Release hands all buffers
// back to a shared pool whether training succeeded or not.
package nn

import (
	"sync"
	"sync/atomic"
)

var (
	bufferPool = sync.Pool{New: func() any { return new([]float64) }}
	live       atomic.Int64
)

// LiveBuffers reports how many arena buffers are currently checked out.
func LiveBuffers() int64 {
	return live.Load()
}

// Arena tracks the buffers handed out for one session. It is not safe for
// concurrent use.
type Arena struct {
	bufs     []*[]float64
	released bool
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc returns a zeroed slice of length n owned by the arena.
func (a *Arena) Alloc(n int) []float64 {
	if a.released {
		panic("nn: alloc on released arena")
	}
	p := bufferPool.Get().(*[]float64)
	if cap(*p) < n {
		*p = make([]float64, n)
	}
	*p = (*p)[:n]
	clear(*p)
	a.bufs = append(a.bufs, p)
	live.Add(1)
	return *p
}

// Matrix allocates a rows x cols matrix.
func (a *Arena) Matrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: a.Alloc(rows * cols)}
}

// Release returns every buffer to the pool. It is safe to call more than once.
func (a *Arena) Release() {
	if a.released {
		return
	}
	a.released = true
	for _, p := range a.bufs {
		clear(*p)
		bufferPool.Put(p)
	}
	live.Add(-int64(len(a.bufs)))
	a.bufs = nil
}

// Size is the number of buffers the arena currently holds.
func (a *Arena) Size() int {
	return len(a.bufs)
}

// Matrix is a dense row-major matrix.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

func (m Matrix) At(r, c int) float64 {
	return m.Data[r*m.Cols+c]
}

func (m Matrix) Set(r, c int, v float64) {
	m.Data[r*m.Cols+c] = v
}

// Row returns a view of row r.
func (m Matrix) Row(r int) []float64 {
	return m.Data[r*m.Cols : (r+1)*m.Cols]
}
