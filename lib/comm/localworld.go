package comm

import (
	"fmt"
	"sync"
)

// world is the shared, mutex-guarded rendezvous point for one group of
// ranks. Every Comm method maps onto a call to do, a generic
// sense-reversing barrier: each rank deposits its contribution, the last
// rank to arrive computes the collective's result once, and every rank
// (including the one that computed it) reads the same result before the
// barrier resets for the next call.
//
// This assumes -- as spec.md 5's bulk-synchronous ordering guarantee
// requires -- that every rank calls collectives in the same relative
// order; sparc's driver (lib/driver) never violates this, since all
// ranks run the identical per-step sequence of phases.
type world struct {
	mu         sync.Mutex
	cond       *sync.Cond
	n          int
	arrived    int
	generation int
	data       []interface{}
	result     interface{}
	resultErr  error
	aborted    error
}

func newWorld(n int) *world {
	w := &world{n: n, data: make([]interface{}, n)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// do runs one collective. compute is invoked exactly once, by whichever
// rank happens to be the last to arrive, with every rank's contribution
// available by index. Its result (or error) is then visible to every
// rank's call to do, including the caller that computed it.
func (w *world) do(rank int, contrib interface{}, compute func([]interface{}) (interface{}, error)) (interface{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.aborted != nil {
		return nil, w.aborted
	}

	w.data[rank] = contrib
	w.arrived++
	myGeneration := w.generation

	if w.arrived == w.n {
		res, err := compute(w.data)
		w.result, w.resultErr = res, err
		w.arrived = 0
		w.data = make([]interface{}, w.n)
		w.generation++
		w.cond.Broadcast()
	} else {
		for w.generation == myGeneration && w.aborted == nil {
			w.cond.Wait()
		}
	}

	if w.aborted != nil {
		return nil, w.aborted
	}
	return w.result, w.resultErr
}

// abort poisons every past and future call to do on this world: a rank
// that hits an error outside of a collective (or detects malformed
// arguments before entering one) calls this so its siblings don't block
// forever waiting for a rank that will never arrive. This models spec.md
// 5's "process death collapses the communicator -- treat as a fatal
// global error."
func (w *world) abort(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aborted == nil {
		w.aborted = err
	}
	w.cond.Broadcast()
}

// rankComm is one rank's Comm handle onto a shared world.
type rankComm struct {
	w    *world
	rank int
}

// NewLocalWorld builds an in-process communicator of p ranks. It returns
// p Comm handles, one per rank, sharing a single barrier/rendezvous
// structure; the caller is expected to drive handles[i] from its own
// goroutine (lib/driver does exactly this).
func NewLocalWorld(p int) []Comm {
	if p == 1 {
		return []Comm{NewSingleRank()}
	}
	w := newWorld(p)
	out := make([]Comm, p)
	for r := 0; r < p; r++ {
		out[r] = &rankComm{w: w, rank: r}
	}
	return out
}

func (c *rankComm) Rank() int { return c.rank }
func (c *rankComm) Size() int { return c.w.n }

func (c *rankComm) Abort(err error) { c.w.abort(err) }

func (c *rankComm) Barrier() error {
	_, err := c.w.do(c.rank, struct{}{}, func([]interface{}) (interface{}, error) {
		return nil, nil
	})
	return err
}

func (c *rankComm) AllReduceSumFloat64(x float64) (float64, error) {
	res, err := c.w.do(c.rank, x, func(data []interface{}) (interface{}, error) {
		sum := 0.0
		for _, d := range data {
			sum += d.(float64)
		}
		return sum, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

func (c *rankComm) AllReduceMinFloat64(x float64) (float64, error) {
	res, err := c.w.do(c.rank, x, func(data []interface{}) (interface{}, error) {
		min := data[0].(float64)
		for _, d := range data[1:] {
			if v := d.(float64); v < min {
				min = v
			}
		}
		return min, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

func (c *rankComm) AllReduceMaxFloat64(x float64) (float64, error) {
	res, err := c.w.do(c.rank, x, func(data []interface{}) (interface{}, error) {
		max := data[0].(float64)
		for _, d := range data[1:] {
			if v := d.(float64); v > max {
				max = v
			}
		}
		return max, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

func (c *rankComm) AllReduceSumInt64s(x []int64) ([]int64, error) {
	cpy := make([]int64, len(x))
	copy(cpy, x)
	res, err := c.w.do(c.rank, cpy, func(data []interface{}) (interface{}, error) {
		k := len(data[0].([]int64))
		out := make([]int64, k)
		for _, d := range data {
			xs := d.([]int64)
			if len(xs) != k {
				return nil, errSize("AllReduceSumInt64s", k, len(xs))
			}
			for i, v := range xs {
				out[i] += v
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]int64), nil
}

func (c *rankComm) ExclusiveScanSumFloat64(x float64) (float64, error) {
	res, err := c.w.do(c.rank, x, func(data []interface{}) (interface{}, error) {
		prefix := make([]float64, len(data))
		running := 0.0
		for i, d := range data {
			prefix[i] = running
			running += d.(float64)
		}
		return prefix, nil
	})
	if err != nil {
		return 0, err
	}
	return res.([]float64)[c.rank], nil
}

func (c *rankComm) AllToAllv(send [][]float64) ([][]float64, error) {
	if len(send) != c.w.n {
		err := errSize("AllToAllv", c.w.n, len(send))
		c.w.abort(err)
		return nil, err
	}
	res, err := c.w.do(c.rank, send, func(data []interface{}) (interface{}, error) {
		n := len(data)
		out := make([][][]float64, n)
		for r := 0; r < n; r++ {
			out[r] = make([][]float64, n)
		}
		for s := 0; s < n; s++ {
			sends, ok := data[s].([][]float64)
			if !ok || len(sends) != n {
				return nil, fmt.Errorf("comm: AllToAllv: rank %d sent %d chunks, expected %d", s, len(sends), n)
			}
			for d := 0; d < n; d++ {
				out[d][s] = sends[d]
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([][][]float64)[c.rank], nil
}

func (c *rankComm) Gatherv(root int, send []float64) ([][]float64, error) {
	if root < 0 || root >= c.w.n {
		err := errInvalidRoot(root, c.w.n)
		c.w.abort(err)
		return nil, err
	}
	res, err := c.w.do(c.rank, send, func(data []interface{}) (interface{}, error) {
		out := make([][]float64, len(data))
		for i, d := range data {
			out[i] = d.([]float64)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if c.rank != root {
		return nil, nil
	}
	return res.([][]float64), nil
}

func (c *rankComm) AllGatherv(send []float64) ([][]float64, error) {
	res, err := c.w.do(c.rank, send, func(data []interface{}) (interface{}, error) {
		out := make([][]float64, len(data))
		for i, d := range data {
			out[i] = d.([]float64)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([][]float64), nil
}
