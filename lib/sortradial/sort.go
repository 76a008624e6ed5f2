/*Package sortradial implements the radial sort: after Sort returns, every
rank's particles are ordered ascending by r², and the rank partition is a
contiguous slice of the global sorted order (spec.md 4.B).

The algorithm is a five-phase histogram sample sort -- local key-sort,
deterministic splitter selection from a global histogram, partition and
count exchange, a single packed all-to-all-v of particle records, and a
k-way merge of the resulting per-source chunks -- translated from
original_source's sort_particles.cpp into Go, with gonum's floats.Argsort
standing in for std::sort + iota and container/heap standing in for
std::priority_queue.
*/
package sortradial

import (
	"container/heap"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/thenitinshukla/sparc/lib/comm"
	"github.com/thenitinshukla/sparc/lib/particle"
)

// numBins is the number of uniform bins used to build the global r²
// histogram that splitters are chosen from (spec.md 4.B phase 2).
const numBins = 1024

// Sorter holds the scratch buffers a radial sort needs across calls, so
// that repeated sorting of the same species across simulation steps does
// not re-allocate its working set every time (spec.md 9's
// re-architecture target).
type Sorter struct {
	perm    []int
	keys    []float64
	scratch []float64

	sendCounts []int64
	recvCounts []int64

	buckets [][]int
	send    [][]float64

	// withID tracks whether the container being sorted carries the
	// test-only ID tag, decided once per Sort call so every phase agrees
	// on the packed record width.
	withID bool
}

// NewSorter returns an empty Sorter ready to sort containers against a
// communicator of any size.
func NewSorter() *Sorter { return &Sorter{} }

// Sort reorders c's particles in place so that, across all ranks sharing
// c, the global result is ascending by r² and each rank's share is a
// contiguous slice of that order (spec.md 4.B).
func (s *Sorter) Sort(c *particle.Container, cm comm.Comm) error {
	s.withID = c.ID != nil
	s.localKeySort(c)

	globalMin, err := cm.AllReduceMinFloat64(c.MinR2Local())
	if err != nil {
		return err
	}
	globalMax, err := cm.AllReduceMaxFloat64(c.MaxR2Local())
	if err != nil {
		return err
	}
	if globalMax <= globalMin {
		globalMax = globalMin + 1
	}

	hist := s.localHistogram(c, globalMin, globalMax)
	globalHist, err := cm.AllReduceSumInt64s(hist)
	if err != nil {
		return err
	}

	nGlobal := int64(0)
	for _, h := range globalHist {
		nGlobal += h
	}
	splitters := computeSplitters(globalHist, globalMin, globalMax, nGlobal, cm.Size())

	s.partition(c, splitters)

	recvCounts, err := exchangeCounts(cm, s.sendCounts)
	if err != nil {
		return err
	}
	s.recvCounts = recvCounts

	s.packSendBuffers(c)
	recv, err := cm.AllToAllv(s.send)
	if err != nil {
		return err
	}

	s.mergeInto(c, recv)
	return nil
}

// localKeySort sorts c's particles ascending by r² in place, by building
// an index permutation with gonum's Argsort and applying it as an
// out-of-place gather (spec.md 4.B phase 1).
func (s *Sorter) localKeySort(c *particle.Container) {
	c.ComputeR2()
	n := c.Len()
	s.perm = growInts(s.perm, n)
	s.keys = growFloats(s.keys, n)
	copy(s.keys, c.R2)
	for i := range s.perm {
		s.perm[i] = i
	}
	floats.Argsort(s.keys, s.perm)
	s.scratch = growFloats(s.scratch, n)
	applyPermutation(c, s.perm, s.scratch)
}

// applyPermutation gathers every field of c into sorted order given a
// permutation perm such that perm[i] is the original index that now
// belongs at sorted position i. Each field is gathered into scratch
// (len(perm) long) and copied back, so no per-field array is allocated.
func applyPermutation(c *particle.Container, perm []int, scratch []float64) {
	n := len(perm)
	gather := func(x []float64) {
		for i, p := range perm {
			scratch[i] = x[p]
		}
		copy(x, scratch)
	}
	gather(c.X)
	gather(c.Y)
	gather(c.Z)
	gather(c.VX)
	gather(c.VY)
	gather(c.VZ)
	gather(c.Q)
	gather(c.Er)
	gather(c.R2)
	if c.ID != nil {
		out := make([]uint64, n)
		for i, p := range perm {
			out[i] = c.ID[p]
		}
		c.ID = out
	}
}

// localHistogram buckets c's (already locally sorted) r² values into
// numBins uniform bins over [lo, hi].
func (s *Sorter) localHistogram(c *particle.Container, lo, hi float64) []int64 {
	hist := make([]int64, numBins)
	width := (hi - lo) / float64(numBins)
	for _, r2 := range c.R2 {
		hist[binIndex(r2, lo, width)]++
	}
	return hist
}

func binIndex(r2, lo, width float64) int {
	idx := int((r2 - lo) / width)
	if idx < 0 {
		idx = 0
	}
	if idx >= numBins {
		idx = numBins - 1
	}
	return idx
}

// computeSplitters walks the cumulative global histogram and places a
// splitter at the upper edge of the bin whose running count first
// reaches k * target, for k = 1..P-1 (spec.md 4.B phase 2).
func computeSplitters(hist []int64, lo, hi float64, nGlobal int64, p int) []float64 {
	if p <= 1 {
		return nil
	}
	target := ceilDiv(nGlobal, int64(p))
	width := (hi - lo) / float64(numBins)

	splitters := make([]float64, 0, p-1)
	running := int64(0)
	next := target
	for bin := 0; bin < numBins && len(splitters) < p-1; bin++ {
		running += hist[bin]
		for running >= next && len(splitters) < p-1 {
			splitters = append(splitters, lo+width*float64(bin+1))
			next += target
		}
	}
	for len(splitters) < p-1 {
		splitters = append(splitters, hi)
	}
	return splitters
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// partition assigns each local (already r²-sorted) particle to a
// destination rank via binary search against splitters, using the
// lower_bound tie-break: a particle with r² exactly equal to a splitter
// goes to the lower-indexed rank (spec.md 4.B tie-break policy).
func (s *Sorter) partition(c *particle.Container, splitters []float64) {
	p := len(splitters) + 1
	s.buckets = growBuckets(s.buckets, p)
	for d := range s.buckets {
		s.buckets[d] = s.buckets[d][:0]
	}
	s.sendCounts = growInt64s(s.sendCounts, p)
	for i := range s.sendCounts {
		s.sendCounts[i] = 0
	}

	for i, r2 := range c.R2 {
		d := sort.SearchFloat64s(splitters, r2)
		s.buckets[d] = append(s.buckets[d], i)
		s.sendCounts[d]++
	}
}

// exchangeCounts all-to-alls the tiny send-count vector so every rank
// learns how many particles to expect from every source.
func exchangeCounts(cm comm.Comm, sendCounts []int64) ([]int64, error) {
	p := cm.Size()
	send := make([][]float64, p)
	for d, n := range sendCounts {
		send[d] = []float64{float64(n)}
	}
	recv, err := cm.AllToAllv(send)
	if err != nil {
		return nil, err
	}
	out := make([]int64, p)
	for s, chunk := range recv {
		out[s] = int64(chunk[0])
	}
	return out, nil
}

// packSendBuffers serializes each destination bucket into a flat,
// NumFields-wide record stream (NumFields+1-wide when c carries the
// test-only ID tag), in ascending local order (so each outgoing chunk is
// itself sorted -- the precondition the k-way merge below relies on).
func (s *Sorter) packSendBuffers(c *particle.Container) {
	p := len(s.buckets)
	s.send = growFloatSlices(s.send, p)
	for d, idxs := range s.buckets {
		buf := s.send[d][:0]
		for _, i := range idxs {
			buf = c.AppendRecord(buf, i)
			if s.withID {
				buf = append(buf, float64(c.ID[i]))
			}
		}
		s.send[d] = buf
	}
}

// mergeChunk is one source rank's still-sorted run of received records,
// tracked by the position of its next unconsumed record.
type mergeChunk struct {
	records []float64 // flat, recordWidth-wide
	next    int        // index in units of records, not floats
	width   int
}

func (m *mergeChunk) len() int    { return len(m.records) / m.width }
func (m *mergeChunk) done() bool  { return m.next >= m.len() }
func (m *mergeChunk) r2() float64 { return m.records[m.next*m.width+8] }
func (m *mergeChunk) record() []float64 {
	off := m.next * m.width
	return m.records[off : off+m.width]
}

// mergeHeap is a min-heap, keyed by r², over one head record per
// non-empty chunk (spec.md 4.B phase 5).
type mergeHeap []*mergeChunk

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].r2() < h[j].r2() }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeChunk)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

// mergeInto k-way merges the received per-source chunks and writes the
// result into c, resizing c to the total received count first.
func (s *Sorter) mergeInto(c *particle.Container, recv [][]float64) {
	width := particle.NumFields
	if s.withID {
		width++
	}

	h := make(mergeHeap, 0, len(recv))
	nTotal := 0
	for _, chunk := range recv {
		if len(chunk) == 0 {
			continue
		}
		mc := &mergeChunk{records: chunk, width: width}
		nTotal += mc.len()
		h = append(h, mc)
	}
	heap.Init(&h)

	c.Resize(nTotal)
	if s.withID {
		c.ID = growU64(c.ID, nTotal)
	}
	for i := 0; i < nTotal; i++ {
		mc := h[0]
		rec := mc.record()
		c.SetFromRecord(i, rec[:particle.NumFields])
		if s.withID {
			c.ID[i] = uint64(rec[particle.NumFields])
		}
		mc.next++
		if mc.done() {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
}

func growInts(x []int, n int) []int {
	if cap(x) >= n {
		return x[:n]
	}
	return make([]int, n)
}

func growInt64s(x []int64, n int) []int64 {
	if cap(x) >= n {
		return x[:n]
	}
	return make([]int64, n)
}

func growFloats(x []float64, n int) []float64 {
	if cap(x) >= n {
		return x[:n]
	}
	return make([]float64, n)
}

func growBuckets(x [][]int, n int) [][]int {
	if cap(x) >= n {
		return x[:n]
	}
	return make([][]int, n)
}

func growFloatSlices(x [][]float64, n int) [][]float64 {
	if cap(x) >= n {
		return x[:n]
	}
	return make([][]float64, n)
}

func growU64(x []uint64, n int) []uint64 {
	if cap(x) >= n {
		return x[:n]
	}
	return make([]uint64, n)
}
