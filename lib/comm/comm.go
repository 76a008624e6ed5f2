/*Package comm provides the bulk-synchronous communicator abstraction that
the rest of sparc binds its distributed collectives to (spec.md 4.H, 5, 9).

A Comm value is one rank's handle onto a flat group of P ranks. Every
method is a synchronization barrier: no rank may observe a collective's
result until every rank in the group has entered the same call, and no
rank may leave before every other rank has. This file defines the
interface; singlerank.go holds the trivial P=1 implementation, and
localworld.go implements the in-process, goroutine-per-rank version used
whenever P > 1.
*/
package comm

// Comm is one rank's view of a fixed-size group of ranks. The
// collectives named in spec.md 5 and 9 are represented here:
// all-reduce-sum/min/max, exclusive-scan, all-to-all-v, gather-v, and
// all-gather-v. (Barrier is the degenerate all-reduce with no payload.)
type Comm interface {
	// Rank returns this handle's rank, in [0, Size()).
	Rank() int
	// Size returns P, the number of ranks in the group.
	Size() int

	// Barrier blocks until every rank has called Barrier.
	Barrier() error

	// Abort poisons every past and future collective on this group: every
	// rank blocked in, or about to enter, a collective receives err
	// instead of hanging forever. A rank calls this when it fails outside
	// of a collective and will never make its next one (spec.md 5's
	// "process death collapses the communicator").
	Abort(err error)

	// AllReduceSumFloat64 returns the sum of x across all ranks, identical
	// on every rank (modulo floating-point reduction-order noise).
	AllReduceSumFloat64(x float64) (float64, error)
	// AllReduceMinFloat64 returns the minimum of x across all ranks.
	AllReduceMinFloat64(x float64) (float64, error)
	// AllReduceMaxFloat64 returns the maximum of x across all ranks.
	AllReduceMaxFloat64(x float64) (float64, error)
	// AllReduceSumInt64s returns the elementwise sum of x across all ranks.
	// Every rank must call it with a slice of the same length.
	AllReduceSumInt64s(x []int64) ([]int64, error)

	// ExclusiveScanSumFloat64 returns the sum of x over all ranks with
	// index strictly less than this rank's; rank 0 always gets 0.
	ExclusiveScanSumFloat64(x float64) (float64, error)

	// AllToAllv exchanges variably-sized chunks between every pair of
	// ranks. send[d] is this rank's outgoing chunk for destination rank
	// d, len(send) must equal Size(). The returned slice is indexed by
	// source rank: recv[s] is what this rank received from source s.
	AllToAllv(send [][]float64) ([][]float64, error)

	// Gatherv collects one chunk per rank at root. On every rank other
	// than root it returns nil; on root it returns a slice indexed by
	// source rank.
	Gatherv(root int, send []float64) ([][]float64, error)

	// AllGatherv collects one chunk per rank and delivers the full set to
	// every rank, indexed by source rank.
	AllGatherv(send []float64) ([][]float64, error)
}
