package comm

// singleRank is the P=1 degenerate Comm: every collective is a local
// identity/no-op, matching spec.md 9's "the MPI and single-process
// variants differ only in whether N_local = N_global and whether
// collectives are no-ops."
type singleRank struct{}

// NewSingleRank returns a Comm for a group of exactly one rank.
func NewSingleRank() Comm { return singleRank{} }

func (singleRank) Rank() int { return 0 }
func (singleRank) Size() int { return 1 }

func (singleRank) Barrier() error { return nil }

// Abort is a no-op: with one rank there is no sibling to unblock.
func (singleRank) Abort(err error) {}

func (singleRank) AllReduceSumFloat64(x float64) (float64, error) { return x, nil }
func (singleRank) AllReduceMinFloat64(x float64) (float64, error) { return x, nil }
func (singleRank) AllReduceMaxFloat64(x float64) (float64, error) { return x, nil }

func (singleRank) AllReduceSumInt64s(x []int64) ([]int64, error) {
	out := make([]int64, len(x))
	copy(out, x)
	return out, nil
}

func (singleRank) ExclusiveScanSumFloat64(x float64) (float64, error) {
	return 0, nil
}

func (singleRank) AllToAllv(send [][]float64) ([][]float64, error) {
	if len(send) != 1 {
		return nil, errSize("AllToAllv", 1, len(send))
	}
	return [][]float64{send[0]}, nil
}

func (singleRank) Gatherv(root int, send []float64) ([][]float64, error) {
	if root != 0 {
		return nil, errInvalidRoot(root, 1)
	}
	return [][]float64{send}, nil
}

func (singleRank) AllGatherv(send []float64) ([][]float64, error) {
	return [][]float64{send}, nil
}
