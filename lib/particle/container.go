/*Package particle contains the Particle Container: Structure-of-Arrays
storage for one species' local particles on one rank.*/
package particle

import "math"

// Container holds N_local particles of one species as nine parallel
// double-precision arrays, Structure-of-Arrays layout for contiguous,
// vectorizable per-field access. See spec.md 3 for the invariants every
// caller (Radial Sort, Distributed Prefix Field, Kinematic Integrator) is
// responsible for preserving; Container itself enforces none of them.
type Container struct {
	Name string

	X, Y, Z    []float64
	VX, VY, VZ []float64
	Q          []float64
	Er         []float64
	R2         []float64

	// ID is an optional stable tag, set by tests that need to verify the
	// attribute-coherence invariant (spec.md 8, property 3) across a sort.
	// Production code never reads or writes it.
	ID []uint64

	// IQOM is mass/charge for this species; QOM = 1/IQOM is cached since
	// it's used once per particle per step in the integrator.
	IQOM, QOM float64

	// NGlobal is the fixed total particle count for this species across
	// the whole run; it never changes after initialization.
	NGlobal int64
}

// New creates a Container with nLocal particles, all fields zeroed.
func New(name string, iqom float64, nLocal int, nGlobal int64) *Container {
	c := &Container{
		Name:    name,
		IQOM:    iqom,
		QOM:     1 / iqom,
		NGlobal: nGlobal,
	}
	c.Resize(nLocal)
	return c
}

// Len returns N_local, the current length of every array in c.
func (c *Container) Len() int { return len(c.X) }

// Resize adjusts all nine arrays (and ID, if it has ever been allocated)
// to length n, preserving existing contents up to min(old, new) length.
// Growth may reallocate; callers that want to avoid per-step heap churn
// should prefer Sorter's internal scratch buffers (lib/sortradial) over
// repeatedly resizing a Container directly.
func (c *Container) Resize(n int) {
	c.X = resize(c.X, n)
	c.Y = resize(c.Y, n)
	c.Z = resize(c.Z, n)
	c.VX = resize(c.VX, n)
	c.VY = resize(c.VY, n)
	c.VZ = resize(c.VZ, n)
	c.Q = resize(c.Q, n)
	c.Er = resize(c.Er, n)
	c.R2 = resize(c.R2, n)
	if c.ID != nil {
		c.ID = resizeU64(c.ID, n)
	}
}

func resize(x []float64, n int) []float64 {
	if cap(x) >= n {
		return x[:n]
	}
	out := make([]float64, n)
	copy(out, x)
	return out
}

func resizeU64(x []uint64, n int) []uint64 {
	if cap(x) >= n {
		return x[:n]
	}
	out := make([]uint64, n)
	copy(out, x)
	return out
}

// ComputeR2 fills R2 from the current (X, Y, Z) positions of every local
// particle.
func (c *Container) ComputeR2() {
	for i := range c.X {
		c.R2[i] = c.X[i]*c.X[i] + c.Y[i]*c.Y[i] + c.Z[i]*c.Z[i]
	}
}

// MaxR2Local returns the largest R2 value on this rank, or -Inf if the
// rank holds no particles.
func (c *Container) MaxR2Local() float64 {
	if len(c.R2) == 0 {
		return math.Inf(-1)
	}
	max := c.R2[0]
	for _, r2 := range c.R2[1:] {
		if r2 > max {
			max = r2
		}
	}
	return max
}

// MinR2Local returns the smallest R2 value on this rank, or +Inf if the
// rank holds no particles.
func (c *Container) MinR2Local() float64 {
	if len(c.R2) == 0 {
		return math.Inf(1)
	}
	min := c.R2[0]
	for _, r2 := range c.R2[1:] {
		if r2 < min {
			min = r2
		}
	}
	return min
}

// NumFields is the width of one particle's packed wire record: x, y, z,
// vx, vy, vz, q, Er, r2, in that order. The sort exchange packs/unpacks
// records in this order (original_source's ParticleSystem field layout);
// position dumps write separate x, y, z arrays instead.
const NumFields = 9

// AppendRecord appends particle i's NumFields fields, in wire order, to
// buf and returns the extended slice.
func (c *Container) AppendRecord(buf []float64, i int) []float64 {
	return append(buf,
		c.X[i], c.Y[i], c.Z[i],
		c.VX[i], c.VY[i], c.VZ[i],
		c.Q[i], c.Er[i], c.R2[i],
	)
}

// SetFromRecord overwrites particle i's fields from a NumFields-wide
// record in wire order.
func (c *Container) SetFromRecord(i int, rec []float64) {
	c.X[i], c.Y[i], c.Z[i] = rec[0], rec[1], rec[2]
	c.VX[i], c.VY[i], c.VZ[i] = rec[3], rec[4], rec[5]
	c.Q[i], c.Er[i], c.R2[i] = rec[6], rec[7], rec[8]
}
