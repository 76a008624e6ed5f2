/*Package energy computes a species' kinetic and potential energy, in
both an exact O(N²) verification mode and an approximate O(N) shell-
theorem production mode (spec.md 4.E), grounded on original_source's
compute_energy.cpp (its USE_FAST_ENERGY compile switch becomes a runtime
Mode here, per SPEC_FULL.md 10 decision 4).
*/
package energy

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/thenitinshukla/sparc/lib/comm"
	"github.com/thenitinshukla/sparc/lib/particle"
)

// minDist is the pairwise-distance floor below which a potential term is
// skipped rather than divided by a near-zero denominator
// (original_source guards rij > 1e-15).
const minDist = 1e-15

// Mode selects which potential-energy algorithm Total uses.
type Mode int

const (
	// Exact computes the full O(N²) pairwise sum: ground truth, used for
	// verification and for runs small enough to afford it.
	Exact Mode = iota
	// Approx uses the shell-theorem O(N) approximation, valid exactly for
	// spherically symmetric, non-crossing shells; this is the production
	// mode for large runs.
	Approx
)

func (m Mode) String() string {
	if m == Approx {
		return "approx"
	}
	return "exact"
}

// Kinetic returns c's species kinetic energy, summed across every rank.
func Kinetic(c *particle.Container, cm comm.Comm) (float64, error) {
	local := 0.0
	for i := range c.Q {
		v2 := c.VX[i]*c.VX[i] + c.VY[i]*c.VY[i] + c.VZ[i]*c.VZ[i]
		local += 0.5 * math.Abs(c.IQOM*c.Q[i]) * v2
	}
	return cm.AllReduceSumFloat64(local)
}

// Total returns (kinetic, potential, kinetic+potential) for c, under the
// given potential mode. c must already be radially sorted for Approx to
// be a valid shell-theorem approximation; Exact does not require it.
func Total(c *particle.Container, cm comm.Comm, mode Mode) (kinetic, potential, sum float64, err error) {
	kinetic, err = Kinetic(c, cm)
	if err != nil {
		return 0, 0, 0, err
	}
	if mode == Approx {
		potential, err = approxPotential(c, cm)
	} else {
		potential, err = exactPotential(c, cm)
	}
	if err != nil {
		return 0, 0, 0, err
	}
	return kinetic, potential, kinetic + potential, nil
}

// approxPotential implements the shell-theorem O(N) approximation: the
// same exclusive-scan-of-charge used by lib/field, but dividing by r
// (not r²) and excluding each particle's own charge from its enclosed
// sum (spec.md 4.E).
func approxPotential(c *particle.Container, cm comm.Comm) (float64, error) {
	prefix, err := cm.ExclusiveScanSumFloat64(floats.Sum(c.Q))
	if err != nil {
		return 0, err
	}

	running := prefix
	local := 0.0
	for i, q := range c.Q {
		r := math.Sqrt(c.R2[i])
		if r >= minDist {
			local += q * running / r
		}
		running += q
	}
	return cm.AllReduceSumFloat64(local)
}

// exactPotential implements the full O(N²) pairwise sum: every rank
// gathers the global (x, y, z, q) arrays, then computes the inner double
// sum over only the global indices it globally owns -- the contiguous
// range Radial Sort assigned it -- so the total work across ranks is
// N_global² rather than P times that (spec.md 4.E).
func exactPotential(c *particle.Container, cm comm.Comm) (float64, error) {
	offsetF, err := cm.ExclusiveScanSumFloat64(float64(c.Len()))
	if err != nil {
		return 0, err
	}
	offset := int(offsetF + 0.5)

	x, err := allGatherFlat(cm, c.X)
	if err != nil {
		return 0, err
	}
	y, err := allGatherFlat(cm, c.Y)
	if err != nil {
		return 0, err
	}
	z, err := allGatherFlat(cm, c.Z)
	if err != nil {
		return 0, err
	}
	q, err := allGatherFlat(cm, c.Q)
	if err != nil {
		return 0, err
	}

	local := 0.0
	for k := 0; k < c.Len(); k++ {
		gi := offset + k
		xi, yi, zi, qi := x[gi], y[gi], z[gi], q[gi]
		for j := range x {
			if j == gi {
				continue
			}
			dx, dy, dz := xi-x[j], yi-y[j], zi-z[j]
			d := math.Sqrt(dx*dx + dy*dy + dz*dz)
			if d < minDist {
				continue
			}
			local += 0.5 * qi * q[j] / d
		}
	}
	return cm.AllReduceSumFloat64(local)
}

// allGatherFlat all-gathers a per-rank field and concatenates the
// resulting per-source chunks, in rank order, into one global array.
func allGatherFlat(cm comm.Comm, local []float64) ([]float64, error) {
	chunks, err := cm.AllGatherv(local)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(local)*len(chunks))
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out, nil
}
