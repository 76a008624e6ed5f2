/*Package field computes the radial electric field implied by Gauss's law
for a spherically symmetric, radially sorted charge distribution: every
particle's field is the enclosed charge divided by its r² (spec.md 4.C),
grounded on original_source's update_electric_field.cpp MPI_Exscan
pattern.
*/
package field

import (
	"gonum.org/v1/gonum/floats"

	"github.com/thenitinshukla/sparc/lib/comm"
	"github.com/thenitinshukla/sparc/lib/particle"
)

// minR2 is the radius-squared floor below which the field is defined to
// be zero rather than divided by a near-zero denominator
// (original_source guards r2 > 1e-30).
const minR2 = 1e-30

// Update fills c's per-particle radial field from the enclosed charge,
// assuming c has already been radially sorted (spec.md 4.B must run
// first; Update does not itself sort).
func Update(c *particle.Container, cm comm.Comm) error {
	localSum := floats.Sum(c.Q)

	prefix, err := cm.ExclusiveScanSumFloat64(localSum)
	if err != nil {
		return err
	}

	running := prefix
	for i, q := range c.Q {
		running += q
		r2 := c.R2[i]
		if r2 < minR2 {
			c.Er[i] = 0
			continue
		}
		c.Er[i] = running / r2
	}
	return nil
}
