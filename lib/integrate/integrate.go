/*Package integrate advances particle positions and velocities one
timestep under the radial field computed by lib/field, using explicit
Euler integration (spec.md 4.D), grounded on original_source's
update_positions.cpp.
*/
package integrate

import (
	"math"

	"github.com/thenitinshukla/sparc/lib/particle"
)

// minR is the radius below which a particle is treated as sitting on the
// origin: its direction is undefined, so the velocity kick is skipped
// for that step (original_source guards r > 1e-15).
const minR = 1e-15

// Step advances every local particle in c by one timestep dt: the
// velocity kick qom*Er*r̂*dt, then the position update v*dt. Purely
// local -- no communicator is involved.
func Step(c *particle.Container, dt float64) {
	qom := c.QOM
	for i := range c.X {
		r := math.Sqrt(c.R2[i])
		if r >= minR {
			kick := dt * qom * c.Er[i] / r
			c.VX[i] += kick * c.X[i]
			c.VY[i] += kick * c.Y[i]
			c.VZ[i] += kick * c.Z[i]
		}
		c.X[i] += dt * c.VX[i]
		c.Y[i] += dt * c.VY[i]
		c.Z[i] += dt * c.VZ[i]
	}
}
