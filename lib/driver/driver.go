/*Package driver runs the INIT -> RUN -> DONE state machine that ties
every other package together into one simulation (spec.md 4.F),
grounded on original_source's main.cpp main loop.
*/
package driver

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/thenitinshukla/sparc/lib/comm"
	"github.com/thenitinshukla/sparc/lib/config"
	"github.com/thenitinshukla/sparc/lib/energy"
	"github.com/thenitinshukla/sparc/lib/field"
	"github.com/thenitinshukla/sparc/lib/gatherio"
	"github.com/thenitinshukla/sparc/lib/integrate"
	"github.com/thenitinshukla/sparc/lib/particle"
	"github.com/thenitinshukla/sparc/lib/perf"
	"github.com/thenitinshukla/sparc/lib/sortradial"
)

// Rank drives one rank's view of the whole simulation: INIT, the main
// step loop, and the final DONE report. main spawns one Rank per
// goroutine; every Rank in a group must be driven concurrently, since
// every phase is a barrier.
type Rank struct {
	Run       *config.Run
	Comm      comm.Comm
	OutputDir string

	rng *rand.Rand
}

// New returns a Rank ready to run cfg's simulation on cm.
func New(cfg *config.Run, cm comm.Comm, outputDir string) *Rank {
	seed := int64(10 + cm.Rank()*12345)
	return &Rank{Run: cfg, Comm: cm, OutputDir: outputDir, rng: rand.New(rand.NewSource(seed))}
}

// energyMode translates the input file's declarative ENERGY_MODE string
// into the enum energy.Total expects.
func (rk *Rank) energyMode() energy.Mode {
	if rk.Run.EnergyMode == config.EnergyApprox {
		return energy.Approx
	}
	return energy.Exact
}

// Result is what Execute returns once a rank's DONE phase completes.
type Result struct {
	InitialEnergy float64
	FinalEnergy   float64
	Perf          perf.Summary
}

// Execute runs INIT, the full step loop, and DONE, returning the
// rank-local view of the result. The energies are globally consistent,
// since they were produced by all-reduces; Perf's wall time is measured
// on this rank.
func (rk *Rank) Execute() (Result, error) {
	start := time.Now()

	species, err := rk.init()
	if err != nil {
		rk.Comm.Abort(err)
		return Result{}, err
	}

	initialEnergy := 0.0
	for _, sp := range species {
		initialEnergy += sp.lastEnergy
	}

	if rk.Comm.Rank() == 0 {
		log.Printf("initial energy: %e", initialEnergy)
	}

	finalEnergy, err := rk.run(species, initialEnergy)
	if err != nil {
		rk.Comm.Abort(err)
		return Result{}, err
	}

	if err := rk.Comm.Barrier(); err != nil {
		return Result{}, err
	}
	wall := time.Since(start)
	summary := perf.Summarize(wall, rk.Run.N, len(species), rk.Run.Steps(), rk.Comm.Size())

	return Result{InitialEnergy: initialEnergy, FinalEnergy: finalEnergy, Perf: summary}, nil
}

// speciesState bundles one species' container with its output sinks.
type speciesState struct {
	name       string
	container  *particle.Container
	sorter     *sortradial.Sorter
	posWriter  *gatherio.PositionWriter
	csv        *gatherio.CSVLog
	lastEnergy float64
}

// init performs the INIT phase: rejection-sample each species inside
// the sphere, sort, compute the initial field, and report E0.
func (rk *Rank) init() ([]*speciesState, error) {
	r := rk.Run
	q := 4.0 / 3.0 * math.Pi * r.R * r.R * r.R

	species := make([]*speciesState, 0, len(r.Species))
	for _, sp := range r.Species {
		nLocal := r.LocalCount(rk.Comm.Rank(), rk.Comm.Size())
		c := particle.New(sp.Name, sp.IQOM, nLocal, r.N)
		rk.sampleSphere(c, q)

		st := &speciesState{
			name:      sp.Name,
			container: c,
			sorter:    sortradial.NewSorter(),
			posWriter: gatherio.NewPositionWriter(),
		}

		if err := st.sorter.Sort(c, rk.Comm); err != nil {
			return nil, err
		}
		if err := field.Update(c, rk.Comm); err != nil {
			return nil, err
		}
		_, _, total, err := energy.Total(c, rk.Comm, rk.energyMode())
		if err != nil {
			return nil, err
		}
		st.lastEnergy = total

		if r.SaveState {
			csv, err := gatherio.OpenCSVLog(filepath.Join(rk.OutputDir, "simulation_output_"+sp.Name+".csv"))
			if err != nil {
				return nil, err
			}
			st.csv = csv
			if rk.Comm.Rank() == 0 {
				maxR2, err := rk.Comm.AllReduceMaxFloat64(c.MaxR2Local())
				if err != nil {
					return nil, err
				}
				if err := csv.Append(0, total, maxR2, r.N, rk.Comm.Size()); err != nil {
					return nil, err
				}
			} else if _, err := rk.Comm.AllReduceMaxFloat64(c.MaxR2Local()); err != nil {
				return nil, err
			}
		}

		species = append(species, st)
	}
	return species, nil
}

// sampleSphere fills c with nLocal particles drawn uniformly inside a
// sphere of radius R by rejection sampling (original_source's approach:
// sample a cube, reject points outside the sphere).
func (rk *Rank) sampleSphere(c *particle.Container, totalCharge float64) {
	r := rk.Run
	chargePerParticle := totalCharge / float64(r.N)
	n := c.Len()
	for i := 0; i < n; {
		x := -r.R + 2*r.R*rk.rng.Float64()
		y := -r.R + 2*r.R*rk.rng.Float64()
		z := -r.R + 2*r.R*rk.rng.Float64()
		r2 := x*x + y*y + z*z
		if r2 > r.R*r.R {
			continue
		}
		c.X[i], c.Y[i], c.Z[i] = x, y, z
		c.Q[i] = chargePerParticle
		c.R2[i] = r2
		i++
	}
}

// run performs the RUN phase: Sort -> Field -> Integrate for every
// species, every step, with periodic energy reporting and output.
func (rk *Rank) run(species []*speciesState, initialEnergy float64) (float64, error) {
	r := rk.Run
	steps := r.Steps()
	currentEnergy := initialEnergy

	for step := int64(0); step < steps; step++ {
		totalEnergy := 0.0
		isSaveStep := r.SaveInterval > 0 && step%int64(r.SaveInterval) == 0

		for _, st := range species {
			c := st.container
			if err := st.sorter.Sort(c, rk.Comm); err != nil {
				return 0, err
			}
			if err := field.Update(c, rk.Comm); err != nil {
				return 0, err
			}
			integrate.Step(c, r.Dt)

			if r.SavePositions && isSaveStep {
				path := filepath.Join(rk.OutputDir,
					fmt.Sprintf("positions_%s_step_%d.pos.zst", st.name, step))
				if err := st.posWriter.WritePositions(path, int(step), c, rk.Comm); err != nil {
					return 0, err
				}
			}

			if isSaveStep {
				_, _, total, err := energy.Total(c, rk.Comm, rk.energyMode())
				if err != nil {
					return 0, err
				}
				st.lastEnergy = total
				totalEnergy += total

				if r.SaveState && st.csv != nil {
					maxR2, err := rk.Comm.AllReduceMaxFloat64(c.MaxR2Local())
					if err != nil {
						return 0, err
					}
					if rk.Comm.Rank() == 0 {
						if err := st.csv.Append(float64(step)*r.Dt, total, maxR2, r.N, rk.Comm.Size()); err != nil {
							return 0, err
						}
					}
				}
			}
		}

		if isSaveStep {
			currentEnergy = totalEnergy
			if rk.Comm.Rank() == 0 && initialEnergy != 0 {
				drift := math.Abs(currentEnergy-initialEnergy) / math.Abs(initialEnergy) * 100
				log.Printf("step %6d | time %.4f | energy drift: %.6f%%", step, float64(step)*r.Dt, drift)
			}
		}
	}

	for _, st := range species {
		if st.csv != nil {
			if err := st.csv.Close(); err != nil {
				return 0, err
			}
		}
	}
	return currentEnergy, nil
}
