/*Package perf derives coarse throughput estimates from a completed run:
GFLOPS and memory-bandwidth heuristics, grounded on original_source's
performance.cpp.
*/
package perf

import "time"

// Summary is the final DONE-phase report (spec.md 4.F).
type Summary struct {
	WallTime   time.Duration
	GFLOPS     float64
	Bandwidth  float64 // bytes/sec
	NGlobal    int64
	NSpecies   int
	Steps      int64
	Ranks      int
}

// flopsPerParticlePerStep and bytesPerParticlePerStep are the same
// heuristic constants original_source's performance.cpp uses: 25 FLOPs
// and 72 bytes of traffic per particle per species per step.
const (
	flopsPerParticlePerStep = 25.0
	bytesPerParticlePerStep = 72.0
)

// Summarize computes the GFLOPS and bandwidth heuristics for a run of
// nGlobal particles across nSpecies species and steps timesteps,
// completed in wall.
func Summarize(wall time.Duration, nGlobal int64, nSpecies int, steps int64, ranks int) Summary {
	seconds := wall.Seconds()
	s := Summary{WallTime: wall, NGlobal: nGlobal, NSpecies: nSpecies, Steps: steps, Ranks: ranks}
	if seconds <= 0 {
		return s
	}
	totalFlops := flopsPerParticlePerStep * float64(nGlobal) * float64(nSpecies) * float64(steps)
	totalBytes := bytesPerParticlePerStep * float64(nGlobal) * float64(nSpecies) * float64(steps)
	s.GFLOPS = totalFlops / seconds / 1e9
	s.Bandwidth = totalBytes / seconds
	return s
}
