package driver

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/thenitinshukla/sparc/lib/comm"
	"github.com/thenitinshukla/sparc/lib/config"
	"github.com/thenitinshukla/sparc/lib/eq"
	"github.com/thenitinshukla/sparc/lib/gatherio"
)

func testRun() *config.Run {
	return &config.Run{
		N:            200,
		R:            5.0,
		Dt:           0.05,
		Tend:         0.2,
		SaveInterval: 1,
		MaxSpecies:   10,
		EnergyMode:   config.EnergyExact,
		Species:      []config.Species{{Name: "electron", IQOM: 1.0}},
		SaveState:    true,
	}
}

func TestExecuteSingleRankProducesFiniteEnergy(t *testing.T) {
	dir := t.TempDir()
	rk := New(testRun(), comm.NewSingleRank(), dir)

	result, err := rk.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if math.IsNaN(result.FinalEnergy) || math.IsInf(result.FinalEnergy, 0) {
		t.Fatalf("FinalEnergy is not finite: %g", result.FinalEnergy)
	}
	if result.InitialEnergy == 0 {
		t.Fatalf("InitialEnergy should be nonzero for a charged sphere")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected a CSV output file, found none in %s", dir)
	}
}

func TestExecuteDistributedAllRanksAgreeOnEnergy(t *testing.T) {
	const p = 4
	dir := t.TempDir()
	comms := comm.NewLocalWorld(p)

	var wg sync.WaitGroup
	results := make([]Result, p)
	errs := make([]error, p)
	for r := 0; r < p; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			rk := New(testRun(), comms[r], dir)
			results[r], errs[r] = rk.Execute()
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", r, err)
		}
	}

	for r := 1; r < p; r++ {
		if !eq.Float64Eps(results[r].FinalEnergy, results[0].FinalEnergy, 1e-6) {
			t.Errorf("rank %d final energy %g disagrees with rank 0's %g",
				r, results[r].FinalEnergy, results[0].FinalEnergy)
		}
	}
}

func TestExecuteNoSaveProducesNoFiles(t *testing.T) {
	dir := t.TempDir()
	r := testRun()
	r.SaveState = false
	rk := New(r, comm.NewSingleRank(), dir)
	if _, err := rk.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no output files, found %d", len(entries))
	}
}

// scenarioS1Run builds the exact config scenario S1 (spec.md 8) uses:
// N=1000, R=1.0, dt=0.001, t_end=0.1 (100 steps), one species iqom=1.0.
// SAVE_INTERVAL=1 so the returned FinalEnergy reflects the state after
// the last step rather than a stale mid-run snapshot.
func scenarioS1Run() *config.Run {
	return &config.Run{
		N:            1000,
		R:            1.0,
		Dt:           0.001,
		Tend:         0.1,
		SaveInterval: 1,
		MaxSpecies:   10,
		EnergyMode:   config.EnergyExact,
		Species:      []config.Species{{Name: "electron", IQOM: 1.0}},
		SaveState:    false,
	}
}

// Scenario S1 (spec.md 8): after 100 steps at P=1, exact-energy drift
// must be below 0.05%. Rank 0's RNG seed is 10 unconditionally (New),
// matching S1's "seed=10".
func TestScenarioS1ExactEnergyDriftP1(t *testing.T) {
	dir := t.TempDir()
	rk := New(scenarioS1Run(), comm.NewSingleRank(), dir)

	result, err := rk.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	drift := math.Abs(result.FinalEnergy-result.InitialEnergy) / math.Abs(result.InitialEnergy)
	if drift >= 0.0005 {
		t.Errorf("energy drift = %.6f%%, want < 0.05%%", drift*100)
	}
}

// Scenario S2 (spec.md 8) is "same as S1 but P=4; final energy matches
// S1 within 1e-8 relative." That literal bit-for-bit cross-P match is
// not physically achievable under this implementation's RNG policy:
// original_source/sparc_mpi seeds each rank independently
// (srand(10 + rank*12345), SPEC_FULL.md 10 decision 3), and its own
// benchmark/detailed_comparison.py documents that this "causes
// different particle positions even with same seed" across different
// rank counts — P=1 and P=4 sample two different particle sets of the
// same distribution (only rank 0, seeded 10 in both runs, reproduces the
// first 250 particles of the P=1 run), not a partition of one shared
// realization. What *is* true regardless of P is that the
// integrator conserves energy to the same bound; that's what this test
// checks. (Scaling invariance for a single shared realization split
// across ranks is checked separately — see
// energy.TestTotalDistributedMatchesSingleRank.)
func TestScenarioS2EnergyDriftBoundHoldsAtP4(t *testing.T) {
	const p = 4
	dir := t.TempDir()
	comms := comm.NewLocalWorld(p)

	var wg sync.WaitGroup
	results := make([]Result, p)
	errs := make([]error, p)
	for r := 0; r < p; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			rk := New(scenarioS1Run(), comms[r], dir)
			results[r], errs[r] = rk.Execute()
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", r, err)
		}
	}

	drift := math.Abs(results[0].FinalEnergy-results[0].InitialEnergy) / math.Abs(results[0].InitialEnergy)
	if drift >= 0.0005 {
		t.Errorf("P=4 energy drift = %.6f%%, want < 0.05%% (same bound as S1)", drift*100)
	}
	for r := 1; r < p; r++ {
		if !eq.Float64Eps(results[r].FinalEnergy, results[0].FinalEnergy, 1e-6) {
			t.Errorf("rank %d final energy %g disagrees with rank 0's %g", r, results[r].FinalEnergy, results[0].FinalEnergy)
		}
	}
}

// Scenario S5 (spec.md 8): N=1000, P=8, dt=0.001, t_end=0.01 (10 steps).
// Total charge before and after must differ by at most 1e-12 relative
// (spec.md 8 invariant 4): the RUN phase's Sort only permutes and
// redistributes Q across ranks, and Field/Integrate never touch it.
func TestScenarioS5ChargeConservedOverTenSteps(t *testing.T) {
	const p = 8
	dir := t.TempDir()
	run := &config.Run{
		N:            1000,
		R:            1.0,
		Dt:           0.001,
		Tend:         0.01,
		SaveInterval: 1,
		MaxSpecies:   10,
		EnergyMode:   config.EnergyExact,
		Species:      []config.Species{{Name: "electron", IQOM: 1.0}},
		SaveState:    false,
	}
	if run.Steps() != 10 {
		t.Fatalf("expected 10 steps, got %d", run.Steps())
	}

	comms := comm.NewLocalWorld(p)
	ranks := make([]*Rank, p)
	for r := range ranks {
		ranks[r] = New(run, comms[r], dir)
	}

	species := make([][]*speciesState, p)
	var wg sync.WaitGroup
	errs := make([]error, p)
	for r := 0; r < p; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			species[r], errs[r] = ranks[r].init()
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: init: %v", r, err)
		}
	}

	chargeSum := func() float64 {
		total := 0.0
		for _, sp := range species {
			for _, st := range sp {
				for _, q := range st.container.Q {
					total += q
				}
			}
		}
		return total
	}
	before := chargeSum()

	for r := 0; r < p; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			_, errs[r] = ranks[r].run(species[r], 0)
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: run: %v", r, err)
		}
	}
	after := chargeSum()

	if !eq.Float64RelEps(after, before, 1e-12) {
		t.Errorf("total charge after 10 steps = %g, want %g (within 1e-12 relative)", after, before)
	}
}

// Scenario S6 (spec.md 8): initial positions, simulated zero steps,
// gather-written to a binary dump, reparsed, and compared byte-exact to
// the in-memory positions.
func TestScenarioS6PositionRoundTripAfterZeroSteps(t *testing.T) {
	dir := t.TempDir()
	run := &config.Run{
		N:            50,
		R:            1.0,
		Dt:           0.001,
		Tend:         0, // ceil(0/dt) = 0 steps; New is called directly, so
		SaveInterval: 1, // config.validate's Tend>0 check is never consulted.
		MaxSpecies:   10,
		EnergyMode:   config.EnergyExact,
		Species:      []config.Species{{Name: "electron", IQOM: 1.0}},
		SaveState:    false,
	}
	if run.Steps() != 0 {
		t.Fatalf("expected 0 steps for Tend=0, got %d", run.Steps())
	}

	rk := New(run, comm.NewSingleRank(), dir)
	species, err := rk.init()
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	c := species[0].container
	wantX := append([]float64{}, c.X...)
	wantY := append([]float64{}, c.Y...)
	wantZ := append([]float64{}, c.Z...)

	path := filepath.Join(dir, "electron.pos.zst")
	w := gatherio.NewPositionWriter()
	if err := w.WritePositions(path, 0, c, rk.Comm); err != nil {
		t.Fatalf("WritePositions: %v", err)
	}

	_, gotX, gotY, gotZ, err := gatherio.ReadPositions(path)
	if err != nil {
		t.Fatalf("ReadPositions: %v", err)
	}
	if !eq.Float64s(gotX, wantX) || !eq.Float64s(gotY, wantY) || !eq.Float64s(gotZ, wantZ) {
		t.Fatalf("round-tripped positions are not byte-exact to the in-memory state")
	}
}

// Invariant 1 (spec.md 8): Σ_ranks N_local = N_global. Sort redistributes
// particles across ranks but a correct implementation never loses or
// duplicates one; checked here after a full multi-step, multi-rank run.
func TestInvariantParticleConservationAfterRun(t *testing.T) {
	const p = 4
	dir := t.TempDir()
	run := testRun()
	comms := comm.NewLocalWorld(p)

	ranks := make([]*Rank, p)
	for r := range ranks {
		ranks[r] = New(run, comms[r], dir)
	}
	species := make([][]*speciesState, p)
	var wg sync.WaitGroup
	errs := make([]error, p)
	for r := 0; r < p; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			species[r], errs[r] = ranks[r].init()
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: init: %v", r, err)
		}
	}
	for r := 0; r < p; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			_, errs[r] = ranks[r].run(species[r], 0)
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: run: %v", r, err)
		}
	}

	total := 0
	for _, sp := range species {
		total += sp[0].container.Len()
	}
	if int64(total) != run.N {
		t.Errorf("Σ N_local = %d after run, want N_global = %d", total, run.N)
	}
}
