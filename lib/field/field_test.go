package field

import (
	"sync"
	"testing"

	"github.com/thenitinshukla/sparc/lib/comm"
	"github.com/thenitinshukla/sparc/lib/eq"
	"github.com/thenitinshukla/sparc/lib/particle"
)

func TestUpdateSingleRankEnclosedCharge(t *testing.T) {
	c := particle.New("test", 1.0, 4, 4)
	c.R2 = []float64{1, 4, 9, 16}
	c.Q = []float64{2, 3, 5, 7}

	if err := Update(c, comm.NewSingleRank()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := []float64{2.0 / 1, 5.0 / 4, 10.0 / 9, 17.0 / 16}
	if !eq.Float64sEps(c.Er, want, 1e-9) {
		t.Errorf("Er = %v, want %v", c.Er, want)
	}
}

func TestUpdateNearZeroRadiusGuard(t *testing.T) {
	c := particle.New("test", 1.0, 2, 2)
	c.R2 = []float64{1e-31, 1}
	c.Q = []float64{5, 5}

	if err := Update(c, comm.NewSingleRank()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.Er[0] != 0 {
		t.Errorf("Er[0] = %g, want 0 for r2 below guard", c.Er[0])
	}
}

func TestUpdateDistributedMatchesSingleRank(t *testing.T) {
	const p = 4
	const perRank = 10

	// A single combined container, globally sorted by r2, used as the
	// single-rank baseline.
	allR2 := make([]float64, 0, p*perRank)
	allQ := make([]float64, 0, p*perRank)
	for r := 0; r < p; r++ {
		for i := 0; i < perRank; i++ {
			allR2 = append(allR2, float64(r*perRank+i+1))
			allQ = append(allQ, float64(r+i+1))
		}
	}
	baseline := particle.New("test", 1.0, len(allR2), int64(len(allR2)))
	copy(baseline.R2, allR2)
	copy(baseline.Q, allQ)
	if err := Update(baseline, comm.NewSingleRank()); err != nil {
		t.Fatalf("baseline Update: %v", err)
	}

	comms := comm.NewLocalWorld(p)
	containers := make([]*particle.Container, p)
	for r := 0; r < p; r++ {
		c := particle.New("test", 1.0, perRank, int64(p*perRank))
		copy(c.R2, allR2[r*perRank:(r+1)*perRank])
		copy(c.Q, allQ[r*perRank:(r+1)*perRank])
		containers[r] = c
	}

	var wg sync.WaitGroup
	errs := make([]error, p)
	for r := 0; r < p; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			errs[r] = Update(containers[r], comms[r])
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", r, err)
		}
	}

	for r := 0; r < p; r++ {
		for i := 0; i < perRank; i++ {
			got := containers[r].Er[i]
			want := baseline.Er[r*perRank+i]
			if !eq.Float64Eps(got, want, 1e-9) {
				t.Errorf("rank %d particle %d: Er = %g, want %g", r, i, got, want)
			}
		}
	}
}
