// Package scheduler orders a plan's steps into waves: sets of steps whose
// dependencies are all satisfied by earlier waves and which may therefore
// run concurrently.
package scheduler

import (
	"fmt"
	"slices"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// Wave is a set of step indices with no unresolved dependency, in
// ascending index order.
type Wave struct {
	Index int
	Steps []int
}

// Schedule layers the plan's steps with Kahn's algorithm. Each wave holds
// every step whose dependencies all sit in earlier waves, ordered by
// ascending step index. Schedule is a pure function of p.
//
// A dependency graph that cannot be fully layered yields a
// *errors.PlanCycleError naming the unplaced steps and no waves.
func Schedule(p *plan.Plan) ([]Wave, error) {
	n := len(p.Steps)
	if n == 0 {
		return nil, nil
	}

	inDegree := make([]int, n)
	dependents := make([][]int, n)
	for i, s := range p.Steps {
		deps := slices.Clone(s.DependsOn)
		slices.Sort(deps)
		for _, d := range slices.Compact(deps) {
			if d < 0 || d >= n {
				return nil, errors.NewValidationError("dependency refers to an unknown step").
					WithField(fmt.Sprintf("steps[%d].depends_on", i)).WithValue(d)
			}
			inDegree[i]++
			dependents[d] = append(dependents[d], i)
		}
	}

	var ready []int
	for i, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}

	var waves []Wave
	placed := 0
	for len(ready) > 0 {
		slices.Sort(ready)
		waves = append(waves, Wave{Index: len(waves), Steps: ready})
		placed += len(ready)

		var next []int
		for _, id := range ready {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		ready = next
	}

	if placed < n {
		var remaining []int
		for i, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, i)
			}
		}
		return nil, errors.NewPlanCycleError(remaining)
	}
	return waves, nil
}

// Stats summarizes how much parallelism a schedule exposes.
type Stats struct {
	TotalSteps    int
	Waves         int
	ParallelSteps int // steps that share their wave with at least one other step
	WidestWave    int
	// SavingsPercent estimates wall-clock savings versus sequential
	// execution assuming equal step durations.
	SavingsPercent float64
}

// Analyze schedules p and reports parallelization statistics.
func Analyze(p *plan.Plan) (Stats, error) {
	waves, err := Schedule(p)
	if err != nil {
		return Stats{}, err
	}
	return StatsOf(waves), nil
}

// StatsOf computes Stats for an existing schedule.
func StatsOf(waves []Wave) Stats {
	var st Stats
	st.Waves = len(waves)
	for _, w := range waves {
		st.TotalSteps += len(w.Steps)
		if len(w.Steps) > 1 {
			st.ParallelSteps += len(w.Steps)
		}
		st.WidestWave = max(st.WidestWave, len(w.Steps))
	}
	if st.TotalSteps > 0 {
		st.SavingsPercent = (1 - float64(st.Waves)/float64(st.TotalSteps)) * 100
	}
	return st
}
