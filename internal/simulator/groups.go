package simulator

import (
	"github.com/smallbiznis/mrrlab/internal/scenario"
)

// Group is a set of scenarios driven by one test clock. Members share an acquisition month so the
// clock's frozen time is their common simulated now.
type Group struct {
	Index            int
	AcquisitionMonth int
	Scenarios        []scenario.Scenario
}

// Groups partitions scenarios into clock groups of at most perClock members, keeping input order.
func Groups(scenarios []scenario.Scenario, perClock int) []Group {
	if perClock <= 0 {
		perClock = 1
	}

	var groups []Group
	for _, sc := range scenarios {
		n := len(groups)
		if n == 0 || groups[n-1].AcquisitionMonth != sc.AcquisitionMonth || len(groups[n-1].Scenarios) >= perClock {
			groups = append(groups, Group{Index: n, AcquisitionMonth: sc.AcquisitionMonth})
			n++
		}
		groups[n-1].Scenarios = append(groups[n-1].Scenarios, sc)
	}
	return groups
}
