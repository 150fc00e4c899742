package scenario

import (
	"maps"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/smallbiznis/mrrlab/internal/billing"
)

// Scenario is one synthetic customer and the lifecycle it is scheduled to go through.
type Scenario struct {
	Index            int
	AcquisitionMonth int
	Status           billing.Status
	Plan             Plan

	// CancelAfterMonths is months between acquisition and cancellation; 0 cancels in the
	// acquisition month. Only meaningful for canceled scenarios.
	CancelAfterMonths int
	// CancelAtMonthStart cancels exactly at 00:00 UTC on the first of the cancellation month
	// instead of at the clock's mid-month anchor. Never set for same-month cancellations.
	CancelAtMonthStart bool
	// PastDueAtMonth is the month offset at which the account falls behind on payment.
	PastDueAtMonth int

	CompanyName string
	Email       string
}

func (s Scenario) Cancels() bool { return s.Status == billing.StatusCanceled }

func (s Scenario) PastDue() bool { return s.Status == billing.StatusPastDue }

// Metadata is attached to the customer and subscription created for the scenario.
func (s Scenario) Metadata() map[string]string {
	md := map[string]string{
		"scenario_status":   string(s.Status),
		"acquisition_month": strconv.Itoa(s.AcquisitionMonth),
		"plan":              s.Plan.Name,
	}
	if s.Cancels() {
		md["cancel_after_months"] = strconv.Itoa(s.CancelAfterMonths)
		md["cancel_at_month_start"] = strconv.FormatBool(s.CancelAtMonthStart)
	}
	if s.PastDue() {
		md["past_due_at_month"] = strconv.Itoa(s.PastDueAtMonth)
	}
	return md
}

// Generate enumerates one scenario per quota slot, ordered by acquisition month. Within a month
// scheduled cancellations are assigned first, then past-due events, and the rest stay active, so
// status counts match the schedules exactly. Later-month cancellations alternate between the
// month boundary and mid-month, starting with the boundary.
func Generate(cfg Config) ([]Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	cancels := eventsByAcquisition(cfg.CancellationSchedule)
	pastDues := eventsByAcquisition(cfg.PastDueSchedule)

	out := make([]Scenario, 0, cfg.TotalCustomers())
	for _, acq := range slices.Sorted(maps.Keys(cfg.AcquisitionQuota)) {
		pendingCancels := cancels[acq]
		pendingPastDues := pastDues[acq]
		laterCancels := 0

		for range cfg.AcquisitionQuota[acq] {
			sc := Scenario{
				Index:            len(out),
				AcquisitionMonth: acq,
				Plan:             pickPlan(rng, cfg.Plans),
			}
			switch {
			case len(pendingCancels) > 0:
				sc.Status = billing.StatusCanceled
				sc.CancelAfterMonths = pendingCancels[0] - acq
				pendingCancels = pendingCancels[1:]
				if sc.CancelAfterMonths > 0 {
					sc.CancelAtMonthStart = laterCancels%2 == 0
					laterCancels++
				}
			case len(pendingPastDues) > 0:
				sc.Status = billing.StatusPastDue
				sc.PastDueAtMonth = pendingPastDues[0] - acq
				pendingPastDues = pendingPastDues[1:]
			default:
				sc.Status = billing.StatusActive
			}
			sc.CompanyName = companyName(rng)
			sc.Email = billingEmail(sc.CompanyName)
			out = append(out, sc)
		}
	}
	return out, nil
}

// eventsByAcquisition inverts an event schedule into acquisition month -> ascending event months.
func eventsByAcquisition(schedule map[int][]int) map[int][]int {
	out := map[int][]int{}
	for _, event := range slices.Sorted(maps.Keys(schedule)) {
		for _, acq := range schedule[event] {
			out[acq] = append(out[acq], event)
		}
	}
	return out
}

func pickPlan(rng *rand.Rand, plans []Plan) Plan {
	r := rng.Float64()
	var cum float64
	for _, p := range plans {
		cum += p.Weight
		if r < cum {
			return p
		}
	}
	return plans[len(plans)-1]
}
