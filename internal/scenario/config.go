package scenario

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/smallbiznis/mrrlab/internal/billing"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
)

var ErrInvalidSchedule = errors.New("invalid scenario schedule")

const weightTolerance = 1e-9

// Plan is one pricing tier customers are assigned to by weight.
type Plan struct {
	Name       string           `mapstructure:"name"`
	Nickname   string           `mapstructure:"nickname"`
	Weight     float64          `mapstructure:"weight"`
	UnitAmount int64            `mapstructure:"unit_amount"`
	Interval   billing.Interval `mapstructure:"interval"`
}

// Config drives a generation run. Month indexes count from the oldest month of the horizon (0).
// Schedules map an event month to the acquisition months of the customers it applies to.
type Config struct {
	AcquisitionQuota     map[int]int   `mapstructure:"acquisition_quota"`
	CancellationSchedule map[int][]int `mapstructure:"cancellation_schedule"`
	PastDueSchedule      map[int][]int `mapstructure:"past_due_schedule"`
	Plans                []Plan        `mapstructure:"plans"`

	HorizonMonths     int    `mapstructure:"horizon_months"`
	CustomersPerClock int    `mapstructure:"customers_per_clock"`
	Seed              uint64 `mapstructure:"seed"`
	Currency          string `mapstructure:"currency"`

	ProductName        string `mapstructure:"product_name"`
	ProductDescription string `mapstructure:"product_description"`
}

// DefaultConfig is 100 customers over six months: growth, a dip, then recovery, with 20
// cancellations and 10 past-due accounts.
func DefaultConfig() Config {
	return Config{
		AcquisitionQuota: map[int]int{0: 8, 1: 15, 2: 25, 3: 12, 4: 18, 5: 22},
		CancellationSchedule: map[int][]int{
			1: {0, 0},
			2: {0, 1, 1},
			3: {1, 1, 2, 2, 2},
			4: {2, 2, 3, 3, 3},
			5: {3, 4, 4, 4, 4},
		},
		PastDueSchedule: map[int][]int{
			2: {1, 1},
			3: {0, 2, 2},
			4: {2, 3, 3},
			5: {4, 4},
		},
		Plans: []Plan{
			{Name: "starter", Nickname: "Starter Plan", Weight: 0.40, UnitAmount: 2900, Interval: billing.IntervalMonth},
			{Name: "professional", Nickname: "Professional Plan", Weight: 0.30, UnitAmount: 7900, Interval: billing.IntervalMonth},
			{Name: "business", Nickname: "Business Plan", Weight: 0.20, UnitAmount: 14900, Interval: billing.IntervalMonth},
			{Name: "enterprise", Nickname: "Enterprise Plan", Weight: 0.10, UnitAmount: 29900, Interval: billing.IntervalMonth},
		},
		HorizonMonths:      6,
		CustomersPerClock:  3,
		Seed:               42,
		Currency:           "usd",
		ProductName:        "CloudSync Platform",
		ProductDescription: "Enterprise-grade cloud synchronization and analytics platform",
	}
}

// TotalCustomers is the sum of all acquisition quotas.
func (c Config) TotalCustomers() int {
	total := 0
	for _, n := range c.AcquisitionQuota {
		total += n
	}
	return total
}

// Validate rejects schedules that could not be realized: events before their acquisition month,
// events outside the horizon, or more events for an acquisition month than it acquires.
func (c Config) Validate() error {
	if c.HorizonMonths <= 0 {
		return invalid("horizon_months must be positive, got %d", c.HorizonMonths)
	}
	if c.CustomersPerClock <= 0 {
		return invalid("customers_per_clock must be positive, got %d", c.CustomersPerClock)
	}
	if len(c.Plans) == 0 {
		return invalid("at least one plan is required")
	}

	var weights float64
	for _, p := range c.Plans {
		if p.Name == "" {
			return invalid("plan without a name")
		}
		if p.Weight < 0 {
			return invalid("plan %s has negative weight %v", p.Name, p.Weight)
		}
		if p.UnitAmount <= 0 {
			return invalid("plan %s has non-positive unit amount %d", p.Name, p.UnitAmount)
		}
		weights += p.Weight
	}
	if math.Abs(weights-1) > weightTolerance {
		return invalid("plan weights sum to %v, want 1", weights)
	}

	for _, month := range slices.Sorted(maps.Keys(c.AcquisitionQuota)) {
		quota := c.AcquisitionQuota[month]
		if quota < 0 {
			return invalid("acquisition month %d has negative quota %d", month, quota)
		}
		if month < 0 || month >= c.HorizonMonths {
			return invalid("acquisition month %d outside horizon of %d months", month, c.HorizonMonths)
		}
	}

	used := map[int]int{}
	for _, sched := range []struct {
		name   string
		events map[int][]int
	}{
		{"cancellation", c.CancellationSchedule},
		{"past_due", c.PastDueSchedule},
	} {
		for _, event := range slices.Sorted(maps.Keys(sched.events)) {
			if event < 0 || event >= c.HorizonMonths {
				return invalid("%s month %d outside horizon of %d months", sched.name, event, c.HorizonMonths)
			}
			for _, acq := range sched.events[event] {
				if acq > event {
					return invalid("%s in month %d references later acquisition month %d", sched.name, event, acq)
				}
				if _, ok := c.AcquisitionQuota[acq]; !ok {
					return invalid("%s in month %d references acquisition month %d without quota", sched.name, event, acq)
				}
				used[acq]++
			}
		}
	}
	for _, acq := range slices.Sorted(maps.Keys(used)) {
		if used[acq] > c.AcquisitionQuota[acq] {
			return invalid("acquisition month %d has %d scheduled events but a quota of %d", acq, used[acq], c.AcquisitionQuota[acq])
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return ierr.Mark(fmt.Errorf("%w: %s", ErrInvalidSchedule, fmt.Sprintf(format, args...)), ierr.ErrValidation)
}
