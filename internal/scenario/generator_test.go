package scenario

import (
	"strings"
	"testing"

	"github.com/smallbiznis/mrrlab/internal/billing"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReproducesStatusDistributionExactly(t *testing.T) {
	scenarios, err := Generate(DefaultConfig())
	require.NoError(t, err)
	require.Len(t, scenarios, 100)

	summary := Summarize(scenarios)
	assert.Equal(t, 70, summary.ByStatus[billing.StatusActive])
	assert.Equal(t, 20, summary.ByStatus[billing.StatusCanceled])
	assert.Equal(t, 10, summary.ByStatus[billing.StatusPastDue])
	assert.Equal(t, map[int]int{0: 8, 1: 15, 2: 25, 3: 12, 4: 18, 5: 22}, summary.ByMonth)
}

func TestGenerateMatchesScheduleEntries(t *testing.T) {
	cfg := DefaultConfig()
	scenarios, err := Generate(cfg)
	require.NoError(t, err)

	type key struct{ acq, event int }
	wantCancels := map[key]int{}
	for event, acqs := range cfg.CancellationSchedule {
		for _, acq := range acqs {
			wantCancels[key{acq, event}]++
		}
	}
	wantPastDue := map[key]int{}
	for event, acqs := range cfg.PastDueSchedule {
		for _, acq := range acqs {
			wantPastDue[key{acq, event}]++
		}
	}

	gotCancels := map[key]int{}
	gotPastDue := map[key]int{}
	for _, sc := range scenarios {
		switch sc.Status {
		case billing.StatusCanceled:
			require.GreaterOrEqual(t, sc.CancelAfterMonths, 0)
			gotCancels[key{sc.AcquisitionMonth, sc.AcquisitionMonth + sc.CancelAfterMonths}]++
		case billing.StatusPastDue:
			require.GreaterOrEqual(t, sc.PastDueAtMonth, 0)
			gotPastDue[key{sc.AcquisitionMonth, sc.AcquisitionMonth + sc.PastDueAtMonth}]++
		}
	}
	assert.Equal(t, wantCancels, gotCancels)
	assert.Equal(t, wantPastDue, gotPastDue)
}

func TestGenerateOrdersByAcquisitionAndDrainsCancellationsFirst(t *testing.T) {
	scenarios, err := Generate(DefaultConfig())
	require.NoError(t, err)

	for i := 1; i < len(scenarios); i++ {
		assert.LessOrEqual(t, scenarios[i-1].AcquisitionMonth, scenarios[i].AcquisitionMonth)
		assert.Equal(t, i, scenarios[i].Index)
	}

	// Month 0: three cancellations (two in month 1, one in month 2), one past due, four active.
	month0 := scenarios[:8]
	want := []billing.Status{
		billing.StatusCanceled, billing.StatusCanceled, billing.StatusCanceled,
		billing.StatusPastDue,
		billing.StatusActive, billing.StatusActive, billing.StatusActive, billing.StatusActive,
	}
	for i, sc := range month0 {
		assert.Equal(t, want[i], sc.Status, "scenario %d", i)
	}
	assert.Equal(t, []int{1, 1, 2}, []int{month0[0].CancelAfterMonths, month0[1].CancelAfterMonths, month0[2].CancelAfterMonths})
	assert.Equal(t, 3, month0[3].PastDueAtMonth)
	assert.Equal(t, []bool{true, false, true}, []bool{month0[0].CancelAtMonthStart, month0[1].CancelAtMonthStart, month0[2].CancelAtMonthStart})
	assert.Equal(t, "true", month0[0].Metadata()["cancel_at_month_start"])
}

func TestGenerateMixesBoundaryAndMidMonthCancellations(t *testing.T) {
	scenarios, err := Generate(DefaultConfig())
	require.NoError(t, err)

	var boundary, midMonth, sameMonth int
	for _, sc := range scenarios {
		switch {
		case !sc.Cancels():
			assert.False(t, sc.CancelAtMonthStart)
		case sc.CancelAfterMonths == 0:
			assert.False(t, sc.CancelAtMonthStart)
			sameMonth++
		case sc.CancelAtMonthStart:
			boundary++
		default:
			midMonth++
		}
	}
	assert.Equal(t, 20, boundary+midMonth+sameMonth)
	assert.Positive(t, boundary)
	assert.Positive(t, midMonth)
}

func TestGenerateSameMonthCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CancellationSchedule = map[int][]int{2: {2}}
	cfg.PastDueSchedule = nil

	scenarios, err := Generate(cfg)
	require.NoError(t, err)

	var canceled []Scenario
	for _, sc := range scenarios {
		if sc.Cancels() {
			canceled = append(canceled, sc)
		}
	}
	require.Len(t, canceled, 1)
	assert.Equal(t, 2, canceled[0].AcquisitionMonth)
	assert.Equal(t, 0, canceled[0].CancelAfterMonths)
	assert.Equal(t, "0", canceled[0].Metadata()["cancel_after_months"])
	assert.False(t, canceled[0].CancelAtMonthStart)
}

func TestGenerateIsDeterministicPerSeed(t *testing.T) {
	a, err := Generate(DefaultConfig())
	require.NoError(t, err)
	b, err := Generate(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg := DefaultConfig()
	cfg.Seed = 7
	c, err := Generate(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerateAssignsNamesAndEmails(t *testing.T) {
	scenarios, err := Generate(DefaultConfig())
	require.NoError(t, err)

	for _, sc := range scenarios {
		require.NotEmpty(t, sc.CompanyName)
		require.True(t, strings.HasPrefix(sc.Email, "billing@"), sc.Email)
		require.True(t, strings.HasSuffix(sc.Email, ".com"), sc.Email)
		domain := strings.TrimSuffix(strings.TrimPrefix(sc.Email, "billing@"), ".com")
		assert.LessOrEqual(t, len(domain), 15)
		assert.Equal(t, strings.ToLower(domain), domain)
	}
}

func TestBillingEmail(t *testing.T) {
	assert.Equal(t, "billing@techanalyticsla.com", billingEmail("TechAnalytics Labs"))
	assert.Equal(t, "billing@dataai.com", billingEmail("Data AI"))
}

func TestValidateRejectsBadSchedules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"cancel before acquisition", func(c *Config) { c.CancellationSchedule = map[int][]int{1: {2}} }},
		{"past due before acquisition", func(c *Config) { c.PastDueSchedule = map[int][]int{0: {1}} }},
		{"event outside horizon", func(c *Config) { c.CancellationSchedule = map[int][]int{6: {0}} }},
		{"events exceed quota", func(c *Config) {
			c.AcquisitionQuota = map[int]int{0: 2}
			c.CancellationSchedule = map[int][]int{1: {0, 0}}
			c.PastDueSchedule = map[int][]int{2: {0}}
		}},
		{"event for month without quota", func(c *Config) {
			c.AcquisitionQuota = map[int]int{1: 4}
			c.CancellationSchedule = map[int][]int{2: {0}}
			c.PastDueSchedule = nil
		}},
		{"negative quota", func(c *Config) { c.AcquisitionQuota[3] = -1 }},
		{"weights do not sum to one", func(c *Config) { c.Plans[0].Weight = 0.5 }},
		{"no plans", func(c *Config) { c.Plans = nil }},
		{"zero horizon", func(c *Config) { c.HorizonMonths = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchedule)
			assert.True(t, ierr.IsValidation(err))

			_, err = Generate(cfg)
			assert.ErrorIs(t, err, ErrInvalidSchedule)
		})
	}
}

func TestExpectedTrend(t *testing.T) {
	plan := Plan{Name: "solo", Weight: 1, UnitAmount: 10000, Interval: billing.IntervalMonth}
	scenarios := []Scenario{
		{AcquisitionMonth: 0, Status: billing.StatusActive, Plan: plan},
		{AcquisitionMonth: 0, Status: billing.StatusCanceled, CancelAfterMonths: 2, Plan: plan},
		{AcquisitionMonth: 1, Status: billing.StatusCanceled, CancelAfterMonths: 0, Plan: plan},
		{AcquisitionMonth: 2, Status: billing.StatusPastDue, PastDueAtMonth: 1, Plan: plan},
	}

	trend := ExpectedTrend(scenarios, 4)
	require.Len(t, trend, 4)
	got := make([]string, len(trend))
	for i, v := range trend {
		got[i] = v.String()
	}
	assert.Equal(t, []string{"200", "200", "200", "200"}, got)
}
