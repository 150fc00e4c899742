package simulator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/mrrlab/internal/analytics"
	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/clock"
	"github.com/smallbiznis/mrrlab/internal/observability/metrics"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/smallbiznis/mrrlab/internal/payments/memory"
	"github.com/smallbiznis/mrrlab/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var now = time.Date(2024, time.July, 15, 9, 30, 0, 0, time.UTC)

func testScenarioConfig() scenario.Config {
	cfg := scenario.DefaultConfig()
	cfg.AcquisitionQuota = map[int]int{0: 3}
	cfg.CancellationSchedule = map[int][]int{2: {0}}
	cfg.PastDueSchedule = map[int][]int{3: {0}}
	return cfg
}

func newTestSimulator(t *testing.T, gw payments.Gateway, sc scenario.Config, cfg Config) *Simulator {
	t.Helper()
	sim, err := New(Params{
		Gateway:  gw,
		Log:      zaptest.NewLogger(t),
		Clock:    clock.NewFakeClock(now),
		Scenario: sc,
		Config:   cfg,
	})
	require.NoError(t, err)
	return sim
}

func run(t *testing.T, sim *Simulator, sc scenario.Config) Result {
	t.Helper()
	ctx := context.Background()
	catalog, err := sim.ProvisionCatalog(ctx)
	require.NoError(t, err)
	scenarios, err := scenario.Generate(sc)
	require.NoError(t, err)
	result, err := sim.Run(ctx, catalog, scenarios)
	require.NoError(t, err)
	return result
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGroupsPartitionByAcquisitionMonth(t *testing.T) {
	scenarios, err := scenario.Generate(scenario.DefaultConfig())
	require.NoError(t, err)

	groups := Groups(scenarios, 3)
	require.Len(t, groups, 35)

	seen := 0
	for i, g := range groups {
		assert.Equal(t, i, g.Index)
		assert.LessOrEqual(t, len(g.Scenarios), 3)
		for _, sc := range g.Scenarios {
			assert.Equal(t, g.AcquisitionMonth, sc.AcquisitionMonth)
		}
		seen += len(g.Scenarios)
	}
	assert.Equal(t, 100, seen)
	assert.Equal(t, []int{3, 3, 2}, []int{len(groups[0].Scenarios), len(groups[1].Scenarios), len(groups[2].Scenarios)})
}

func TestProvisionCatalogCreatesPricePerPlan(t *testing.T) {
	gw := memory.New(clock.NewFakeClock(now), memory.Options{})
	sim := newTestSimulator(t, gw, scenario.DefaultConfig(), Config{})

	catalog, err := sim.ProvisionCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CloudSync Platform", catalog.Product.Name)
	require.Len(t, catalog.Prices, 4)
	assert.Equal(t, int64(7900), catalog.Prices["professional"].UnitAmount)
	assert.Equal(t, billing.IntervalMonth, catalog.Prices["enterprise"].Interval)
}

func TestRunCancelsAfterClockReachesTargetMonth(t *testing.T) {
	sc := testScenarioConfig()
	gw := memory.New(clock.NewFakeClock(now), memory.Options{AdvancingPolls: 2})
	sim := newTestSimulator(t, gw, sc, Config{Workers: 2})

	result := run(t, sim, sc)
	require.Empty(t, result.Failures)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, 3, result.Customers)
	assert.Equal(t, 3, result.Subscriptions)
	assert.Equal(t, 1, result.Cancellations)

	historyStart := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	members := result.Groups[0].Members
	require.Len(t, members, 3)

	canceled := members[0]
	require.True(t, canceled.Canceled)
	require.True(t, canceled.Scenario.CancelAtMonthStart)
	assert.Equal(t, historyStart.Add(AcquisitionOffset), canceled.Subscription.StartDate)
	require.NotNil(t, canceled.Subscription.CanceledAt)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), *canceled.Subscription.CanceledAt)

	subs, err := gw.ListSubscriptions(context.Background(), payments.SubscriptionFilter{TestClockID: result.Groups[0].Clock.ID})
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, s := range subs {
		statuses[s.ID] = s.Status
	}
	assert.Equal(t, billing.SubscriptionStatusCanceled, statuses[members[0].Subscription.ID])
	assert.Equal(t, billing.SubscriptionStatusPastDue, statuses[members[1].Subscription.ID])
	assert.Equal(t, billing.SubscriptionStatusActive, statuses[members[2].Subscription.ID])

	// Two members billed on the 15th of January through July, the canceled one in January and February.
	assert.Equal(t, 16, result.Invoices())
	assert.True(t, members[1].Subscription.MRRAmount.Add(members[2].Subscription.MRRAmount).Equal(result.ActiveMRR()))

	summary := analytics.ComputeMonthlySummary(subs, now)
	byMonth := map[string]analytics.MonthlySummary{}
	for _, row := range summary.Rows {
		byMonth[row.MonthYear] = row
	}
	assert.Equal(t, 3, byMonth["2024-02"].ActiveCustomers)
	assert.Equal(t, 2, byMonth["2024-03"].ActiveCustomers)
	assert.Equal(t, 1, byMonth["2024-03"].ChurnedCustomers)
}

func TestRunAlternatesBoundaryAndAnchorCancellations(t *testing.T) {
	sc := testScenarioConfig()
	sc.CancellationSchedule = map[int][]int{2: {0, 0}}
	sc.PastDueSchedule = nil
	gw := memory.New(clock.NewFakeClock(now), memory.Options{})
	sim := newTestSimulator(t, gw, sc, Config{})

	result := run(t, sim, sc)
	require.Empty(t, result.Failures)
	require.Equal(t, 2, result.Cancellations)

	members := result.Groups[0].Members
	require.NotNil(t, members[0].Subscription.CanceledAt)
	require.NotNil(t, members[1].Subscription.CanceledAt)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), *members[0].Subscription.CanceledAt)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), *members[1].Subscription.CanceledAt)
	// Six monthly steps plus the stop at the March boundary.
	assert.Equal(t, 7, gw.Calls(memory.OpAdvanceTestClock))

	summary := analytics.ComputeMonthlySummary([]billing.Subscription{members[0].Subscription, members[1].Subscription}, now)
	byMonth := map[string]analytics.MonthlySummary{}
	for _, row := range summary.Rows {
		byMonth[row.MonthYear] = row
	}
	assert.Equal(t, 2, byMonth["2024-02"].ActiveCustomers)
	assert.Equal(t, 2, byMonth["2024-03"].ChurnedCustomers)
	assert.Zero(t, byMonth["2024-03"].ActiveCustomers)
}

func TestRunSameMonthCancellation(t *testing.T) {
	sc := testScenarioConfig()
	sc.CancellationSchedule = map[int][]int{0: {0}}
	sc.PastDueSchedule = nil
	gw := memory.New(clock.NewFakeClock(now), memory.Options{})
	sim := newTestSimulator(t, gw, sc, Config{})

	result := run(t, sim, sc)
	require.Empty(t, result.Failures)

	canceled := result.Groups[0].Members[0]
	require.True(t, canceled.Canceled)
	require.NotNil(t, canceled.Subscription.CanceledAt)
	assert.Equal(t, canceled.Subscription.StartDate, *canceled.Subscription.CanceledAt)

	summary := analytics.ComputeMonthlySummary([]billing.Subscription{canceled.Subscription}, now)
	require.NotEmpty(t, summary.Rows)
	jan := summary.Rows[0]
	assert.Equal(t, "2024-01", jan.MonthYear)
	assert.Equal(t, 1, jan.NewCustomers)
	assert.Equal(t, 1, jan.ChurnedCustomers)
	assert.Zero(t, jan.ActiveCustomers)
}

func TestRunIsolatesFailedGroups(t *testing.T) {
	sc := testScenarioConfig()
	sc.AcquisitionQuota = map[int]int{0: 2, 1: 2}
	sc.CancellationSchedule = map[int][]int{3: {1}}
	sc.PastDueSchedule = nil
	sc.CustomersPerClock = 2

	gw := memory.New(clock.NewFakeClock(now), memory.Options{})
	gw.Inject(memory.OpCreateTestClock, memory.Fault{
		Match: func(name string) bool { return strings.Contains(name, "group-000") },
		Err:   errors.New("boom"),
	})
	sim := newTestSimulator(t, gw, sc, Config{Workers: 2})

	var (
		mu   sync.Mutex
		done []int
	)
	sim.OnGroupDone(func(g GroupResult) {
		mu.Lock()
		defer mu.Unlock()
		done = append(done, g.Index)
	})

	result := run(t, sim, sc)
	require.Len(t, result.Groups, 2)
	assert.ElementsMatch(t, []int{0, 1}, done)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, 0, result.Failures[0].Group)
	assert.Equal(t, "test_clocks.create", result.Failures[0].Op)

	assert.Empty(t, result.Groups[0].Members)
	assert.Equal(t, 2, result.Customers)
	assert.Equal(t, 1, result.Cancellations)
}

func TestRunRecordsEntityFailuresAndContinues(t *testing.T) {
	sc := testScenarioConfig()
	gw := memory.New(clock.NewFakeClock(now), memory.Options{})
	gw.Inject(memory.OpCreateCustomer, memory.Fault{Err: errors.New("card declined"), Times: 1})
	sim := newTestSimulator(t, gw, sc, Config{})

	result := run(t, sim, sc)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "customer", result.Failures[0].Entity)
	assert.Equal(t, "customers.create", result.Failures[0].Op)
	assert.Equal(t, 2, result.Customers)
	assert.Equal(t, 2, result.Subscriptions)
	// The first scenario was the one scheduled to cancel; nothing was left to cancel.
	assert.Zero(t, result.Cancellations)
	assert.Equal(t, metrics.OutcomePartial, result.Groups[0].outcome())
}

func TestRunStopsGroupWhenClockNeverSettles(t *testing.T) {
	sc := testScenarioConfig()
	gw := memory.New(clock.NewFakeClock(now), memory.Options{AdvancingPolls: 1 << 20})
	sim := newTestSimulator(t, gw, sc, Config{
		ClockReadyTimeout: 20 * time.Millisecond,
		ClockPollInterval: time.Millisecond,
	})

	result := run(t, sim, sc)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "test_clocks.advance", result.Failures[0].Op)
	assert.ErrorIs(t, result.Failures[0].Err, ErrClockNotReady)
	assert.Zero(t, result.Cancellations)
	assert.Equal(t, 1, gw.Calls(memory.OpAdvanceTestClock))
}

func TestRunHonoursContextCancellation(t *testing.T) {
	sc := testScenarioConfig()
	gw := memory.New(clock.NewFakeClock(now), memory.Options{})
	sim := newTestSimulator(t, gw, sc, Config{})

	catalog, err := sim.ProvisionCatalog(context.Background())
	require.NoError(t, err)
	scenarios, err := scenario.Generate(sc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := sim.Run(ctx, catalog, scenarios)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.Customers)
	assert.NotEmpty(t, result.Failures)
}
