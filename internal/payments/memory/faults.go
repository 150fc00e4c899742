package memory

import "sync"

// Operation names used for fault injection. They match the op labels the stripe gateway reports.
const (
	OpCreateProduct      = "products.create"
	OpListProducts       = "products.list"
	OpArchiveProduct     = "products.archive"
	OpCreatePrice        = "prices.create"
	OpListPrices         = "prices.list"
	OpCreateTestClock    = "test_clocks.create"
	OpAdvanceTestClock   = "test_clocks.advance"
	OpGetTestClock       = "test_clocks.retrieve"
	OpListTestClocks     = "test_clocks.list"
	OpDeleteTestClock    = "test_clocks.delete"
	OpCreateCustomer     = "customers.create"
	OpAttachCard         = "payment_methods.attach"
	OpGetCustomer        = "customers.retrieve"
	OpListCustomers      = "customers.list"
	OpDeleteCustomer     = "customers.delete"
	OpCreateSubscription = "subscriptions.create"
	OpCancelSubscription = "subscriptions.cancel"
	OpListSubscriptions  = "subscriptions.list"
	OpListInvoices       = "invoices.list"
)

// Fault fails matching calls of one operation with Err. Match receives the call's key argument
// (entity id, email, filter value); nil matches every call. Times limits how often the fault
// fires; zero means always.
type Fault struct {
	Match func(key string) bool
	Err   error
	Times int
}

type faults struct {
	mu     sync.Mutex
	byOp   map[string][]*Fault
	counts map[string]int
}

func (f *faults) add(op string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byOp == nil {
		f.byOp = map[string][]*Fault{}
	}
	copied := fault
	f.byOp[op] = append(f.byOp[op], &copied)
}

func (f *faults) check(op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[op]++

	for _, fault := range f.byOp[op] {
		if fault.Match != nil && !fault.Match(key) {
			continue
		}
		if fault.Times < 0 {
			continue
		}
		if fault.Times > 0 {
			fault.Times--
			if fault.Times == 0 {
				fault.Times = -1
			}
		}
		return fault.Err
	}
	return nil
}

func (f *faults) calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}
