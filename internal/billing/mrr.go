package billing

import "github.com/shopspring/decimal"

// WeeksPerMonth converts weekly prices to a monthly equivalent. It is a policy approximation of the
// average number of weeks in a month, not a derived value; change it here only.
var WeeksPerMonth = decimal.RequireFromString("4.33")

// DaysPerMonth converts daily prices; average Gregorian month length.
var DaysPerMonth = decimal.RequireFromString("30.44")

var (
	centsPerUnit   = decimal.NewFromInt(100)
	monthsPerYear  = decimal.NewFromInt(12)
	defaultRounded = int32(2)
)

// MonthlyEquivalent normalizes a recurring price to its monthly revenue in major currency units.
// Unit amounts are in cents. Unknown intervals contribute zero.
func MonthlyEquivalent(unitAmount, quantity int64, interval Interval, intervalCount int64) decimal.Decimal {
	if quantity <= 0 {
		quantity = 1
	}
	face := decimal.NewFromInt(unitAmount).Mul(decimal.NewFromInt(quantity)).Div(centsPerUnit)

	var monthly decimal.Decimal
	switch interval {
	case IntervalMonth:
		monthly = face
	case IntervalYear:
		monthly = face.Div(monthsPerYear)
	case IntervalWeek:
		monthly = face.Mul(WeeksPerMonth)
	case IntervalDay:
		monthly = face.Mul(DaysPerMonth)
	default:
		return decimal.Zero
	}

	if intervalCount > 1 {
		monthly = monthly.Div(decimal.NewFromInt(intervalCount))
	}
	return monthly.Round(defaultRounded)
}
