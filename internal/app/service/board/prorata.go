package board

import (
	"time"

	"github.com/shopspring/decimal"
)

var decimalTwelve = decimal.NewFromInt(12)

// firstSubscriptionTerms describes the opening subscription offered to a
// newly approved member.
type firstSubscriptionTerms struct {
	MembershipYear int
	Amount         decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	DueDate        time.Time
}

// cycleEndAfter returns the June 30 that is on or after d.
func cycleEndAfter(d time.Time) time.Time {
	year := d.Year()
	if d.Month() >= time.July {
		year++
	}
	return time.Date(year, time.June, 30, 0, 0, 0, 0, d.Location())
}

// prorataTerms prices the first membership year. The cycle runs July 1 to
// June 30; joining with more than cutoffDays left pays per remaining month,
// while joining inside the cutoff pays the full price for the next cycle.
func prorataTerms(today time.Time, basePrice decimal.Decimal, cutoffDays int) firstSubscriptionTerms {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	cycleEnd := cycleEndAfter(day)
	daysRemaining := int(cycleEnd.Sub(day).Hours() / 24)

	if daysRemaining > cutoffDays {
		months := (cycleEnd.Year()*12 + int(cycleEnd.Month())) - (day.Year()*12 + int(day.Month())) + 1
		if months < 1 {
			months = 1
		}
		if months > 12 {
			months = 12
		}
		amount := basePrice.Mul(decimal.NewFromInt(int64(months))).Div(decimalTwelve).Round(2)
		return firstSubscriptionTerms{
			MembershipYear: cycleEnd.Year(),
			Amount:         amount,
			StartDate:      day,
			EndDate:        cycleEnd,
			DueDate:        day,
		}
	}

	nextEnd := cycleEnd.AddDate(1, 0, 0)
	return firstSubscriptionTerms{
		MembershipYear: nextEnd.Year(),
		Amount:         basePrice,
		StartDate:      day,
		EndDate:        nextEnd,
		DueDate:        day,
	}
}
