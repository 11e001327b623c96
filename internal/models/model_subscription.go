package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jameswitika/iei.org.au/pkg/types"
)

// Subscription is one row per (member, membership_year). The membership year
// is named by the calendar year its cycle ends in, so year 2026 runs
// 2025-07-01 to 2026-06-30.
type Subscription struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MemberID       uint64 `gorm:"column:member_id;not null;uniqueIndex:uq_member_year,priority:1;index:idx_member_status,priority:1" json:"member_id"`
	MembershipYear int    `gorm:"column:membership_year;not null;uniqueIndex:uq_member_year,priority:2" json:"membership_year"`

	StartDate time.Time `gorm:"column:start_date;type:date;not null" json:"start_date"`
	EndDate   time.Time `gorm:"column:end_date;type:date;not null" json:"end_date"`

	AmountDue  decimal.Decimal `gorm:"column:amount_due;type:decimal(10,2);not null;default:0" json:"amount_due"`
	AmountPaid decimal.Decimal `gorm:"column:amount_paid;type:decimal(10,2);not null;default:0" json:"amount_paid"`

	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(30);not null;default:pending_payment;index;index:idx_member_status,priority:2" json:"status"`

	DueDate    time.Time  `gorm:"column:due_date;type:date;not null;index" json:"due_date"`
	PaidAt     *time.Time `gorm:"column:paid_at" json:"paid_at"`
	GraceUntil *time.Time `gorm:"column:grace_until;type:date" json:"grace_until"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Outstanding is the unpaid remainder, never negative.
func (s *Subscription) Outstanding() decimal.Decimal {
	due := s.AmountDue.Sub(s.AmountPaid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}
