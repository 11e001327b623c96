package models

import (
	"time"

	"github.com/jameswitika/iei.org.au/pkg/types"
)

// Member holds one row per identity. The membership number is assigned once,
// at first activation, and never reassigned.
type Member struct {
	ID            uint64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID        uint64  `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	ApplicationID *uint64 `gorm:"column:application_id;index" json:"application_id"`

	MembershipNumber *string              `gorm:"column:membership_number;type:varchar(40);uniqueIndex" json:"membership_number"`
	MembershipType   types.MembershipType `gorm:"column:membership_type;type:varchar(50);not null" json:"membership_type"`
	Status           types.MemberStatus   `gorm:"column:status;type:varchar(30);not null;default:pending_payment;index" json:"status"`

	ApprovedAt  *time.Time `gorm:"column:approved_at" json:"approved_at"`
	ActivatedAt *time.Time `gorm:"column:activated_at" json:"activated_at"`
	LapsedAt    *time.Time `gorm:"column:lapsed_at" json:"lapsed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}
