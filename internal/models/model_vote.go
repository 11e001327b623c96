package models

import (
	"time"

	"github.com/jameswitika/iei.org.au/pkg/types"
)

// Vote is one row per (application, director). Rows are seeded in bulk when
// an application enters board review and reused across officer resets.
type Vote struct {
	ID             uint64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ApplicationID  uint64           `gorm:"column:application_id;not null;uniqueIndex:uq_application_director,priority:1;index:idx_application_vote,priority:1" json:"application_id"`
	DirectorUserID uint64           `gorm:"column:director_user_id;not null;uniqueIndex:uq_application_director,priority:2;index" json:"director_user_id"`
	Vote           types.VoteChoice `gorm:"column:vote;type:varchar(20);not null;default:unanswered;index:idx_application_vote,priority:2" json:"vote"`

	ViewedAt      *time.Time `gorm:"column:viewed_at" json:"viewed_at"`
	LastViewedAt  *time.Time `gorm:"column:last_viewed_at" json:"last_viewed_at"`
	RespondedAt   *time.Time `gorm:"column:responded_at" json:"responded_at"`
	VotedAt       *time.Time `gorm:"column:voted_at" json:"voted_at"`
	Note          string     `gorm:"column:note;type:text" json:"note"`
	ResetByUserID *uint64    `gorm:"column:reset_by_user_id" json:"reset_by_user_id"`
	ResetAt       *time.Time `gorm:"column:reset_at" json:"reset_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Vote) TableName() string {
	return "application_votes"
}
