package models

import "time"

// Counter is a named persistent counter. The membership number allocator
// bumps its row immediately after reserving a value so a crash between
// activations never hands out the same number twice.
type Counter struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(80);not null;uniqueIndex" json:"name"`
	Value     int64     `gorm:"column:value;not null;default:0" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Counter) TableName() string {
	return "counters"
}

const CounterMembershipNumberNext = "membership_number_next"
