package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLogEntry is immutable once written and is the sole audit source of
// truth for after-the-fact reconstruction.
type ActivityLogEntry struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ApplicationID *uint64        `gorm:"column:application_id;index" json:"application_id"`
	MemberID      *uint64        `gorm:"column:member_id;index" json:"member_id"`
	ActorUserID   *uint64        `gorm:"column:actor_user_id;index" json:"actor_user_id"`
	EventType     string         `gorm:"column:event_type;type:varchar(80);not null;index" json:"event_type"`
	EventContext  datatypes.JSON `gorm:"column:event_context;type:jsonb" json:"event_context"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

func (ActivityLogEntry) TableName() string {
	return "activity_log"
}
