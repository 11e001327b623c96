package models

import (
	"time"

	"github.com/jameswitika/iei.org.au/pkg/types"
)

// User is the identity record. The engine only stores the membership role and
// emits assignment events; capability enforcement is the host's concern.
type User struct {
	ID        uint64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Email     string               `gorm:"column:email;type:varchar(190);not null;uniqueIndex" json:"email"`
	FirstName string               `gorm:"column:first_name;type:varchar(100)" json:"first_name"`
	LastName  string               `gorm:"column:last_name;type:varchar(100)" json:"last_name"`
	Role      types.MembershipRole `gorm:"column:role;type:varchar(40);not null;index" json:"role"`

	// DirectorDisabled excludes a director from vote seeding and reminders
	// without removing the role.
	DirectorDisabled bool `gorm:"column:director_disabled;not null;default:false" json:"director_disabled"`

	PasswordHash  string     `gorm:"column:password_hash;type:varchar(190)" json:"-"`
	PasswordSetAt *time.Time `gorm:"column:password_set_at" json:"password_set_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	return u.FirstName + " " + u.LastName
}
