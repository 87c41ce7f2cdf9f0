package users

import "time"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User is the identity record owned by the auth/profile side of the platform.
// This subsystem only reads it: buyer contact defaults, organizer identity,
// and the admin role gate.
type User struct {
	ID        string  `gorm:"type:char(36);primaryKey"`
	Email     string  `gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	FirstName string  `gorm:"type:varchar(100);not null"`
	LastName  string  `gorm:"type:varchar(100);not null"`
	Phone     *string `gorm:"type:varchar(32)"`
	Role      string  `gorm:"type:varchar(32);not null;default:'member'"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
