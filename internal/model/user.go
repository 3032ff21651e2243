package model

import (
	"time"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// UserRecord is one authenticated end user of the loan portal.
//
// UserID is the public identifier and never changes after creation. ID is a
// storage surrogate so that a soft-deleted row does not block re-creating the
// same UserID. ExternalProviderID is empty until an OAuth sign-in links it.
type UserRecord struct {
	ID                 uint       `gorm:"primaryKey;autoIncrement" bson:"-" json:"-"`
	UserID             string     `gorm:"type:varchar(64);not null" bson:"user_id" json:"user_id"`
	ExternalProviderID string     `gorm:"type:varchar(255);not null;default:''" bson:"external_provider_id,omitempty" json:"external_provider_id,omitempty"`
	Email              string     `gorm:"type:varchar(320);not null;default:''" bson:"email" json:"email"`
	Name               string     `gorm:"type:varchar(255);not null;default:''" bson:"name" json:"name"`
	AvatarURL          string     `gorm:"type:varchar(1024);not null;default:''" bson:"avatar_url" json:"avatar_url,omitempty"`
	EmailVerifiedAt    *time.Time `bson:"email_verified_at,omitempty" json:"email_verified_at,omitempty"`
	Role               UserRole   `gorm:"type:varchar(16);not null;default:'user'" bson:"role" json:"role"`
	Status             UserStatus `gorm:"type:varchar(16);not null;default:'active'" bson:"status" json:"status"`
	IsDeleted          bool       `gorm:"not null;default:false;index" bson:"is_deleted" json:"is_deleted"`
	CreatedAt          time.Time  `gorm:"index" bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at" json:"updated_at"`
}

func (UserRecord) TableName() string { return "users" }

// IsActive reports whether the user may sign in.
func (u *UserRecord) IsActive() bool {
	return !u.IsDeleted && u.Status == UserStatusActive
}
