package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// User is the canonical identity every cart and order attaches to.
type User struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Email           string             `gorm:"column:email;type:text;not null;uniqueIndex"`
	FirstName       string             `gorm:"column:first_name;not null"`
	LastName        string             `gorm:"column:last_name;not null"`
	Role            enums.UserRole     `gorm:"column:role;type:text;not null;default:'customer'"`
	AuthProvider    enums.AuthProvider `gorm:"column:auth_provider;type:text;not null;default:'local'"`
	ProviderSubject *string            `gorm:"column:provider_subject"`
	PasswordHash    *string            `gorm:"column:password_hash"`
	LastLoginAt     *time.Time         `gorm:"column:last_login_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
