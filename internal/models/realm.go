package models

import "time"

// Realm is a group of users sharing commitments, holidays and challenges.
type Realm struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	Slug           string    `gorm:"uniqueIndex;size:100;not null" json:"slug"`
	Description    string    `gorm:"size:500" json:"description"`
	HolidayCountry string    `gorm:"size:10" json:"holiday_country"` // ISO code for national holidays, empty for none
	CreatedBy      uint      `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Realm) TableName() string { return "realms" }

type UserRealm struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_user_realm;not null" json:"user_id"`
	RealmID   uint      `gorm:"uniqueIndex:idx_user_realm;index;not null" json:"realm_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserRealm) TableName() string { return "user_realms" }
