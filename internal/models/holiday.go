package models

import "time"

// Holiday excludes a date from logging for a whole realm, or only for UserID when set.
type Holiday struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RealmID     uint      `gorm:"index:idx_holiday_realm_date;not null" json:"realm_id"`
	UserID      *uint     `gorm:"index" json:"user_id"`
	Date        string    `gorm:"index:idx_holiday_realm_date;size:10;not null" json:"date"`
	Description string    `gorm:"size:255;not null" json:"description"`
	User        *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedBy   uint      `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Holiday) TableName() string { return "holidays" }
