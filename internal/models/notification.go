package models

import "time"

// Notification is an outbox row recording a lifecycle event for a recipient.
type Notification struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"size:32;not null;index"`
	Recipient string `gorm:"size:64;not null;index"`
	Subject   string `gorm:"size:256"`
	Body      string `gorm:"type:text"`
	EntityID  string `gorm:"size:40"`
	Seen      bool   `gorm:"default:false;index"`
	CreatedAt time.Time
}
