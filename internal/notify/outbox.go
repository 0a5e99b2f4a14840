package notify

import (
	"context"
	"fmt"

	"github.com/zulandar/dealyard/internal/models"
	"gorm.io/gorm"
)

// OutboxSink persists each event as a Notification row for in-app display.
type OutboxSink struct {
	DB *gorm.DB
}

// Name implements Sink.
func (OutboxSink) Name() string { return "outbox" }

// Deliver implements Sink.
func (s OutboxSink) Deliver(ctx context.Context, ev Event) error {
	if ev.Recipient == "" {
		return nil
	}
	n := models.Notification{
		Kind:      string(ev.Kind),
		Recipient: ev.Recipient,
		Subject:   ev.Subject,
		Body:      ev.Body,
		EntityID:  ev.EntityID,
		CreatedAt: ev.At,
	}
	if err := s.DB.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("outbox: save: %w", err)
	}
	return nil
}

// Inbox returns unseen notifications for a recipient, oldest first.
func Inbox(db *gorm.DB, recipient string) ([]models.Notification, error) {
	if recipient == "" {
		return nil, fmt.Errorf("notify: recipient is required")
	}
	var out []models.Notification
	if err := db.Where("recipient = ? AND seen = ?", recipient, false).
		Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("notify: inbox %s: %w", recipient, err)
	}
	return out, nil
}

// MarkSeen flags a notification as seen by its recipient.
func MarkSeen(db *gorm.DB, recipient string, id uint) error {
	result := db.Model(&models.Notification{}).
		Where("id = ? AND recipient = ?", id, recipient).
		Update("seen", true)
	if result.Error != nil {
		return fmt.Errorf("notify: mark seen %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notify: notification not found: %d", id)
	}
	return nil
}
