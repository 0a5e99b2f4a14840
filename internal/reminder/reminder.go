// Package reminder nudges parties whose approval on an active step has been
// outstanding for too long.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/dealyard/internal/config"
	"github.com/zulandar/dealyard/internal/logging"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/notify"
	"gorm.io/gorm"
)

// Stale is an active step still waiting on at least one party.
type Stale struct {
	ContractID string
	ProposalID string
	Step       models.ContractStep
	Waiting    []string // user IDs whose decision is pending
	Since      time.Time
}

// Scan returns the active steps of open contracts that have been waiting
// longer than staleAfter as of now.
func Scan(ctx context.Context, db *gorm.DB, staleAfter time.Duration, now time.Time) ([]Stale, error) {
	var contracts []models.Contract
	err := db.WithContext(ctx).
		Where("status IN ?", []models.ContractStatus{models.ContractSigned, models.ContractInProgress}).
		Preload("Steps", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Preload("Steps.Approvals").
		Order("created_at ASC").
		Find(&contracts).Error
	if err != nil {
		return nil, fmt.Errorf("reminder: scan: %w", err)
	}

	var out []Stale
	for i := range contracts {
		c := &contracts[i]
		st, ok := activeStep(c)
		if !ok || st.Status != models.StepPending {
			continue
		}
		since := activeSince(c, st)
		if now.Sub(since) < staleAfter {
			continue
		}
		var waiting []string
		for _, a := range st.Approvals {
			if a.Decision == models.DecisionPending {
				waiting = append(waiting, c.UserFor(a.Party))
			}
		}
		if len(waiting) == 0 {
			continue
		}
		out = append(out, Stale{
			ContractID: c.ID,
			ProposalID: c.ProposalID,
			Step:       *st,
			Waiting:    waiting,
			Since:      since,
		})
	}
	return out, nil
}

// Remind scans once and sends a step.reminder to every waiting party. It
// returns the number of events sent.
func Remind(ctx context.Context, db *gorm.DB, n notify.Notifier, staleAfter time.Duration, now time.Time) (int, error) {
	stale, err := Scan(ctx, db, staleAfter, now)
	if err != nil {
		return 0, err
	}
	var events []notify.Event
	for _, s := range stale {
		waited := now.Sub(s.Since).Truncate(time.Hour)
		for _, u := range s.Waiting {
			events = append(events, notify.Event{
				Kind:       notify.StepReminder,
				Recipient:  u,
				Subject:    fmt.Sprintf("Step %d awaits your decision", s.Step.Position),
				Body:       fmt.Sprintf("Step %s (%s) on contract %s has been waiting %s.", s.Step.ID, s.Step.Kind, s.ContractID, waited),
				EntityID:   s.Step.ID,
				ProposalID: s.ProposalID,
				ContractID: s.ContractID,
			})
		}
	}
	if len(events) > 0 {
		n.Notify(ctx, events...)
	}
	logging.FromContext(ctx).Info("reminders sent", "steps", len(stale), "events", len(events))
	return len(events), nil
}

// Run fires Remind on schedule until ctx is cancelled.
func Run(ctx context.Context, db *gorm.DB, n notify.Notifier, schedule string, staleAfter time.Duration) error {
	sched, err := config.CronParser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("reminder: schedule %q: %w", schedule, err)
	}
	logger := logging.FromContext(ctx)
	logger.Info("reminder scheduler started", "schedule", schedule, "stale_after", staleAfter)

	timer := time.NewTimer(nextDuration(sched, time.Now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("reminder scheduler stopped")
			return nil
		case now := <-timer.C:
			if _, err := Remind(ctx, db, n, staleAfter, now); err != nil {
				logger.Error("reminder run failed", "error", err)
			}
			timer.Reset(nextDuration(sched, time.Now()))
		}
	}
}

// nextDuration returns the wait until the schedule next fires after now.
func nextDuration(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func activeStep(c *models.Contract) (*models.ContractStep, bool) {
	for i := range c.Steps {
		if c.Steps[i].Position == c.CurrentStep {
			return &c.Steps[i], true
		}
	}
	return nil, false
}

// activeSince is when the step became actionable: contract formation for the
// first step, the previous step's decision for the others.
func activeSince(c *models.Contract, st *models.ContractStep) time.Time {
	since := c.CreatedAt
	for i := range c.Steps {
		prev := &c.Steps[i]
		if prev.Position == st.Position-1 && prev.DecidedAt != nil {
			since = *prev.DecidedAt
		}
	}
	return since
}
