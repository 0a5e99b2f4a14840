// Package contractlog appends audit entries to proposals and contracts. A
// done entry is the only way a contract becomes completed; a cancelled entry
// terminalizes the contract and its proposal regardless of step state.
package contractlog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/contract"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/logging"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/notify"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendOpts holds the content of a log entry. At least one of ContractID
// and ProposalID is required.
type AppendOpts struct {
	ContractID     string
	ProposalID     string
	Content        string
	Document       string
	Status         models.LogStatus // defaults to pending
	Reason         string
	IsDoneContract bool
	Override       bool // keeps the contract open when a step is rejected
}

// Validate checks the entry before anything is read or written.
func (o *AppendOpts) Validate() error {
	const op = "contractlog: append"
	if o.ContractID == "" && o.ProposalID == "" {
		return apperr.Validation(op, "contract or proposal is required")
	}
	if o.Status == "" {
		o.Status = models.LogPending
	}
	if !o.Status.Valid() {
		return apperr.Validation(op, "unknown status %q", o.Status)
	}
	if strings.TrimSpace(o.Content) == "" && strings.TrimSpace(o.Reason) == "" {
		return apperr.Validation(op, "content or reason is required")
	}
	if o.IsDoneContract {
		if o.ContractID == "" {
			return apperr.Validation(op, "a done entry needs a contract")
		}
		if o.Status == models.LogCancelled {
			return apperr.Validation(op, "a done entry cannot be cancelled")
		}
		o.Status = models.LogCompleted
	}
	if o.Override && o.ContractID == "" {
		return apperr.Validation(op, "an override needs a contract")
	}
	return nil
}

// Result is the canonical state after an append.
type Result struct {
	Log      *models.ContractLog
	Contract *models.Contract
	Proposal *models.Proposal
}

// Service appends log entries and applies their terminal effects.
type Service struct {
	DB       *gorm.DB
	Notifier notify.Notifier
}

// NewService returns a Service. A nil notifier discards events.
func NewService(db *gorm.DB, n notify.Notifier) *Service {
	if n == nil {
		n = notify.Nop{}
	}
	return &Service{DB: db, Notifier: n}
}

// Append records an entry on behalf of the acting party. Terminal effects
// and the entry itself commit together or not at all.
func (s *Service) Append(ctx context.Context, opts AppendOpts) (*Result, error) {
	const op = "contractlog: append"
	actor := identity.UserID(ctx)
	if actor == "" {
		return s.current(ctx, opts), apperr.Unauthorized(op, "no acting user")
	}
	if err := opts.Validate(); err != nil {
		return s.current(ctx, opts), err
	}

	var (
		entry     models.ContractLog
		c         *models.Contract
		p         *models.Proposal
		completed bool
		cancelled bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, p, err = resolve(tx, op, opts)
		if err != nil {
			return err
		}
		if !isParty(actor, c, p) {
			return apperr.Unauthorized(op, "user %s has no standing on this log", actor)
		}

		switch {
		case opts.IsDoneContract:
			if err := contract.Complete(tx, c); err != nil {
				return err
			}
			completed = true
		case opts.Status == models.LogCancelled && c != nil:
			if err := contract.Cancel(tx, c); err != nil {
				return err
			}
			cancelled = true
		case opts.Status == models.LogCancelled:
			if err := cancelProposal(tx, op, p); err != nil {
				return err
			}
			cancelled = true
		}

		entry = models.ContractLog{
			AuthorID:       actor,
			Content:        opts.Content,
			Document:       opts.Document,
			Status:         opts.Status,
			Reason:         opts.Reason,
			IsDoneContract: opts.IsDoneContract,
			Override:       opts.Override,
		}
		if c != nil {
			entry.ContractID = &c.ID
		}
		if p != nil {
			entry.ProposalID = &p.ID
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("contractlog: create: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.current(ctx, opts), err
	}

	res := s.current(ctx, opts)
	if res == nil {
		res = &Result{Contract: c, Proposal: p}
	}
	res.Log = &entry

	logger := logging.FromContext(ctx)
	switch {
	case completed:
		logger.Info("contract completed", "contract_id", c.ID, "log_id", entry.ID)
		s.Notifier.Notify(ctx, terminalEvents(notify.ContractCompleted, c, p, "completed")...)
	case cancelled:
		logger.Info("cancelled by log", "contract_id", idOf(c), "proposal_id", p.ID, "log_id", entry.ID)
		s.Notifier.Notify(ctx, terminalEvents(notify.ContractCancelled, c, p, "cancelled")...)
	default:
		logger.Debug("log appended", "log_id", entry.ID)
	}
	return res, nil
}

// List returns log entries for a contract or proposal, oldest first.
func List(ctx context.Context, db *gorm.DB, contractID, proposalID string) ([]models.ContractLog, error) {
	if contractID == "" && proposalID == "" {
		return nil, apperr.Validation("contractlog: list", "contract or proposal is required")
	}
	q := db.WithContext(ctx).Model(&models.ContractLog{})
	if contractID != "" {
		q = q.Where("contract_id = ?", contractID)
	}
	if proposalID != "" {
		q = q.Where("proposal_id = ?", proposalID)
	}
	var out []models.ContractLog
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("contractlog: list: %w", err)
	}
	return out, nil
}

// resolve locks the referenced contract and proposal. A proposal-only entry
// on a proposal that already has a contract is attached to that contract.
func resolve(tx *gorm.DB, op string, opts AppendOpts) (*models.Contract, *models.Proposal, error) {
	var c *models.Contract
	proposalID := opts.ProposalID
	if opts.ContractID != "" {
		var err error
		if c, err = contract.Lock(tx, opts.ContractID); err != nil {
			return nil, nil, err
		}
		if proposalID != "" && proposalID != c.ProposalID {
			return nil, nil, apperr.Validation(op, "contract %s does not belong to proposal %s", c.ID, proposalID)
		}
		proposalID = c.ProposalID
	}

	var p models.Proposal
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", proposalID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound(op, "proposal", proposalID)
		}
		return nil, nil, fmt.Errorf("contractlog: load proposal %s: %w", proposalID, err)
	}

	if c == nil && p.AcceptedOfferID != nil {
		found, err := contract.GetByProposal(tx, p.ID)
		if err != nil {
			return nil, nil, err
		}
		if found != nil {
			if c, err = contract.Lock(tx, found.ID); err != nil {
				return nil, nil, err
			}
		}
	}
	return c, &p, nil
}

func cancelProposal(tx *gorm.DB, op string, p *models.Proposal) error {
	if p.Status.Terminal() {
		return apperr.InvalidTransition(op, "proposal %s is %s", p.ID, p.Status)
	}
	if !p.Kind.CanTransition(p.Status, models.ProposalCancelled) {
		return apperr.InvalidTransition(op, "%s proposal %s cannot be cancelled from %s", p.Kind, p.ID, p.Status)
	}
	result := tx.Model(&models.Proposal{}).
		Where("id = ? AND status = ?", p.ID, p.Status).
		Update("status", models.ProposalCancelled)
	if result.Error != nil {
		return fmt.Errorf("contractlog: cancel proposal %s: %w", p.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.InvalidTransition(op, "proposal %s changed concurrently", p.ID)
	}
	p.Status = models.ProposalCancelled
	return nil
}

func isParty(actor string, c *models.Contract, p *models.Proposal) bool {
	if c != nil {
		return c.PartyOf(actor) != ""
	}
	return actor == p.RequesterID || (p.CounterpartID != "" && actor == p.CounterpartID)
}

// current reloads the referenced entities for responses.
func (s *Service) current(ctx context.Context, opts AppendOpts) *Result {
	res := &Result{}
	proposalID := opts.ProposalID
	if opts.ContractID != "" {
		if c, err := contract.Get(ctx, s.DB, opts.ContractID); err == nil {
			res.Contract = c
			proposalID = c.ProposalID
		}
	}
	if proposalID != "" {
		var p models.Proposal
		if err := s.DB.WithContext(ctx).Where("id = ?", proposalID).First(&p).Error; err == nil {
			res.Proposal = &p
		}
	}
	if res.Contract == nil && res.Proposal == nil {
		return nil
	}
	return res
}

func terminalEvents(kind notify.Kind, c *models.Contract, p *models.Proposal, verb string) []notify.Event {
	users := []string{p.RequesterID, p.CounterpartID}
	entity, subject := p.ID, "Proposal "+verb
	body := fmt.Sprintf("Proposal %s was %s.", p.ID, verb)
	contractID := ""
	if c != nil {
		users = []string{c.UserA, c.UserB}
		entity, subject, contractID = c.ID, "Contract "+verb, c.ID
		body = fmt.Sprintf("Contract %s was %s.", c.ID, verb)
	}
	var events []notify.Event
	for _, u := range users {
		if u == "" {
			continue
		}
		events = append(events, notify.Event{
			Kind:       kind,
			Recipient:  u,
			Subject:    subject,
			Body:       body,
			EntityID:   entity,
			ProposalID: p.ID,
			ContractID: contractID,
		})
	}
	return events
}

func idOf(c *models.Contract) string {
	if c == nil {
		return ""
	}
	return c.ID
}
