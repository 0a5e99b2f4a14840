// Package proposal manages proposals and their negotiation threads.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/ids"
	"github.com/zulandar/dealyard/internal/logging"
	"github.com/zulandar/dealyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateOpts holds parameters for creating a new proposal. The requester is
// the acting user.
type CreateOpts struct {
	Kind          models.ProposalKind // technology, project, demand
	SubjectID     string
	CounterpartID string // may be empty; derived from the first reply
	Title         string
	Description   string
	Terms         string
	Budget        *int64 // minor currency units
	Currency      string
}

// ListFilters holds optional filters for listing proposals.
type ListFilters struct {
	UserID string // requester or counterpart
	Status models.ProposalStatus
	Kind   models.ProposalKind
}

// Create creates a pending proposal raised by the acting user.
func Create(ctx context.Context, db *gorm.DB, opts CreateOpts) (*models.Proposal, error) {
	const op = "proposal: create"
	requester := identity.UserID(ctx)
	if requester == "" {
		return nil, apperr.Validation(op, "requester is required")
	}
	if strings.TrimSpace(opts.SubjectID) == "" {
		return nil, apperr.Validation(op, "subject is required")
	}
	if opts.Kind == "" {
		opts.Kind = models.KindTechnology
	}
	if !opts.Kind.Valid() {
		return nil, apperr.Validation(op, "unknown kind %q", opts.Kind)
	}
	if opts.CounterpartID == requester {
		return nil, apperr.Validation(op, "counterpart must differ from requester")
	}
	if opts.Budget != nil && *opts.Budget < 0 {
		return nil, apperr.Validation(op, "budget must not be negative")
	}
	if opts.Currency != "" && len(opts.Currency) != 3 {
		return nil, apperr.Validation(op, "currency %q must be a 3-letter code", opts.Currency)
	}

	p := models.Proposal{
		ID:            ids.New(ids.Proposal),
		Kind:          opts.Kind,
		SubjectID:     opts.SubjectID,
		Title:         opts.Title,
		Description:   opts.Description,
		Terms:         opts.Terms,
		RequesterID:   requester,
		CounterpartID: opts.CounterpartID,
		Budget:        opts.Budget,
		Currency:      strings.ToUpper(opts.Currency),
		Status:        models.ProposalPending,
	}
	if err := db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("proposal: create: %w", err)
	}
	logging.FromContext(ctx).Info("proposal created", "proposal_id", p.ID, "kind", string(p.Kind))
	return &p, nil
}

// Get returns a proposal by ID.
func Get(ctx context.Context, db *gorm.DB, id string) (*models.Proposal, error) {
	var p models.Proposal
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("proposal: get", "proposal", id)
		}
		return nil, fmt.Errorf("proposal: get %s: %w", id, err)
	}
	return &p, nil
}

// List returns proposals matching the filters, newest first.
func List(ctx context.Context, db *gorm.DB, filters ListFilters) ([]models.Proposal, error) {
	q := db.WithContext(ctx).Model(&models.Proposal{})
	if filters.UserID != "" {
		q = q.Where("requester_id = ? OR counterpart_id = ?", filters.UserID, filters.UserID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Kind != "" {
		q = q.Where("kind = ?", filters.Kind)
	}
	var out []models.Proposal
	if err := q.Order("created_at DESC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("proposal: list: %w", err)
	}
	return out, nil
}

// Transition moves a proposal along a legal edge on behalf of the acting
// party. An illegal edge leaves the proposal unchanged and returns it with
// the error.
func Transition(ctx context.Context, db *gorm.DB, id string, to models.ProposalStatus) (*models.Proposal, error) {
	const op = "proposal: transition"
	actor := identity.UserID(ctx)

	var out models.Proposal
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lock(tx, id)
		if err != nil {
			return err
		}
		out = *p

		if actor == "" {
			return apperr.Unauthorized(op, "no acting user")
		}
		counterpart, ok := standing(p, actor)
		if !ok {
			return apperr.Unauthorized(op, "user %s is not a party to proposal %s", actor, p.ID)
		}
		if !p.Kind.CanTransition(p.Status, to) {
			return apperr.InvalidTransition(op, "%s proposal %s cannot move from %s to %s", p.Kind, p.ID, p.Status, to)
		}
		if p.Kind == models.KindDemand && actor == p.RequesterID {
			return apperr.Unauthorized(op, "only the counterpart may answer demand %s", p.ID)
		}
		if to == models.ProposalContractSigning || to == models.ProposalContractSigned {
			return apperr.InvalidTransition(op, "proposal %s enters %s only through offer acceptance and its contract", p.ID, to)
		}
		if to == models.ProposalCancelled && p.AcceptedOfferID != nil {
			return apperr.InvalidTransition(op, "proposal %s has a contract; cancel it with a contract log", p.ID)
		}

		updates := map[string]interface{}{"status": to}
		if counterpart != p.CounterpartID {
			updates["counterpart_id"] = counterpart
		}
		result := tx.Model(&models.Proposal{}).
			Where("id = ? AND status = ?", p.ID, p.Status).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("proposal: transition %s: %w", p.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.InvalidTransition(op, "proposal %s changed concurrently", p.ID)
		}
		out.Status = to
		out.CounterpartID = counterpart
		return nil
	})
	if err != nil {
		if cur, gerr := Get(ctx, db, id); gerr == nil {
			return cur, err
		}
		return nil, err
	}
	logging.FromContext(ctx).Info("proposal transitioned", "proposal_id", id, "status", string(to))
	return &out, nil
}

// lock loads a proposal for update inside tx.
func lock(tx *gorm.DB, id string) (*models.Proposal, error) {
	var p models.Proposal
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("proposal: lock", "proposal", id)
		}
		return nil, fmt.Errorf("proposal: lock %s: %w", id, err)
	}
	return &p, nil
}

// standing reports whether actor may act on p, returning the counterpart
// after derivation: with no counterpart recorded, the first user other than
// the requester to act becomes it.
func standing(p *models.Proposal, actor string) (counterpart string, ok bool) {
	switch {
	case actor == p.RequesterID:
		return p.CounterpartID, true
	case p.CounterpartID == "":
		return actor, true
	case actor == p.CounterpartID:
		return p.CounterpartID, true
	}
	return p.CounterpartID, false
}
