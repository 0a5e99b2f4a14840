// Package contract forms contracts from accepted offers and owns every
// contract status change that is reflected onto the proposal.
package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/ids"
	"github.com/zulandar/dealyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SystemAuthor is the author recorded on log entries the engine writes itself.
const SystemAuthor = "system"

// Form materializes the contract for an accepted offer inside tx. It is
// idempotent by offer ID: when a contract already exists for the offer it is
// returned with created=false.
func Form(tx *gorm.DB, p *models.Proposal, o *models.Offer) (c *models.Contract, created bool, err error) {
	const op = "contract: form"

	existing, err := findByOffer(tx, o.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if o.Status != models.OfferAccepted {
		return nil, false, apperr.InvalidTransition(op, "offer %s is %s, not accepted", o.ID, o.Status)
	}
	if o.ProposalID != p.ID {
		return nil, false, apperr.Validation(op, "offer %s does not belong to proposal %s", o.ID, p.ID)
	}
	if p.RequesterID == "" || p.CounterpartID == "" {
		return nil, false, apperr.Validation(op, "proposal %s needs both a requester and a counterpart", p.ID)
	}

	c = &models.Contract{
		ID:          ids.New(ids.Contract),
		ProposalID:  p.ID,
		OfferID:     o.ID,
		UserA:       p.RequesterID,
		UserB:       p.CounterpartID,
		Status:      models.ContractSigned,
		CurrentStep: 1,
	}
	if err := tx.Omit(clause.Associations).Create(c).Error; err != nil {
		return nil, false, fmt.Errorf("contract: create for offer %s: %w", o.ID, err)
	}

	for i, kind := range models.StepSequence {
		step := models.ContractStep{
			ID:         ids.New(ids.Step),
			ContractID: c.ID,
			Position:   i + 1,
			Kind:       kind,
			Status:     models.StepPending,
		}
		if err := tx.Omit(clause.Associations).Create(&step).Error; err != nil {
			return nil, false, fmt.Errorf("contract: create step %s: %w", kind, err)
		}
		for _, party := range []models.Party{models.PartyA, models.PartyB} {
			approval := models.ContractStepApproval{
				StepID:   step.ID,
				Party:    party,
				UserID:   c.UserFor(party),
				Decision: models.DecisionPending,
			}
			if err := tx.Create(&approval).Error; err != nil {
				return nil, false, fmt.Errorf("contract: seed approval %s/%s: %w", kind, party, err)
			}
			step.Approvals = append(step.Approvals, approval)
		}
		c.Steps = append(c.Steps, step)
	}
	return c, true, nil
}

// FormForOffer forms (or returns) the contract for an already accepted offer.
// Retrying it never creates a second contract.
func FormForOffer(ctx context.Context, db *gorm.DB, offerID string) (*models.Contract, error) {
	const op = "contract: form"
	var c *models.Contract
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o models.Offer
		if err := tx.Where("id = ?", offerID).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "offer", offerID)
			}
			return fmt.Errorf("contract: load offer %s: %w", offerID, err)
		}
		var p models.Proposal
		if err := tx.Where("id = ?", o.ProposalID).First(&p).Error; err != nil {
			return fmt.Errorf("contract: load proposal %s: %w", o.ProposalID, err)
		}
		formed, _, err := Form(tx, &p, &o)
		if err != nil {
			return err
		}
		c = formed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Get(ctx, db, c.ID)
}

// Get returns a contract with its steps in sequence order and each step's
// approvals.
func Get(ctx context.Context, db *gorm.DB, id string) (*models.Contract, error) {
	var c models.Contract
	err := db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Steps.Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("party ASC") }).
		Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("contract: get", "contract", id)
		}
		return nil, fmt.Errorf("contract: get %s: %w", id, err)
	}
	return &c, nil
}

// GetByOffer returns the contract formed from offerID.
func GetByOffer(ctx context.Context, db *gorm.DB, offerID string) (*models.Contract, error) {
	c, err := findByOffer(db.WithContext(ctx), offerID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("contract: get", "contract for offer", offerID)
	}
	return Get(ctx, db, c.ID)
}

// GetByProposal returns the contract formed under proposalID, or nil when the
// proposal has none.
func GetByProposal(tx *gorm.DB, proposalID string) (*models.Contract, error) {
	var c models.Contract
	result := tx.Where("proposal_id = ?", proposalID).Limit(1).Find(&c)
	if result.Error != nil {
		return nil, fmt.Errorf("contract: find by proposal %s: %w", proposalID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &c, nil
}

// ListFilters holds optional filters for listing contracts.
type ListFilters struct {
	UserID string
	Status models.ContractStatus
}

// List returns contracts matching the filters, newest first.
func List(ctx context.Context, db *gorm.DB, filters ListFilters) ([]models.Contract, error) {
	q := db.WithContext(ctx).Model(&models.Contract{})
	if filters.UserID != "" {
		q = q.Where("user_a = ? OR user_b = ?", filters.UserID, filters.UserID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	var out []models.Contract
	if err := q.Order("created_at DESC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("contract: list: %w", err)
	}
	return out, nil
}

// Lock loads a contract for update inside tx.
func Lock(tx *gorm.DB, id string) (*models.Contract, error) {
	var c models.Contract
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("contract: lock", "contract", id)
		}
		return nil, fmt.Errorf("contract: lock %s: %w", id, err)
	}
	return &c, nil
}

func findByOffer(tx *gorm.DB, offerID string) (*models.Contract, error) {
	var c models.Contract
	result := tx.Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Steps.Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("party ASC") }).
		Where("offer_id = ?", offerID).Limit(1).Find(&c)
	if result.Error != nil {
		return nil, fmt.Errorf("contract: find by offer %s: %w", offerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &c, nil
}

// compareAndSetStatus moves the contract from one of the allowed statuses to
// to. It reports false when the contract was no longer in an allowed status.
func compareAndSetStatus(tx *gorm.DB, c *models.Contract, to models.ContractStatus, from []models.ContractStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	result := tx.Model(&models.Contract{}).
		Where("id = ? AND status IN ?", c.ID, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("contract: set %s status %s: %w", c.ID, to, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	c.Status = to
	return true, nil
}

// Start moves a signed contract to in_progress once its first step is approved.
func Start(tx *gorm.DB, c *models.Contract) error {
	ok, err := compareAndSetStatus(tx, c, models.ContractInProgress, []models.ContractStatus{models.ContractSigned}, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidTransition("contract: start", "contract %s is not signed", c.ID)
	}
	return Mirror(tx, c, models.ContractInProgress)
}

// Complete moves the contract to completed. Every step must be approved.
func Complete(tx *gorm.DB, c *models.Contract) error {
	const op = "contract: complete"
	var open int64
	if err := tx.Model(&models.ContractStep{}).
		Where("contract_id = ? AND status <> ?", c.ID, models.StepApproved).
		Count(&open).Error; err != nil {
		return fmt.Errorf("contract: count open steps %s: %w", c.ID, err)
	}
	if open > 0 {
		return apperr.InvalidTransition(op, "contract %s has %d step(s) not approved", c.ID, open)
	}

	now := time.Now()
	ok, err := compareAndSetStatus(tx, c, models.ContractCompleted,
		[]models.ContractStatus{models.ContractSigned, models.ContractInProgress},
		map[string]interface{}{"completed_at": now})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidTransition(op, "contract %s is %s", c.ID, c.Status)
	}
	c.CompletedAt = &now
	return Mirror(tx, c, models.ContractCompleted)
}

// Cancel terminalizes the contract, cancelling every step still pending.
func Cancel(tx *gorm.DB, c *models.Contract) error {
	ok, err := compareAndSetStatus(tx, c, models.ContractCancelled,
		[]models.ContractStatus{models.ContractSigned, models.ContractInProgress}, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidTransition("contract: cancel", "contract %s is %s", c.ID, c.Status)
	}
	if err := tx.Model(&models.ContractStep{}).
		Where("contract_id = ? AND status = ?", c.ID, models.StepPending).
		Updates(map[string]interface{}{
			"status":  models.StepCancelled,
			"version": gorm.Expr("version + 1"),
		}).Error; err != nil {
		return fmt.Errorf("contract: cancel steps %s: %w", c.ID, err)
	}
	return Mirror(tx, c, models.ContractCancelled)
}

// mirrored maps a contract status to the proposal status it implies.
var mirrored = map[models.ContractStatus]models.ProposalStatus{
	models.ContractInProgress: models.ProposalContractSigned,
	models.ContractCompleted:  models.ProposalCompleted,
	models.ContractCancelled:  models.ProposalCancelled,
}

// Mirror reflects a contract status onto its proposal. It is the only place
// a contract changes proposal status after formation. Terminal proposals are
// left untouched.
func Mirror(tx *gorm.DB, c *models.Contract, status models.ContractStatus) error {
	to, ok := mirrored[status]
	if !ok {
		return nil
	}
	terminal := []models.ProposalStatus{models.ProposalCompleted, models.ProposalCancelled}
	if err := tx.Model(&models.Proposal{}).
		Where("id = ? AND status NOT IN ?", c.ProposalID, terminal).
		Update("status", to).Error; err != nil {
		return fmt.Errorf("contract: mirror %s onto proposal %s: %w", status, c.ProposalID, err)
	}
	return nil
}
