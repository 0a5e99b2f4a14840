// Package offer maintains the offer ledger of a negotiation thread. At most
// one offer per thread is ever accepted; acceptance forms the contract in the
// same transaction.
package offer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/contract"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/ids"
	"github.com/zulandar/dealyard/internal/logging"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/notify"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateOpts holds parameters for a new offer.
type CreateOpts struct {
	Amount   int64 // minor currency units
	Currency string
	Terms    string
}

// Validate checks the offer input before anything is written.
func (o CreateOpts) Validate() error {
	if o.Amount <= 0 {
		return apperr.Validation("offer: create", "amount must be positive, got %d", o.Amount)
	}
	if o.Currency != "" && len(o.Currency) != 3 {
		return apperr.Validation("offer: create", "currency %q must be a 3-letter code", o.Currency)
	}
	return nil
}

// Create records a pending offer on the proposal's thread inside tx. The
// caller has already established that authorID is a party to p.
func Create(tx *gorm.DB, p *models.Proposal, authorID string, opts CreateOpts) (*models.Offer, error) {
	const op = "offer: create"
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if p.Kind == models.KindDemand {
		return nil, apperr.InvalidTransition(op, "demand proposal %s does not take offers", p.ID)
	}
	if p.AcceptedOfferID != nil {
		return nil, apperr.InvalidTransition(op, "proposal %s already accepted offer %s", p.ID, *p.AcceptedOfferID)
	}
	if p.Status.Terminal() {
		return nil, apperr.InvalidTransition(op, "proposal %s is %s", p.ID, p.Status)
	}

	currency := strings.ToUpper(opts.Currency)
	if currency == "" {
		currency = p.Currency
	}
	o := &models.Offer{
		ID:         ids.New(ids.Offer),
		ProposalID: p.ID,
		AuthorID:   authorID,
		Amount:     opts.Amount,
		Currency:   currency,
		Terms:      opts.Terms,
		Status:     models.OfferPending,
	}
	if err := tx.Create(o).Error; err != nil {
		return nil, fmt.Errorf("offer: create on %s: %w", p.ID, err)
	}
	return o, nil
}

// Get returns an offer by ID.
func Get(ctx context.Context, db *gorm.DB, id string) (*models.Offer, error) {
	var o models.Offer
	if err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("offer: get", "offer", id)
		}
		return nil, fmt.Errorf("offer: get %s: %w", id, err)
	}
	return &o, nil
}

// ListByProposal returns the thread's offers in creation order.
func ListByProposal(ctx context.Context, db *gorm.DB, proposalID string) ([]models.Offer, error) {
	var out []models.Offer
	if err := db.WithContext(ctx).Where("proposal_id = ?", proposalID).
		Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("offer: list %s: %w", proposalID, err)
	}
	return out, nil
}

// Service performs ledger decisions and notifies the parties afterwards.
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

// Result is the canonical state after an accept or reject. On failure it
// holds whatever could be reloaded so callers can reconcile.
type Result struct {
	Offer    *models.Offer
	Contract *models.Contract
}

// Accept accepts an offer on behalf of the acting user, rejects the thread's
// other pending offers and forms the contract, all in one transaction.
// Accepting the already accepted offer again returns the existing contract.
func (s *Service) Accept(ctx context.Context, offerID string) (*Result, error) {
	const op = "offer: accept"
	actor := identity.UserID(ctx)
	if actor == "" {
		return s.current(ctx, offerID), apperr.Unauthorized(op, "no acting user")
	}

	var (
		res      Result
		rejected []models.Offer
		proposal models.Proposal
		formed   bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, p, err := load(tx, offerID)
		if err != nil {
			return err
		}
		proposal = *p
		res.Offer = o

		if actor != p.RequesterID && actor != p.CounterpartID {
			return apperr.Unauthorized(op, "user %s is not a party to proposal %s", actor, p.ID)
		}
		if actor == o.AuthorID {
			return apperr.Unauthorized(op, "user %s cannot accept their own offer", actor)
		}

		if o.Status == models.OfferAccepted {
			c, _, err := contract.Form(tx, p, o)
			if err != nil {
				return err
			}
			res.Contract = c
			return nil
		}
		if err := checkOpen(tx, op, p); err != nil {
			return err
		}
		if o.Status == models.OfferRejected {
			return apperr.InvalidTransition(op, "offer %s was rejected", o.ID)
		}

		// Compare-and-set keyed by thread: only one acceptance can ever
		// observe accepted_offer_id IS NULL.
		cas := tx.Model(&models.Proposal{}).
			Where("id = ? AND accepted_offer_id IS NULL AND status IN ?", p.ID,
				[]models.ProposalStatus{models.ProposalNegotiating, models.ProposalContractSigning}).
			Updates(map[string]interface{}{
				"accepted_offer_id": o.ID,
				"status":            models.ProposalContractSigning,
			})
		if cas.Error != nil {
			return fmt.Errorf("offer: claim thread %s: %w", p.ID, cas.Error)
		}
		if cas.RowsAffected == 0 {
			var now models.Proposal
			if err := tx.Where("id = ?", p.ID).First(&now).Error; err != nil {
				return fmt.Errorf("offer: reload proposal %s: %w", p.ID, err)
			}
			if now.AcceptedOfferID != nil {
				return apperr.DuplicateAcceptance(op, "proposal %s already accepted offer %s", p.ID, *now.AcceptedOfferID)
			}
			return apperr.InvalidTransition(op, "proposal %s is %s", p.ID, now.Status)
		}
		p.AcceptedOfferID = &o.ID
		p.Status = models.ProposalContractSigning

		now := time.Now()
		upd := tx.Model(&models.Offer{}).
			Where("id = ? AND status = ?", o.ID, models.OfferPending).
			Updates(map[string]interface{}{
				"status":     models.OfferAccepted,
				"decided_by": actor,
				"decided_at": now,
			})
		if upd.Error != nil {
			return fmt.Errorf("offer: accept %s: %w", o.ID, upd.Error)
		}
		if upd.RowsAffected == 0 {
			return apperr.InvalidTransition(op, "offer %s is no longer pending", o.ID)
		}
		o.Status = models.OfferAccepted
		o.DecidedBy = actor
		o.DecidedAt = &now

		if err := tx.Where("proposal_id = ? AND id <> ? AND status = ?", p.ID, o.ID, models.OfferPending).
			Find(&rejected).Error; err != nil {
			return fmt.Errorf("offer: load siblings of %s: %w", o.ID, err)
		}
		if len(rejected) > 0 {
			if err := tx.Model(&models.Offer{}).
				Where("proposal_id = ? AND id <> ? AND status = ?", p.ID, o.ID, models.OfferPending).
				Updates(map[string]interface{}{
					"status":     models.OfferRejected,
					"decided_by": actor,
					"decided_at": now,
				}).Error; err != nil {
				return fmt.Errorf("offer: reject siblings of %s: %w", o.ID, err)
			}
		}

		c, created, err := contract.Form(tx, p, o)
		if err != nil {
			return err
		}
		res.Contract = c
		formed = created
		return nil
	})
	if err != nil {
		return s.current(ctx, offerID), err
	}

	if formed {
		logging.FromContext(ctx).Info("offer accepted",
			"offer_id", res.Offer.ID, "proposal_id", proposal.ID, "contract_id", res.Contract.ID, "rejected", len(rejected))
		s.Notifier.Notify(ctx, acceptedEvents(&proposal, res.Offer, res.Contract, rejected)...)
	}
	return &res, nil
}

// Reject terminally rejects a pending offer. Either party may reject; an
// already rejected offer is returned unchanged.
func (s *Service) Reject(ctx context.Context, offerID string) (*Result, error) {
	const op = "offer: reject"
	actor := identity.UserID(ctx)
	if actor == "" {
		return s.current(ctx, offerID), apperr.Unauthorized(op, "no acting user")
	}

	var (
		res      Result
		proposal models.Proposal
		changed  bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, p, err := load(tx, offerID)
		if err != nil {
			return err
		}
		proposal = *p
		res.Offer = o

		if actor != p.RequesterID && actor != p.CounterpartID {
			return apperr.Unauthorized(op, "user %s is not a party to proposal %s", actor, p.ID)
		}
		switch o.Status {
		case models.OfferRejected:
			return nil
		case models.OfferAccepted:
			return apperr.InvalidTransition(op, "offer %s is accepted", o.ID)
		}
		if err := checkOpen(tx, op, p); err != nil {
			return err
		}

		now := time.Now()
		upd := tx.Model(&models.Offer{}).
			Where("id = ? AND status = ?", o.ID, models.OfferPending).
			Updates(map[string]interface{}{
				"status":     models.OfferRejected,
				"decided_by": actor,
				"decided_at": now,
			})
		if upd.Error != nil {
			return fmt.Errorf("offer: reject %s: %w", o.ID, upd.Error)
		}
		if upd.RowsAffected == 0 {
			return apperr.InvalidTransition(op, "offer %s is no longer pending", o.ID)
		}
		o.Status = models.OfferRejected
		o.DecidedBy = actor
		o.DecidedAt = &now
		changed = true
		return nil
	})
	if err != nil {
		return s.current(ctx, offerID), err
	}

	if changed {
		logging.FromContext(ctx).Info("offer rejected", "offer_id", res.Offer.ID, "proposal_id", proposal.ID)
		recipient := proposal.RequesterID
		if actor == proposal.RequesterID {
			recipient = proposal.CounterpartID
		}
		s.Notifier.Notify(ctx, rejectedEvent(&proposal, res.Offer, recipient))
	}
	return &res, nil
}

// load reads an offer and locks its proposal, the thread's contended row.
func load(tx *gorm.DB, offerID string) (*models.Offer, *models.Proposal, error) {
	var o models.Offer
	if err := tx.Where("id = ?", offerID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("offer: load", "offer", offerID)
		}
		return nil, nil, fmt.Errorf("offer: load %s: %w", offerID, err)
	}
	var p models.Proposal
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", o.ProposalID).First(&p).Error; err != nil {
		return nil, nil, fmt.Errorf("offer: load proposal %s: %w", o.ProposalID, err)
	}
	return &o, &p, nil
}

// checkOpen refuses ledger changes once the thread is resolved or closed.
func checkOpen(tx *gorm.DB, op string, p *models.Proposal) error {
	if p.AcceptedOfferID != nil {
		c, err := contract.GetByProposal(tx, p.ID)
		if err != nil {
			return err
		}
		if c != nil && c.Status.Terminal() {
			return apperr.InvalidTransition(op, "contract %s is %s", c.ID, c.Status)
		}
		return apperr.DuplicateAcceptance(op, "proposal %s already accepted offer %s", p.ID, *p.AcceptedOfferID)
	}
	if p.Status.Terminal() {
		return apperr.InvalidTransition(op, "proposal %s is %s", p.ID, p.Status)
	}
	return nil
}

// current reloads the offer and its contract for error responses.
func (s *Service) current(ctx context.Context, offerID string) *Result {
	o, err := Get(ctx, s.DB, offerID)
	if err != nil {
		return nil
	}
	res := &Result{Offer: o}
	if c, err := contract.GetByOffer(ctx, s.DB, offerID); err == nil {
		res.Contract = c
	}
	return res
}

func acceptedEvents(p *models.Proposal, o *models.Offer, c *models.Contract, rejected []models.Offer) []notify.Event {
	events := []notify.Event{{
		Kind:       notify.OfferAccepted,
		Recipient:  o.AuthorID,
		Subject:    "Offer accepted",
		Body:       fmt.Sprintf("Offer %s for %s was accepted; contract %s is ready to sign.", o.ID, amount(o), c.ID),
		EntityID:   o.ID,
		ProposalID: p.ID,
		ContractID: c.ID,
	}}
	for i := range rejected {
		events = append(events, rejectedEvent(p, &rejected[i], rejected[i].AuthorID))
	}
	return events
}

func rejectedEvent(p *models.Proposal, o *models.Offer, recipient string) notify.Event {
	return notify.Event{
		Kind:       notify.OfferRejected,
		Recipient:  recipient,
		Subject:    "Offer rejected",
		Body:       fmt.Sprintf("Offer %s for %s was rejected.", o.ID, amount(o)),
		EntityID:   o.ID,
		ProposalID: p.ID,
	}
}

// amount formats minor units as "120.00 USD".
func amount(o *models.Offer) string {
	s := fmt.Sprintf("%d.%02d", o.Amount/100, o.Amount%100)
	if o.Currency != "" {
		s += " " + o.Currency
	}
	return s
}
