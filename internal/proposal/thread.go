package proposal

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/logging"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/offer"
	"gorm.io/gorm"
)

// PostOpts holds the content of a thread message.
type PostOpts struct {
	Body        string
	Attachments []string // object keys
	Offer       *offer.CreateOpts
}

// Validate checks the message input before anything is written.
func (o PostOpts) Validate() error {
	const op = "proposal: post message"
	if strings.TrimSpace(o.Body) == "" && len(o.Attachments) == 0 && o.Offer == nil {
		return apperr.Validation(op, "message needs a body, attachments, or an offer")
	}
	for _, key := range o.Attachments {
		if strings.TrimSpace(key) == "" {
			return apperr.Validation(op, "attachment key is empty")
		}
	}
	if o.Offer != nil {
		return o.Offer.Validate()
	}
	return nil
}

// PostMessage appends a message to the proposal's thread on behalf of the
// acting party. An embedded offer is created in the same transaction. The
// first message on a pending proposal opens negotiation.
func PostMessage(ctx context.Context, db *gorm.DB, proposalID string, opts PostOpts) (*models.NegotiatingMessage, error) {
	const op = "proposal: post message"
	author := identity.UserID(ctx)
	if author == "" {
		return nil, apperr.Unauthorized(op, "no acting user")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var msg models.NegotiatingMessage
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lock(tx, proposalID)
		if err != nil {
			return err
		}
		counterpart, ok := standing(p, author)
		if !ok {
			return apperr.Unauthorized(op, "user %s is not a party to proposal %s", author, p.ID)
		}
		if !acceptsMessages(p) {
			return apperr.InvalidTransition(op, "proposal %s is %s and no longer open for negotiation", p.ID, p.Status)
		}

		updates := map[string]interface{}{"message_seq": gorm.Expr("message_seq + 1")}
		if counterpart != p.CounterpartID {
			updates["counterpart_id"] = counterpart
			p.CounterpartID = counterpart
		}
		if p.Status == models.ProposalPending && p.Kind != models.KindDemand {
			updates["status"] = models.ProposalNegotiating
			p.Status = models.ProposalNegotiating
		}
		if err := tx.Model(&models.Proposal{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("proposal: advance thread %s: %w", p.ID, err)
		}
		var seq int
		if err := tx.Model(&models.Proposal{}).Where("id = ?", p.ID).Select("message_seq").Scan(&seq).Error; err != nil {
			return fmt.Errorf("proposal: read thread seq %s: %w", p.ID, err)
		}

		msg = models.NegotiatingMessage{
			ProposalID:  p.ID,
			Seq:         seq,
			AuthorID:    author,
			Body:        opts.Body,
			Attachments: opts.Attachments,
		}
		if opts.Offer != nil {
			o, err := offer.Create(tx, p, author, *opts.Offer)
			if err != nil {
				return err
			}
			msg.OfferID = &o.ID
			msg.IsPriceOffer = true
			msg.Offer = o
		}
		if err := tx.Omit("Offer").Create(&msg).Error; err != nil {
			return fmt.Errorf("proposal: append message to %s: %w", p.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("message posted", "proposal_id", proposalID, "seq", msg.Seq, "offer", msg.IsPriceOffer)
	return &msg, nil
}

// acceptsMessages reports whether the thread is still open. Demand proposals
// take messages only while pending.
func acceptsMessages(p *models.Proposal) bool {
	switch p.Status {
	case models.ProposalPending, models.ProposalNegotiating:
		return true
	}
	return false
}

// ListMessages returns the thread in order, each message with its offer.
func ListMessages(ctx context.Context, db *gorm.DB, proposalID string) ([]models.NegotiatingMessage, error) {
	if _, err := Get(ctx, db, proposalID); err != nil {
		return nil, err
	}
	var out []models.NegotiatingMessage
	if err := db.WithContext(ctx).Preload("Offer").
		Where("proposal_id = ?", proposalID).
		Order("seq ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("proposal: list messages %s: %w", proposalID, err)
	}
	return out, nil
}
