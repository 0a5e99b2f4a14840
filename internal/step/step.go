// Package step walks a contract through its ordered steps. Each step needs
// an approval from both parties; a rejection cancels the contract unless an
// override log is on file.
package step

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/contract"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/logging"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/notify"
	"github.com/zulandar/dealyard/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxAttempts bounds how often a submission is recomputed after losing a
// version race on the step row.
const maxAttempts = 3

// errVersionConflict signals that another writer bumped the step version
// between read and write.
var errVersionConflict = errors.New("step: version conflict")

// SubmitOpts holds one party's decision on a step.
type SubmitOpts struct {
	Party    models.Party // optional; must match the acting user when set
	Decision models.Decision
	Note     string
}

// Validate checks the submission before anything is read or written.
func (o SubmitOpts) Validate() error {
	const op = "step: submit approval"
	switch o.Decision {
	case models.DecisionApproved, models.DecisionRejected:
	default:
		return apperr.Validation(op, "decision must be approved or rejected, got %q", o.Decision)
	}
	if o.Party != "" && !o.Party.Valid() {
		return apperr.Validation(op, "party must be A or B, got %q", o.Party)
	}
	return nil
}

// Result is the canonical state after a step operation.
type Result struct {
	Step     *models.ContractStep
	Contract *models.Contract
}

// Service applies approvals and attachments to contract steps.
type Service struct {
	DB       *gorm.DB
	Notifier notify.Notifier
	Verifier storage.Verifier // optional
}

// NewService returns a Service. A nil notifier discards events; a nil
// verifier accepts attachment keys unchecked.
func NewService(db *gorm.DB, n notify.Notifier, v storage.Verifier) *Service {
	if n == nil {
		n = notify.Nop{}
	}
	return &Service{DB: db, Notifier: n, Verifier: v}
}

// outcome collects what a committed submission changed, for logging and
// notification after the transaction.
type outcome struct {
	status    models.StepStatus
	cancelled bool
	party     models.Party
}

// SubmitApproval records the acting party's decision on a step and
// recomputes the step under a version compare-and-set. Re-submitting
// overwrites the party's own earlier decision.
func (s *Service) SubmitApproval(ctx context.Context, stepID string, opts SubmitOpts) (*Result, error) {
	const op = "step: submit approval"
	actor := identity.UserID(ctx)
	if actor == "" {
		return s.current(ctx, stepID), apperr.Unauthorized(op, "no acting user")
	}
	if err := opts.Validate(); err != nil {
		return s.current(ctx, stepID), err
	}

	var (
		out models.ContractStep
		c   *models.Contract
		res outcome
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			step, ct, err := loadActive(tx, op, stepID, actor)
			if err != nil {
				return err
			}
			party := ct.PartyOf(actor)
			if opts.Party != "" && opts.Party != party {
				return apperr.Unauthorized(op, "user %s acts as party %s, not %s", actor, party, opts.Party)
			}
			c = ct
			res = outcome{party: party}

			now := time.Now()
			if err := upsertApproval(tx, step.ID, party, actor, opts, now); err != nil {
				return err
			}
			var approvals []models.ContractStepApproval
			if err := tx.Where("step_id = ?", step.ID).Order("party ASC").Find(&approvals).Error; err != nil {
				return fmt.Errorf("step: load approvals %s: %w", step.ID, err)
			}
			res.status = Resolve(approvals)

			updates := map[string]interface{}{
				"status":  res.status,
				"version": gorm.Expr("version + 1"),
			}
			if res.status != models.StepPending {
				updates["decided_at"] = now
			}
			cas := tx.Model(&models.ContractStep{}).
				Where("id = ? AND version = ? AND status = ?", step.ID, step.Version, models.StepPending).
				Updates(updates)
			if cas.Error != nil {
				return fmt.Errorf("step: update %s: %w", step.ID, cas.Error)
			}
			if cas.RowsAffected == 0 {
				return errVersionConflict
			}

			switch res.status {
			case models.StepApproved:
				if err := advance(tx, c, step); err != nil {
					return err
				}
			case models.StepRejected:
				cancelled, err := rejectContract(tx, c, step, party)
				if err != nil {
					return err
				}
				res.cancelled = cancelled
			}

			out = *step
			out.Status = res.status
			out.Version++
			out.Approvals = approvals
			if res.status != models.StepPending {
				out.DecidedAt = &now
			}
			return nil
		})
		if !errors.Is(err, errVersionConflict) {
			break
		}
		logging.FromContext(ctx).Debug("step: retrying after version conflict", "step_id", stepID, "attempt", attempt)
	}
	if errors.Is(err, errVersionConflict) {
		err = apperr.InvalidTransition(op, "step %s kept changing after %d attempts", stepID, maxAttempts)
	}
	if err != nil {
		return s.current(ctx, stepID), err
	}

	logging.FromContext(ctx).Info("step decision recorded",
		"step_id", out.ID, "kind", string(out.Kind), "party", string(res.party),
		"decision", string(opts.Decision), "status", string(res.status), "contract_cancelled", res.cancelled)
	s.Notifier.Notify(ctx, stepEvents(c, &out, res)...)

	full, gerr := contract.Get(ctx, s.DB, c.ID)
	if gerr != nil {
		full = c
	}
	return &Result{Step: &out, Contract: full}, nil
}

// AttachFiles records object keys on the active step. On sign_contract the
// last key becomes the contract's signed document.
func (s *Service) AttachFiles(ctx context.Context, stepID string, keys []string) (*Result, error) {
	const op = "step: attach files"
	actor := identity.UserID(ctx)
	if actor == "" {
		return s.current(ctx, stepID), apperr.Unauthorized(op, "no acting user")
	}
	if len(keys) == 0 {
		return s.current(ctx, stepID), apperr.Validation(op, "at least one file key is required")
	}
	for _, k := range keys {
		if k == "" {
			return s.current(ctx, stepID), apperr.Validation(op, "file key is empty")
		}
	}
	if s.Verifier != nil {
		if err := s.Verifier.Verify(ctx, keys); err != nil {
			return s.current(ctx, stepID), err
		}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		step, c, err := loadActive(tx, op, stepID, actor)
		if err != nil {
			return err
		}
		files := mergeKeys(step.Files, keys)
		cas := tx.Model(&models.ContractStep{ID: step.ID}).
			Where("version = ?", step.Version).
			Select("Files", "Version").
			Updates(&models.ContractStep{Files: files, Version: step.Version + 1})
		if cas.Error != nil {
			return fmt.Errorf("step: attach to %s: %w", step.ID, cas.Error)
		}
		if cas.RowsAffected == 0 {
			return apperr.InvalidTransition(op, "step %s changed concurrently", step.ID)
		}
		if step.Kind == models.StepSignContract {
			if err := tx.Model(&models.Contract{}).Where("id = ?", c.ID).
				Update("signed_document", keys[len(keys)-1]).Error; err != nil {
				return fmt.Errorf("step: set signed document on %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return s.current(ctx, stepID), err
	}
	logging.FromContext(ctx).Info("step files attached", "step_id", stepID, "files", len(keys))
	return s.current(ctx, stepID), nil
}

// Get returns a step with its approvals.
func Get(ctx context.Context, db *gorm.DB, id string) (*models.ContractStep, error) {
	var st models.ContractStep
	err := db.WithContext(ctx).
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("party ASC") }).
		Where("id = ?", id).First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("step: get", "step", id)
		}
		return nil, fmt.Errorf("step: get %s: %w", id, err)
	}
	return &st, nil
}

// Active returns the contract's current step, or nil when no step is open.
func Active(ctx context.Context, db *gorm.DB, contractID string) (*models.ContractStep, error) {
	c, err := contract.Get(ctx, db, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, nil
	}
	for i := range c.Steps {
		if c.Steps[i].Status == models.StepPending {
			return &c.Steps[i], nil
		}
		if c.Steps[i].Status != models.StepApproved {
			return nil, nil
		}
	}
	return nil, nil
}

// loadActive locks the step and its contract and checks that actor may act
// on it now: a party to an open contract, on a pending step whose earlier
// steps are all approved.
func loadActive(tx *gorm.DB, op, stepID, actor string) (*models.ContractStep, *models.Contract, error) {
	var st models.ContractStep
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", stepID).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound(op, "step", stepID)
		}
		return nil, nil, fmt.Errorf("step: load %s: %w", stepID, err)
	}
	c, err := contract.Lock(tx, st.ContractID)
	if err != nil {
		return nil, nil, err
	}
	if c.PartyOf(actor) == "" {
		return nil, nil, apperr.Unauthorized(op, "user %s is not a party to contract %s", actor, c.ID)
	}
	if c.Status.Terminal() {
		return nil, nil, apperr.InvalidTransition(op, "contract %s is %s", c.ID, c.Status)
	}
	if st.Status.Terminal() {
		return nil, nil, apperr.InvalidTransition(op, "step %s is %s", st.ID, st.Status)
	}
	var blocking int64
	if err := tx.Model(&models.ContractStep{}).
		Where("contract_id = ? AND position < ? AND status <> ?", c.ID, st.Position, models.StepApproved).
		Count(&blocking).Error; err != nil {
		return nil, nil, fmt.Errorf("step: check sequence for %s: %w", st.ID, err)
	}
	if blocking > 0 {
		return nil, nil, apperr.InvalidTransition(op, "step %s (%s) is not active; an earlier step is not approved", st.ID, st.Kind)
	}
	return &st, c, nil
}

func upsertApproval(tx *gorm.DB, stepID string, party models.Party, actor string, opts SubmitOpts, now time.Time) error {
	result := tx.Model(&models.ContractStepApproval{}).
		Where("step_id = ? AND party = ?", stepID, party).
		Updates(map[string]interface{}{
			"user_id":    actor,
			"decision":   opts.Decision,
			"note":       opts.Note,
			"decided_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("step: record approval %s/%s: %w", stepID, party, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	a := models.ContractStepApproval{
		StepID:    stepID,
		Party:     party,
		UserID:    actor,
		Decision:  opts.Decision,
		Note:      opts.Note,
		DecidedAt: &now,
	}
	if err := tx.Create(&a).Error; err != nil {
		return fmt.Errorf("step: create approval %s/%s: %w", stepID, party, err)
	}
	return nil
}

// advance moves the contract past an approved step. Approving the first step
// starts the contract; approving the last leaves it awaiting a done log.
func advance(tx *gorm.DB, c *models.Contract, st *models.ContractStep) error {
	if st.Kind == models.StepSignContract && c.Status == models.ContractSigned {
		if err := contract.Start(tx, c); err != nil {
			return err
		}
	}
	if st.Position >= len(models.StepSequence) {
		return nil
	}
	next := st.Position + 1
	if err := tx.Model(&models.Contract{}).
		Where("id = ? AND current_step = ?", c.ID, st.Position).
		Update("current_step", next).Error; err != nil {
		return fmt.Errorf("step: advance contract %s: %w", c.ID, err)
	}
	c.CurrentStep = next
	return nil
}

// rejectContract cancels the contract after a step rejection unless an
// override log exists. It reports whether the contract was cancelled.
func rejectContract(tx *gorm.DB, c *models.Contract, st *models.ContractStep, party models.Party) (bool, error) {
	var overrides int64
	if err := tx.Model(&models.ContractLog{}).
		Where("contract_id = ? AND override = ?", c.ID, true).
		Count(&overrides).Error; err != nil {
		return false, fmt.Errorf("step: check overrides for %s: %w", c.ID, err)
	}
	if overrides > 0 {
		return false, nil
	}
	if err := contract.Cancel(tx, c); err != nil {
		return false, err
	}
	contractID, proposalID := c.ID, c.ProposalID
	entry := models.ContractLog{
		ContractID: &contractID,
		ProposalID: &proposalID,
		AuthorID:   contract.SystemAuthor,
		Content:    fmt.Sprintf("Contract cancelled: step %s rejected by party %s.", st.Kind, party),
		Status:     models.LogCancelled,
		Reason:     "step_rejected",
	}
	if err := tx.Create(&entry).Error; err != nil {
		return false, fmt.Errorf("step: audit cancellation of %s: %w", c.ID, err)
	}
	return true, nil
}

// current reloads the step and its contract for error responses.
func (s *Service) current(ctx context.Context, stepID string) *Result {
	st, err := Get(ctx, s.DB, stepID)
	if err != nil {
		return nil
	}
	res := &Result{Step: st}
	if c, err := contract.Get(ctx, s.DB, st.ContractID); err == nil {
		res.Contract = c
	}
	return res
}

func mergeKeys(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, k := range append(append([]string{}, existing...), added...) {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func stepEvents(c *models.Contract, st *models.ContractStep, res outcome) []notify.Event {
	var events []notify.Event
	switch res.status {
	case models.StepApproved:
		for _, user := range []string{c.UserA, c.UserB} {
			events = append(events, notify.Event{
				Kind:       notify.StepApproved,
				Recipient:  user,
				Subject:    "Step approved",
				Body:       fmt.Sprintf("Both parties approved %s.", st.Kind),
				EntityID:   st.ID,
				ProposalID: c.ProposalID,
				ContractID: c.ID,
			})
		}
	case models.StepRejected:
		other := models.PartyB
		if res.party == models.PartyB {
			other = models.PartyA
		}
		events = append(events, notify.Event{
			Kind:       notify.StepRejected,
			Recipient:  c.UserFor(other),
			Subject:    "Step rejected",
			Body:       fmt.Sprintf("Party %s rejected %s.", res.party, st.Kind),
			EntityID:   st.ID,
			ProposalID: c.ProposalID,
			ContractID: c.ID,
		})
		if res.cancelled {
			for _, user := range []string{c.UserA, c.UserB} {
				events = append(events, notify.Event{
					Kind:       notify.ContractCancelled,
					Recipient:  user,
					Subject:    "Contract cancelled",
					Body:       fmt.Sprintf("Contract %s was cancelled after %s was rejected.", c.ID, st.Kind),
					EntityID:   c.ID,
					ProposalID: c.ProposalID,
					ContractID: c.ID,
				})
			}
		}
	}
	return events
}
