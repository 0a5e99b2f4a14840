package models

import "time"

// Contract is the binding agreement formed from an accepted offer. UserA is
// the proposal's requester, UserB its counterpart.
type Contract struct {
	ID             string         `gorm:"primaryKey;size:40"`
	ProposalID     string         `gorm:"size:40;not null;index"`
	OfferID        string         `gorm:"size:40;not null;uniqueIndex"`
	UserA          string         `gorm:"size:64;not null;index"`
	UserB          string         `gorm:"size:64;not null;index"`
	SignedDocument string         `gorm:"size:512"`
	Status         ContractStatus `gorm:"size:16;default:signed;index"`
	CurrentStep    int            `gorm:"default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time

	Steps []ContractStep `gorm:"foreignKey:ContractID"`
}

// PartyOf returns the party userID plays on the contract, or "" if none.
func (c *Contract) PartyOf(userID string) Party {
	switch userID {
	case "":
		return ""
	case c.UserA:
		return PartyA
	case c.UserB:
		return PartyB
	}
	return ""
}

// UserFor returns the user standing for party p.
func (c *Contract) UserFor(p Party) string {
	switch p {
	case PartyA:
		return c.UserA
	case PartyB:
		return c.UserB
	}
	return ""
}

// ContractStep is one stage of contract execution requiring bilateral approval.
type ContractStep struct {
	ID         string     `gorm:"primaryKey;size:40"`
	ContractID string     `gorm:"size:40;not null;uniqueIndex:idx_contract_position"`
	Position   int        `gorm:"not null;uniqueIndex:idx_contract_position"`
	Kind       StepKind   `gorm:"size:32;not null"`
	Status     StepStatus `gorm:"size:16;default:pending;index"`
	Files      []string   `gorm:"type:json;serializer:json"` // object keys
	Version    int        `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DecidedAt  *time.Time

	Approvals []ContractStepApproval `gorm:"foreignKey:StepID"`
}

// ContractStepApproval is one party's decision on a step.
type ContractStepApproval struct {
	ID        uint     `gorm:"primaryKey;autoIncrement"`
	StepID    string   `gorm:"size:40;not null;uniqueIndex:idx_step_party"`
	Party     Party    `gorm:"size:1;not null;uniqueIndex:idx_step_party"`
	UserID    string   `gorm:"size:64"`
	Decision  Decision `gorm:"size:16;default:pending"`
	Note      string   `gorm:"type:text"`
	DecidedAt *time.Time
	UpdatedAt time.Time
}

// ContractLog is an append-only audit entry for a proposal and/or contract.
// Only an entry with IsDoneContract set may complete a contract.
type ContractLog struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ContractID     *string   `gorm:"size:40;index"`
	ProposalID     *string   `gorm:"size:40;index"`
	AuthorID       string    `gorm:"size:64;not null"`
	Content        string    `gorm:"type:text"`
	Document       string    `gorm:"size:512"`
	Status         LogStatus `gorm:"size:16;default:pending"`
	Reason         string    `gorm:"type:text"`
	IsDoneContract bool      `gorm:"default:false"`
	Override       bool      `gorm:"default:false"`
	CreatedAt      time.Time
}
