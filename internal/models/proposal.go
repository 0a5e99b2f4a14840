package models

import "time"

// Proposal is an ask raised by a requester toward a counterpart about a
// technology, project, or demand. It is never deleted, only terminalized.
type Proposal struct {
	ID              string         `gorm:"primaryKey;size:40"`
	Kind            ProposalKind   `gorm:"size:16;not null;default:technology"`
	SubjectID       string         `gorm:"size:64;not null;index"`
	Title           string         `gorm:"size:256"`
	Description     string         `gorm:"type:text"`
	Terms           string         `gorm:"type:text"`
	RequesterID     string         `gorm:"size:64;not null;index"`
	CounterpartID   string         `gorm:"size:64;index"`
	Budget          *int64         // minor currency units
	Currency        string         `gorm:"size:3"`
	Status          ProposalStatus `gorm:"size:24;default:pending;index"`
	AcceptedOfferID *string        `gorm:"size:40"`
	MessageSeq      int            `gorm:"default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Messages []NegotiatingMessage `gorm:"foreignKey:ProposalID"`
	Offers   []Offer              `gorm:"foreignKey:ProposalID"`
}

// HasParty reports whether userID is the requester or the recorded
// counterpart.
func (p *Proposal) HasParty(userID string) bool {
	return userID != "" && (userID == p.RequesterID || userID == p.CounterpartID)
}

// NegotiatingMessage is one append-only entry in a proposal's thread.
type NegotiatingMessage struct {
	ID           uint     `gorm:"primaryKey;autoIncrement"`
	ProposalID   string   `gorm:"size:40;not null;uniqueIndex:idx_thread_seq"`
	Seq          int      `gorm:"not null;uniqueIndex:idx_thread_seq"`
	AuthorID     string   `gorm:"size:64;not null"`
	Body         string   `gorm:"type:text"`
	Attachments  []string `gorm:"type:json;serializer:json"` // object keys
	OfferID      *string  `gorm:"size:40"`
	IsPriceOffer bool     `gorm:"default:false"`
	CreatedAt    time.Time

	Offer *Offer `gorm:"foreignKey:OfferID"`
}

// Offer is a priced term set within a thread. At most one offer per thread
// may be accepted.
type Offer struct {
	ID         string      `gorm:"primaryKey;size:40"`
	ProposalID string      `gorm:"size:40;not null;index"`
	AuthorID   string      `gorm:"size:64;not null"`
	Amount     int64       `gorm:"not null"` // minor currency units
	Currency   string      `gorm:"size:3"`
	Terms      string      `gorm:"type:text"`
	Status     OfferStatus `gorm:"size:16;default:pending;index"`
	DecidedBy  string      `gorm:"size:64"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DecidedAt  *time.Time
}
