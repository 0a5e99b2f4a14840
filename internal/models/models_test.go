package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestProposal_Fields(t *testing.T) {
	typ := reflect.TypeOf(Proposal{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:40")
	assertGormTag(t, typ, "Kind", "default:technology")
	assertGormTag(t, typ, "SubjectID", "not null")
	assertGormTag(t, typ, "RequesterID", "not null")
	assertGormTag(t, typ, "RequesterID", "index")
	assertGormTag(t, typ, "CounterpartID", "index")
	assertGormTag(t, typ, "Status", "default:pending")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "AcceptedOfferID", "size:40")
	assertGormTag(t, typ, "Description", "type:text")

	assertFieldType(t, typ, "Kind", "models.ProposalKind")
	assertFieldType(t, typ, "Status", "models.ProposalStatus")
	assertFieldType(t, typ, "Budget", "*int64")
	assertFieldType(t, typ, "AcceptedOfferID", "*string")
	assertFieldType(t, typ, "MessageSeq", "int")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
}

func TestProposal_Relations(t *testing.T) {
	typ := reflect.TypeOf(Proposal{})

	assertGormTag(t, typ, "Messages", "foreignKey:ProposalID")
	assertGormTag(t, typ, "Offers", "foreignKey:ProposalID")

	assertFieldType(t, typ, "Messages", "[]models.NegotiatingMessage")
	assertFieldType(t, typ, "Offers", "[]models.Offer")
}

func TestNegotiatingMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(NegotiatingMessage{})

	assertGormTag(t, typ, "ID", "autoIncrement")
	// Composite unique index orders the thread.
	assertGormTag(t, typ, "ProposalID", "uniqueIndex:idx_thread_seq")
	assertGormTag(t, typ, "Seq", "uniqueIndex:idx_thread_seq")
	assertGormTag(t, typ, "AuthorID", "not null")
	assertGormTag(t, typ, "Attachments", "serializer:json")
	assertGormTag(t, typ, "Offer", "foreignKey:OfferID")

	assertFieldType(t, typ, "OfferID", "*string")
	assertFieldType(t, typ, "IsPriceOffer", "bool")
	assertFieldType(t, typ, "Attachments", "[]string")
}

func TestOffer_Fields(t *testing.T) {
	typ := reflect.TypeOf(Offer{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ProposalID", "index")
	assertGormTag(t, typ, "Amount", "not null")
	assertGormTag(t, typ, "Status", "default:pending")

	assertFieldType(t, typ, "Amount", "int64")
	assertFieldType(t, typ, "Status", "models.OfferStatus")
	assertFieldType(t, typ, "DecidedAt", "*time.Time")
}

func TestContract_Fields(t *testing.T) {
	typ := reflect.TypeOf(Contract{})

	assertGormTag(t, typ, "ID", "primaryKey")
	// One contract per accepted offer.
	assertGormTag(t, typ, "OfferID", "uniqueIndex")
	assertGormTag(t, typ, "UserA", "not null")
	assertGormTag(t, typ, "UserB", "not null")
	assertGormTag(t, typ, "Status", "default:signed")
	assertGormTag(t, typ, "CurrentStep", "default:1")
	assertGormTag(t, typ, "Steps", "foreignKey:ContractID")

	assertFieldType(t, typ, "Status", "models.ContractStatus")
	assertFieldType(t, typ, "Steps", "[]models.ContractStep")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
}

func TestContractStep_Fields(t *testing.T) {
	typ := reflect.TypeOf(ContractStep{})

	assertGormTag(t, typ, "ContractID", "uniqueIndex:idx_contract_position")
	assertGormTag(t, typ, "Position", "uniqueIndex:idx_contract_position")
	assertGormTag(t, typ, "Kind", "not null")
	assertGormTag(t, typ, "Status", "default:pending")
	assertGormTag(t, typ, "Files", "serializer:json")
	assertGormTag(t, typ, "Version", "not null")
	assertGormTag(t, typ, "Approvals", "foreignKey:StepID")

	assertFieldType(t, typ, "Kind", "models.StepKind")
	assertFieldType(t, typ, "Version", "int")
	assertFieldType(t, typ, "Files", "[]string")
	assertFieldType(t, typ, "Approvals", "[]models.ContractStepApproval")
}

func TestContractStepApproval_Fields(t *testing.T) {
	typ := reflect.TypeOf(ContractStepApproval{})

	// One approval row per party per step.
	assertGormTag(t, typ, "StepID", "uniqueIndex:idx_step_party")
	assertGormTag(t, typ, "Party", "uniqueIndex:idx_step_party")
	assertGormTag(t, typ, "Party", "size:1")
	assertGormTag(t, typ, "Decision", "default:pending")

	assertFieldType(t, typ, "Party", "models.Party")
	assertFieldType(t, typ, "Decision", "models.Decision")
	assertFieldType(t, typ, "DecidedAt", "*time.Time")
}

func TestContractLog_Fields(t *testing.T) {
	typ := reflect.TypeOf(ContractLog{})

	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "ContractID", "index")
	assertGormTag(t, typ, "ProposalID", "index")
	assertGormTag(t, typ, "AuthorID", "not null")
	assertGormTag(t, typ, "Status", "default:pending")
	assertGormTag(t, typ, "IsDoneContract", "default:false")

	assertFieldType(t, typ, "ContractID", "*string")
	assertFieldType(t, typ, "ProposalID", "*string")
	assertFieldType(t, typ, "IsDoneContract", "bool")
	assertFieldType(t, typ, "Override", "bool")
}

func TestNotification_Fields(t *testing.T) {
	typ := reflect.TypeOf(Notification{})

	assertGormTag(t, typ, "Kind", "index")
	assertGormTag(t, typ, "Recipient", "not null")
	assertGormTag(t, typ, "Subject", "size:256")
	assertGormTag(t, typ, "Seen", "default:false")
}

func TestProposal_Instantiation(t *testing.T) {
	budget := int64(150000)
	offerID := "off-1"
	now := time.Now()
	p := Proposal{
		ID:              "prp-abc",
		Kind:            KindTechnology,
		SubjectID:       "tech-42",
		RequesterID:     "alice",
		CounterpartID:   "bob",
		Budget:          &budget,
		Currency:        "USD",
		Status:          ProposalContractSigning,
		AcceptedOfferID: &offerID,
		CreatedAt:       now,
	}
	if *p.Budget != 150000 {
		t.Errorf("Budget = %d, want 150000", *p.Budget)
	}
	if *p.AcceptedOfferID != "off-1" {
		t.Errorf("AcceptedOfferID = %q, want %q", *p.AcceptedOfferID, "off-1")
	}
}

func TestProposal_HasParty(t *testing.T) {
	p := Proposal{RequesterID: "alice", CounterpartID: "bob"}
	if !p.HasParty("alice") || !p.HasParty("bob") {
		t.Error("requester and counterpart should be parties")
	}
	if p.HasParty("mallory") || p.HasParty("") {
		t.Error("stranger or anonymous should not be a party")
	}
	open := Proposal{RequesterID: "alice"}
	if open.HasParty("") {
		t.Error("empty counterpart must not match anonymous")
	}
}

func TestContractLog_Instantiation(t *testing.T) {
	cid := "ctr-1"
	l := ContractLog{
		ContractID:     &cid,
		AuthorID:       "alice",
		Content:        "all deliverables received",
		Status:         LogCompleted,
		IsDoneContract: true,
	}
	if l.ProposalID != nil {
		t.Error("ProposalID should be nil when unset")
	}
	if !l.IsDoneContract {
		t.Error("IsDoneContract = false, want true")
	}
}
