package models

import "testing"

func TestProposalKind_CanTransition(t *testing.T) {
	tests := []struct {
		kind ProposalKind
		from ProposalStatus
		to   ProposalStatus
		want bool
	}{
		{KindTechnology, ProposalPending, ProposalNegotiating, true},
		{KindTechnology, ProposalNegotiating, ProposalContractSigning, true},
		{KindTechnology, ProposalContractSigning, ProposalContractSigned, true},
		{KindProject, ProposalPending, ProposalCancelled, true},
		{KindProject, ProposalContractSigned, ProposalCancelled, true},
		{KindTechnology, ProposalPending, ProposalContractSigning, false},
		{KindTechnology, ProposalContractSigned, ProposalCompleted, false},
		{KindTechnology, ProposalCompleted, ProposalCancelled, false},
		{KindTechnology, ProposalCancelled, ProposalPending, false},
		{KindDemand, ProposalPending, ProposalAccepted, true},
		{KindDemand, ProposalPending, ProposalRejected, true},
		{KindDemand, ProposalPending, ProposalNegotiating, false},
		{KindDemand, ProposalAccepted, ProposalRejected, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.kind.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestProposalStatus_Terminal(t *testing.T) {
	terminal := []ProposalStatus{ProposalCompleted, ProposalCancelled, ProposalAccepted, ProposalRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	open := []ProposalStatus{ProposalPending, ProposalNegotiating, ProposalContractSigning, ProposalContractSigned}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
		if _, ok := ProposalTransitions[s]; !ok {
			t.Errorf("non-terminal status %s has no transition entry", s)
		}
	}
}

func TestStepSequence(t *testing.T) {
	want := []StepKind{StepSignContract, StepUploadAttachments, StepCompleteContract}
	if len(StepSequence) != len(want) {
		t.Fatalf("len(StepSequence) = %d, want %d", len(StepSequence), len(want))
	}
	for i := range want {
		if StepSequence[i] != want[i] {
			t.Errorf("StepSequence[%d] = %s, want %s", i, StepSequence[i], want[i])
		}
	}
}

func TestContract_PartyOf(t *testing.T) {
	c := Contract{UserA: "alice", UserB: "bob"}

	if got := c.PartyOf("alice"); got != PartyA {
		t.Errorf("PartyOf(alice) = %q, want A", got)
	}
	if got := c.PartyOf("bob"); got != PartyB {
		t.Errorf("PartyOf(bob) = %q, want B", got)
	}
	if got := c.PartyOf("mallory"); got != "" {
		t.Errorf("PartyOf(mallory) = %q, want empty", got)
	}
	if got := c.PartyOf(""); got != "" {
		t.Errorf("PartyOf(\"\") = %q, want empty", got)
	}
	if c.UserFor(PartyB) != "bob" || c.UserFor("C") != "" {
		t.Error("UserFor mismatch")
	}
}

func TestStatusHelpers(t *testing.T) {
	if !ContractCompleted.Terminal() || !ContractCancelled.Terminal() || ContractInProgress.Terminal() {
		t.Error("ContractStatus.Terminal mismatch")
	}
	if StepPending.Terminal() || !StepApproved.Terminal() || !StepCancelled.Terminal() {
		t.Error("StepStatus.Terminal mismatch")
	}
	if !PartyA.Valid() || Party("C").Valid() {
		t.Error("Party.Valid mismatch")
	}
	if !LogCancelled.Valid() || LogStatus("done").Valid() {
		t.Error("LogStatus.Valid mismatch")
	}
	if !KindDemand.Valid() || ProposalKind("auction").Valid() {
		t.Error("ProposalKind.Valid mismatch")
	}
}
