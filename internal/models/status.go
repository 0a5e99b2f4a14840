package models

// ProposalKind identifies what a proposal asks for.
type ProposalKind string

const (
	KindTechnology ProposalKind = "technology"
	KindProject    ProposalKind = "project"
	KindDemand     ProposalKind = "demand"
)

// Valid reports whether k is a known proposal kind.
func (k ProposalKind) Valid() bool {
	switch k {
	case KindTechnology, KindProject, KindDemand:
		return true
	}
	return false
}

// ProposalStatus is the lifecycle state of a Proposal.
type ProposalStatus string

const (
	ProposalPending         ProposalStatus = "pending"
	ProposalNegotiating     ProposalStatus = "negotiating"
	ProposalContractSigning ProposalStatus = "contract_signing"
	ProposalContractSigned  ProposalStatus = "contract_signed"
	ProposalCompleted       ProposalStatus = "completed"
	ProposalCancelled       ProposalStatus = "cancelled"

	// Reduced status set used by demand proposals.
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// ProposalTransitions maps each negotiable proposal status to its legal next
// statuses. "any non-terminal → cancelled" is folded into each entry.
// The contract_signing and contract_signed edges are taken by offer acceptance
// and the contract mirror, never by a manual transition.
// contract_signed → completed is absent: only a done-contract log completes a
// proposal, through the contract mirror.
var ProposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalPending:         {ProposalNegotiating, ProposalCancelled},
	ProposalNegotiating:     {ProposalContractSigning, ProposalCancelled},
	ProposalContractSigning: {ProposalContractSigned, ProposalCancelled},
	ProposalContractSigned:  {ProposalCancelled},
}

// DemandTransitions is the reduced edge set for demand proposals.
var DemandTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalPending: {ProposalAccepted, ProposalRejected},
}

// CanTransition reports whether a proposal of kind k may move from one status
// to another.
func (k ProposalKind) CanTransition(from, to ProposalStatus) bool {
	table := ProposalTransitions
	if k == KindDemand {
		table = DemandTransitions
	}
	for _, v := range table[from] {
		if v == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalCompleted, ProposalCancelled, ProposalAccepted, ProposalRejected:
		return true
	}
	return false
}

// OfferStatus is the state of an Offer in the ledger.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// ContractStatus is the lifecycle state of a Contract.
type ContractStatus string

const (
	ContractSigned     ContractStatus = "signed"
	ContractInProgress ContractStatus = "in_progress"
	ContractCompleted  ContractStatus = "completed"
	ContractCancelled  ContractStatus = "cancelled"
)

// Terminal reports whether the contract accepts no further changes.
func (s ContractStatus) Terminal() bool {
	return s == ContractCompleted || s == ContractCancelled
}

// StepKind names one stage of contract execution.
type StepKind string

const (
	StepSignContract      StepKind = "sign_contract"
	StepUploadAttachments StepKind = "upload_attachments"
	StepCompleteContract  StepKind = "complete_contract"
)

// StepSequence is the ordered step list seeded for every new contract.
var StepSequence = []StepKind{StepSignContract, StepUploadAttachments, StepCompleteContract}

// StepStatus is the state of a ContractStep.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepCancelled StepStatus = "cancelled"
)

// Terminal reports whether the step accepts no further approvals.
func (s StepStatus) Terminal() bool {
	return s != StepPending
}

// Party identifies one side of a contract.
type Party string

const (
	PartyA Party = "A"
	PartyB Party = "B"
)

// Valid reports whether p is A or B.
func (p Party) Valid() bool {
	return p == PartyA || p == PartyB
}

// Decision is a party's verdict on a step.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// LogStatus is the status carried by a ContractLog entry.
type LogStatus string

const (
	LogPending   LogStatus = "pending"
	LogCompleted LogStatus = "completed"
	LogCancelled LogStatus = "cancelled"
)

// Valid reports whether s is a known log status.
func (s LogStatus) Valid() bool {
	switch s {
	case LogPending, LogCompleted, LogCancelled:
		return true
	}
	return false
}
