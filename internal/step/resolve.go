package step

import "github.com/zulandar/dealyard/internal/models"

// Resolve computes a step's status from its approvals. Any rejection rejects
// the step; it is approved only when both parties approved.
func Resolve(approvals []models.ContractStepApproval) models.StepStatus {
	approved := map[models.Party]bool{}
	for _, a := range approvals {
		switch a.Decision {
		case models.DecisionRejected:
			return models.StepRejected
		case models.DecisionApproved:
			approved[a.Party] = true
		}
	}
	if approved[models.PartyA] && approved[models.PartyB] {
		return models.StepApproved
	}
	return models.StepPending
}
