package settlement

import (
	"time"

	"github.com/google/uuid"
)

type previewRequest struct {
	CustomerID  int64   `json:"customerId" validate:"required,gt=0"`
	TotalAmount float64 `json:"totalAmount" validate:"required"`
}

type targetRequest struct {
	ObligationID int64   `json:"obligationId" validate:"required,gt=0"`
	Amount       float64 `json:"amount" validate:"required"`
}

type previewSelectionRequest struct {
	CustomerID int64           `json:"customerId" validate:"required,gt=0"`
	Targets    []targetRequest `json:"targets" validate:"required,min=1,dive"`
}

type confirmRequest struct {
	CustomerID  int64           `json:"customerId" validate:"required,gt=0"`
	Number      string          `json:"number"`
	Method      string          `json:"method" validate:"required"`
	Note        string          `json:"note"`
	TotalAmount float64         `json:"totalAmount"`
	Targets     []targetRequest `json:"targets" validate:"dive"`
}

type obligationResponse struct {
	ID                int64   `json:"id"`
	Number            string  `json:"number"`
	DueDate           string  `json:"dueDate"`
	OutstandingAmount float64 `json:"outstandingAmount"`
}

type allocationEntryResponse struct {
	ObligationID int64   `json:"obligationId"`
	Applied      float64 `json:"applied"`
	Remaining    float64 `json:"remaining"`
}

type allocationResultResponse struct {
	Entries      []allocationEntryResponse `json:"entries"`
	TotalApplied float64                   `json:"totalApplied"`
	Unallocated  float64                   `json:"unallocated"`
}

type proposalAllocationResponse struct {
	ObligationID int64   `json:"obligationId"`
	Amount       float64 `json:"amount"`
}

type proposalResponse struct {
	ID            uuid.UUID                    `json:"id"`
	Number        string                       `json:"number"`
	CustomerID    int64                        `json:"customerId"`
	Method        string                       `json:"method"`
	Note          string                       `json:"note,omitempty"`
	TotalAmount   float64                      `json:"totalAmount"`
	Status        ProposalStatus               `json:"status"`
	Allocations   []proposalAllocationResponse `json:"allocations,omitempty"`
	FailureReason string                       `json:"failureReason,omitempty"`
	SubmittedAt   *time.Time                   `json:"submittedAt,omitempty"`
	CreatedAt     time.Time                    `json:"createdAt"`
}

func toObligationResponses(obligations []CreditObligation) []obligationResponse {
	out := make([]obligationResponse, 0, len(obligations))
	for _, o := range obligations {
		out = append(out, obligationResponse{
			ID:                o.ID,
			Number:            o.Number,
			DueDate:           o.DueDate.Format("2006-01-02"),
			OutstandingAmount: round2(o.OutstandingAmount),
		})
	}
	return out
}

func toResultResponse(result AllocationResult) allocationResultResponse {
	resp := allocationResultResponse{
		Entries:      make([]allocationEntryResponse, 0, len(result.Entries)),
		TotalApplied: result.TotalApplied,
		Unallocated:  result.Unallocated,
	}
	for _, e := range result.Entries {
		resp.Entries = append(resp.Entries, allocationEntryResponse{
			ObligationID: e.ObligationID,
			Applied:      e.Applied,
			Remaining:    e.Remaining,
		})
	}
	return resp
}

func toProposalResponse(p SettlementProposal) proposalResponse {
	resp := proposalResponse{
		ID:            p.ID,
		Number:        p.Number,
		CustomerID:    p.CustomerID,
		Method:        p.Method,
		Note:          p.Note,
		TotalAmount:   p.TotalAmount,
		Status:        p.Status,
		FailureReason: p.FailureReason,
		SubmittedAt:   p.SubmittedAt,
		CreatedAt:     p.CreatedAt,
	}
	for _, alloc := range p.Allocations {
		resp.Allocations = append(resp.Allocations, proposalAllocationResponse{
			ObligationID: alloc.ObligationID,
			Amount:       alloc.Amount,
		})
	}
	return resp
}

func toTargets(targets []targetRequest) []AllocationTarget {
	out := make([]AllocationTarget, 0, len(targets))
	for _, t := range targets {
		out = append(out, AllocationTarget{ObligationID: t.ObligationID, Amount: t.Amount})
	}
	return out
}
