package settlement

import (
	"time"

	"github.com/google/uuid"
)

// CreditObligation is one outstanding amount owed by a customer, as reported
// by the credit ledger service. The ledger remains authoritative; this
// service never mutates an obligation, it only proposes allocations.
type CreditObligation struct {
	ID                int64
	CustomerID        int64
	Number            string
	DueDate           time.Time
	OutstandingAmount float64
}

// AllocationTarget pairs an obligation with the amount the caller wants to
// apply to it. Order of targets is the order of application.
type AllocationTarget struct {
	ObligationID int64
	Amount       float64
}

// AllocationEntry records the applied and remaining amounts for one
// obligation inside an AllocationResult.
type AllocationEntry struct {
	ObligationID int64
	Applied      float64
	Remaining    float64
}

// AllocationResult is the engine's output for one allocation run.
type AllocationResult struct {
	Entries      []AllocationEntry
	TotalApplied float64
	Unallocated  float64
}

// ProposalStatus enumerates settlement proposal statuses.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "PENDING"
	ProposalSubmitted ProposalStatus = "SUBMITTED"
	ProposalFailed    ProposalStatus = "FAILED"
)

// ProposalAllocation is one persisted allocation line of a proposal.
type ProposalAllocation struct {
	ID           int64
	ProposalID   uuid.UUID
	ObligationID int64
	Amount       float64
	CreatedAt    time.Time
}

// SettlementProposal is a confirmed allocation awaiting (or past) submission
// to the credit ledger service.
type SettlementProposal struct {
	ID            uuid.UUID
	Number        string
	CustomerID    int64
	Method        string
	Note          string
	TotalAmount   float64
	Status        ProposalStatus
	Allocations   []ProposalAllocation
	FailureReason string
	SubmittedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ObligationsByID indexes obligations for selective-mode lookups.
func ObligationsByID(obligations []CreditObligation) map[int64]CreditObligation {
	byID := make(map[int64]CreditObligation, len(obligations))
	for _, o := range obligations {
		byID[o.ID] = o
	}
	return byID
}
