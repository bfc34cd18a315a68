package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-settle/internal/ledger"
)

type memoryRepo struct {
	proposals map[uuid.UUID]SettlementProposal
	numbers   map[string]bool
	cursor    int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		proposals: make(map[uuid.UUID]SettlementProposal),
		numbers:   make(map[string]bool),
	}
}

func (r *memoryRepo) CreateProposal(ctx context.Context, proposal SettlementProposal) (SettlementProposal, error) {
	if proposal.Number == "" {
		r.cursor++
		proposal.Number = fmt.Sprintf("SET-TEST-%05d", r.cursor)
	}
	if r.numbers[proposal.Number] {
		return SettlementProposal{}, ErrDuplicateNumber
	}
	r.numbers[proposal.Number] = true
	r.proposals[proposal.ID] = proposal
	return proposal, nil
}

func (r *memoryRepo) GetProposal(ctx context.Context, id uuid.UUID) (SettlementProposal, error) {
	p, ok := r.proposals[id]
	if !ok {
		return SettlementProposal{}, ErrProposalNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListProposals(ctx context.Context, req ListProposalsRequest) ([]SettlementProposal, error) {
	var out []SettlementProposal
	for _, p := range r.proposals {
		if req.CustomerID != 0 && p.CustomerID != req.CustomerID {
			continue
		}
		if req.Status != "" && p.Status != req.Status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryRepo) MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) error {
	p, ok := r.proposals[id]
	if !ok {
		return ErrProposalNotFound
	}
	p.Status = ProposalSubmitted
	p.SubmittedAt = &at
	r.proposals[id] = p
	return nil
}

func (r *memoryRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	p, ok := r.proposals[id]
	if !ok {
		return ErrProposalNotFound
	}
	p.Status = ProposalFailed
	p.FailureReason = reason
	r.proposals[id] = p
	return nil
}

type stubLedger struct {
	obligations map[int64][]CreditObligation
	listCalls   int
	submitted   []ledger.SettlementPayload
	submitErr   error
}

func (s *stubLedger) ListObligations(ctx context.Context, customerID int64) ([]ledger.Obligation, error) {
	s.listCalls++
	out := make([]ledger.Obligation, 0, len(s.obligations[customerID]))
	for _, o := range s.obligations[customerID] {
		out = append(out, ledger.Obligation{
			ID:                o.ID,
			CustomerID:        customerID,
			Number:            o.Number,
			DueDate:           o.DueDate,
			OutstandingAmount: o.OutstandingAmount,
		})
	}
	return out, nil
}

func (s *stubLedger) SubmitSettlement(ctx context.Context, payload ledger.SettlementPayload) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = append(s.submitted, payload)
	return nil
}

type stubEnqueuer struct {
	ids []uuid.UUID
	err error
}

func (s *stubEnqueuer) EnqueueSettlementSubmit(ctx context.Context, proposalID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, proposalID)
	return nil
}

func testFixture() (*Service, *memoryRepo, *stubLedger, *stubEnqueuer) {
	repo := newMemoryRepo()
	led := &stubLedger{obligations: map[int64][]CreditObligation{
		42: {
			obligation(3, "2024-03-01", 100),
			obligation(1, "2024-01-01", 50),
			obligation(2, "2024-02-01", 30),
		},
	}}
	enq := &stubEnqueuer{}
	svc := NewService(repo, led, nil, enq)
	return svc, repo, led, enq
}

func TestConfirmSettlementOldestFirst(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, enq := testFixture()

	proposal, err := svc.ConfirmSettlement(ctx, ConfirmInput{
		CustomerID:  42,
		Method:      "TRANSFER",
		TotalAmount: 120,
	})
	require.NoError(t, err)
	require.Equal(t, ProposalPending, proposal.Status)
	require.Equal(t, 120.0, proposal.TotalAmount)
	require.NotEmpty(t, proposal.Number)
	require.Len(t, proposal.Allocations, 3)
	require.Equal(t, int64(1), proposal.Allocations[0].ObligationID)
	require.Equal(t, 50.0, proposal.Allocations[0].Amount)
	require.Equal(t, int64(3), proposal.Allocations[2].ObligationID)
	require.Equal(t, 40.0, proposal.Allocations[2].Amount)

	stored, err := repo.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.Equal(t, proposal.Number, stored.Number)
	require.Equal(t, []uuid.UUID{proposal.ID}, enq.ids)
}

func TestConfirmSettlementRejectsOverpayment(t *testing.T) {
	svc, repo, _, _ := testFixture()

	_, err := svc.ConfirmSettlement(context.Background(), ConfirmInput{
		CustomerID:  42,
		Method:      "CASH",
		TotalAmount: 500,
	})
	var violation *RuleViolation
	require.True(t, errors.As(err, &violation))
	require.Equal(t, RuleAmountExceedsOutstanding, violation.Rule)
	require.Empty(t, repo.proposals, "over-settling payments must not be persisted")
}

func TestConfirmSettlementSelective(t *testing.T) {
	svc, _, led, _ := testFixture()

	proposal, err := svc.ConfirmSettlement(context.Background(), ConfirmInput{
		CustomerID: 42,
		Method:     "CHEQUE",
		Targets: []AllocationTarget{
			{ObligationID: 3, Amount: 70},
			{ObligationID: 1, Amount: 20},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 90.0, proposal.TotalAmount)
	require.Len(t, proposal.Allocations, 2)
	require.Equal(t, int64(3), proposal.Allocations[0].ObligationID, "caller order preserved")
	require.Equal(t, 1, led.listCalls, "confirmation must hit the ledger, not a cached snapshot")
}

func TestConfirmSettlementRevalidatesAgainstFreshSnapshot(t *testing.T) {
	svc, _, led, _ := testFixture()

	// another session settled most of obligation 1 between preview and confirm
	led.obligations[42][1] = obligation(1, "2024-01-01", 5)

	_, err := svc.ConfirmSettlement(context.Background(), ConfirmInput{
		CustomerID: 42,
		Method:     "TRANSFER",
		Targets:    []AllocationTarget{{ObligationID: 1, Amount: 20}},
	})
	var violation *RuleViolation
	require.True(t, errors.As(err, &violation))
	require.Equal(t, RuleAmountExceedsOutstanding, violation.Rule)
	require.Equal(t, int64(1), violation.ObligationID)
}

func TestConfirmSettlementRequiresMethod(t *testing.T) {
	svc, _, _, _ := testFixture()

	_, err := svc.ConfirmSettlement(context.Background(), ConfirmInput{CustomerID: 42, TotalAmount: 10})
	require.Error(t, err)
}

func TestSubmitProposal(t *testing.T) {
	ctx := context.Background()
	svc, repo, led, _ := testFixture()

	proposal, err := svc.ConfirmSettlement(ctx, ConfirmInput{
		CustomerID:  42,
		Method:      "TRANSFER",
		TotalAmount: 80,
	})
	require.NoError(t, err)

	require.NoError(t, svc.SubmitProposal(ctx, proposal.ID))
	require.Len(t, led.submitted, 1)
	require.Equal(t, int64(42), led.submitted[0].CustomerID)
	require.Equal(t, proposal.Number, led.submitted[0].Number)
	require.Len(t, led.submitted[0].Allocations, 2)

	stored, err := repo.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.Equal(t, ProposalSubmitted, stored.Status)
	require.NotNil(t, stored.SubmittedAt)

	// redelivery is a no-op
	require.NoError(t, svc.SubmitProposal(ctx, proposal.ID))
	require.Len(t, led.submitted, 1)
}

func TestSubmitProposalPermanentRejection(t *testing.T) {
	ctx := context.Background()
	svc, repo, led, _ := testFixture()

	proposal, err := svc.ConfirmSettlement(ctx, ConfirmInput{CustomerID: 42, Method: "CASH", TotalAmount: 10})
	require.NoError(t, err)

	led.submitErr = &ledger.StatusError{StatusCode: http.StatusConflict, Body: "obligation already settled"}
	err = svc.SubmitProposal(ctx, proposal.ID)
	require.ErrorIs(t, err, ErrLedgerRejected)

	stored, err := repo.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.Equal(t, ProposalFailed, stored.Status)
	require.Equal(t, "obligation already settled", stored.FailureReason)
}

func TestSubmitProposalTransientFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	svc, repo, led, _ := testFixture()

	proposal, err := svc.ConfirmSettlement(ctx, ConfirmInput{CustomerID: 42, Method: "CASH", TotalAmount: 10})
	require.NoError(t, err)

	led.submitErr = &ledger.StatusError{StatusCode: http.StatusBadGateway, Body: "upstream timeout"}
	require.Error(t, svc.SubmitProposal(ctx, proposal.ID))

	stored, err := repo.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.Equal(t, ProposalPending, stored.Status, "transient errors must leave the proposal retryable")
}
