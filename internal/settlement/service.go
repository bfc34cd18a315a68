package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-settle/internal/ledger"
)

var (
	ErrProposalNotFound = errors.New("settlement: proposal not found")
	ErrDuplicateNumber  = errors.New("settlement: proposal number already used")
	// ErrLedgerRejected marks a permanent ledger-side rejection; the proposal
	// has already been marked FAILED and retrying cannot help.
	ErrLedgerRejected = errors.New("settlement: ledger rejected proposal")
)

// RepositoryPort defines data access for settlement proposals.
type RepositoryPort interface {
	CreateProposal(ctx context.Context, proposal SettlementProposal) (SettlementProposal, error)
	GetProposal(ctx context.Context, id uuid.UUID) (SettlementProposal, error)
	ListProposals(ctx context.Context, req ListProposalsRequest) ([]SettlementProposal, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// LedgerPort is the slice of the credit ledger client the service needs.
type LedgerPort interface {
	ListObligations(ctx context.Context, customerID int64) ([]ledger.Obligation, error)
	SubmitSettlement(ctx context.Context, payload ledger.SettlementPayload) error
}

// Enqueuer schedules background submission of a confirmed proposal.
type Enqueuer interface {
	EnqueueSettlementSubmit(ctx context.Context, proposalID uuid.UUID) error
}

// ListProposalsRequest filters proposal listings.
type ListProposalsRequest struct {
	CustomerID int64
	Status     ProposalStatus
	Limit      int
}

// ConfirmInput carries a user-confirmed allocation. Targets empty means
// simple mode driven by TotalAmount; targets present means selective mode.
type ConfirmInput struct {
	CustomerID  int64
	Number      string
	Method      string
	Note        string
	TotalAmount float64
	Targets     []AllocationTarget
}

// Service orchestrates previews and settlement submission around the pure
// allocation engine.
type Service struct {
	repo     RepositoryPort
	ledger   LedgerPort
	cache    *ObligationCache
	enqueuer Enqueuer
	now      func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, ledgerClient LedgerPort, cache *ObligationCache, enqueuer Enqueuer) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledgerClient,
		cache:    cache,
		enqueuer: enqueuer,
		now:      time.Now,
	}
}

// ListObligations returns a customer's outstanding obligations, served from
// the snapshot cache when fresh is false.
func (s *Service) ListObligations(ctx context.Context, customerID int64, fresh bool) ([]CreditObligation, error) {
	if fresh || s.cache == nil {
		return s.fetchObligations(ctx, customerID)
	}
	return s.cache.Obligations(ctx, customerID, func(ctx context.Context) ([]CreditObligation, error) {
		return s.fetchObligations(ctx, customerID)
	})
}

func (s *Service) fetchObligations(ctx context.Context, customerID int64) ([]CreditObligation, error) {
	raw, err := s.ledger.ListObligations(ctx, customerID)
	if err != nil {
		return nil, err
	}
	obligations := make([]CreditObligation, 0, len(raw))
	for _, o := range raw {
		obligations = append(obligations, CreditObligation{
			ID:                o.ID,
			CustomerID:        o.CustomerID,
			Number:            o.Number,
			DueDate:           o.DueDate,
			OutstandingAmount: o.OutstandingAmount,
		})
	}
	return obligations, nil
}

// PreviewOldestFirst computes a simple-mode allocation preview. The result
// is advisory; the same computation is re-run against a fresh snapshot on
// confirmation.
func (s *Service) PreviewOldestFirst(ctx context.Context, customerID int64, total float64) (AllocationResult, []CreditObligation, error) {
	obligations, err := s.ListObligations(ctx, customerID, false)
	if err != nil {
		return AllocationResult{}, nil, err
	}
	if err := ValidateTotal(total, obligations); err != nil {
		return AllocationResult{}, obligations, err
	}
	result, err := AllocateOldestFirst(total, obligations)
	return result, obligations, err
}

// PreviewBySelection computes a selective-mode allocation preview.
func (s *Service) PreviewBySelection(ctx context.Context, customerID int64, targets []AllocationTarget) (AllocationResult, error) {
	obligations, err := s.ListObligations(ctx, customerID, false)
	if err != nil {
		return AllocationResult{}, err
	}
	return AllocateBySelection(targets, ObligationsByID(obligations))
}

// ConfirmSettlement re-fetches obligations bypassing the cache, re-runs
// validation and allocation against the fresh snapshot, persists the
// proposal, and enqueues background submission. Any previously previewed
// result is irrelevant here: last-validated wins.
func (s *Service) ConfirmSettlement(ctx context.Context, input ConfirmInput) (SettlementProposal, error) {
	if input.Method == "" {
		return SettlementProposal{}, errors.New("settlement: payment method required")
	}

	obligations, err := s.ListObligations(ctx, input.CustomerID, true)
	if err != nil {
		return SettlementProposal{}, err
	}

	var result AllocationResult
	if len(input.Targets) > 0 {
		result, err = AllocateBySelection(input.Targets, ObligationsByID(obligations))
	} else {
		if err := ValidateTotal(input.TotalAmount, obligations); err != nil {
			return SettlementProposal{}, err
		}
		result, err = AllocateOldestFirst(input.TotalAmount, obligations)
		if err == nil && result.Unallocated > 0 {
			err = &RuleViolation{
				Rule:   RuleAmountExceedsOutstanding,
				Detail: fmt.Sprintf("payment leaves %.2f unallocated across outstanding obligations", result.Unallocated),
			}
		}
	}
	if err != nil {
		return SettlementProposal{}, err
	}

	now := s.now()
	proposal := SettlementProposal{
		ID:          uuid.New(),
		Number:      input.Number,
		CustomerID:  input.CustomerID,
		Method:      input.Method,
		Note:        input.Note,
		TotalAmount: result.TotalApplied,
		Status:      ProposalPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, entry := range result.Entries {
		if entry.Applied <= 0 {
			continue
		}
		proposal.Allocations = append(proposal.Allocations, ProposalAllocation{
			ProposalID:   proposal.ID,
			ObligationID: entry.ObligationID,
			Amount:       entry.Applied,
			CreatedAt:    now,
		})
	}

	proposal, err = s.repo.CreateProposal(ctx, proposal)
	if err != nil {
		return SettlementProposal{}, err
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueSettlementSubmit(ctx, proposal.ID); err != nil {
			return proposal, fmt.Errorf("settlement: enqueue submission: %w", err)
		}
	}
	return proposal, nil
}

// SubmitProposal forwards a pending proposal to the ledger service. Called
// from the background worker; safe to re-run on redelivery. A permanent
// ledger rejection marks the proposal FAILED and returns ErrLedgerRejected;
// transient errors leave it PENDING for retry.
func (s *Service) SubmitProposal(ctx context.Context, id uuid.UUID) error {
	proposal, err := s.repo.GetProposal(ctx, id)
	if err != nil {
		return err
	}
	switch proposal.Status {
	case ProposalSubmitted:
		return nil
	case ProposalFailed:
		return fmt.Errorf("%w: %s", ErrLedgerRejected, proposal.FailureReason)
	}

	payload := ledger.SettlementPayload{
		CustomerID: proposal.CustomerID,
		Number:     proposal.Number,
		Method:     proposal.Method,
		Note:       proposal.Note,
	}
	for _, alloc := range proposal.Allocations {
		payload.Allocations = append(payload.Allocations, ledger.SettlementAllocation{
			ObligationID: alloc.ObligationID,
			Amount:       alloc.Amount,
		})
	}

	if err := s.ledger.SubmitSettlement(ctx, payload); err != nil {
		var statusErr *ledger.StatusError
		if errors.As(err, &statusErr) && statusErr.Permanent() {
			if markErr := s.repo.MarkFailed(ctx, id, statusErr.Body); markErr != nil {
				return markErr
			}
			return fmt.Errorf("%w: %s", ErrLedgerRejected, statusErr.Body)
		}
		return err
	}

	if err := s.repo.MarkSubmitted(ctx, id, s.now()); err != nil {
		return err
	}
	if s.cache != nil {
		// the ledger balances changed; previews must not reuse the snapshot
		if err := s.cache.Bump(ctx); err != nil {
			return err
		}
	}
	return nil
}

// GetProposal returns one proposal with its allocations.
func (s *Service) GetProposal(ctx context.Context, id uuid.UUID) (SettlementProposal, error) {
	return s.repo.GetProposal(ctx, id)
}

// ListProposals returns proposals matching the filter.
func (s *Service) ListProposals(ctx context.Context, req ListProposalsRequest) ([]SettlementProposal, error) {
	return s.repo.ListProposals(ctx, req)
}
