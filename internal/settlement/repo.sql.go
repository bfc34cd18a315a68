package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for proposals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// CreateProposal inserts a proposal and its allocation lines atomically,
// generating a number when none was supplied.
func (r *Repository) CreateProposal(ctx context.Context, proposal SettlementProposal) (SettlementProposal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return SettlementProposal{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if proposal.Number == "" {
		if err := tx.QueryRow(ctx, `SELECT 'SET-' || to_char(now(), 'YYYYMMDD') || '-' || lpad(nextval('settlement_number_seq')::text, 5, '0')`).Scan(&proposal.Number); err != nil {
			return SettlementProposal{}, err
		}
	}

	_, err = tx.Exec(ctx, `INSERT INTO settlement_proposals (id, number, customer_id, method, note, total_amount, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		proposal.ID, proposal.Number, proposal.CustomerID, proposal.Method, proposal.Note, proposal.TotalAmount, proposal.Status, proposal.CreatedAt, proposal.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_settlement_proposals_number" {
			return SettlementProposal{}, ErrDuplicateNumber
		}
		return SettlementProposal{}, err
	}

	for i, alloc := range proposal.Allocations {
		var id int64
		err := tx.QueryRow(ctx, `INSERT INTO settlement_allocations (proposal_id, obligation_id, amount, created_at)
VALUES ($1, $2, $3, $4) RETURNING id`,
			proposal.ID, alloc.ObligationID, alloc.Amount, alloc.CreatedAt).Scan(&id)
		if err != nil {
			return SettlementProposal{}, err
		}
		proposal.Allocations[i].ID = id
		proposal.Allocations[i].ProposalID = proposal.ID
	}

	if err := tx.Commit(ctx); err != nil {
		return SettlementProposal{}, err
	}
	return proposal, nil
}

// GetProposal loads one proposal with its allocations.
func (r *Repository) GetProposal(ctx context.Context, id uuid.UUID) (SettlementProposal, error) {
	var p SettlementProposal
	err := r.pool.QueryRow(ctx, `SELECT id, number, customer_id, method, note, total_amount, status, COALESCE(failure_reason, ''), submitted_at, created_at, updated_at
FROM settlement_proposals WHERE id = $1`, id).Scan(
		&p.ID, &p.Number, &p.CustomerID, &p.Method, &p.Note, &p.TotalAmount, &p.Status, &p.FailureReason, &p.SubmittedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SettlementProposal{}, ErrProposalNotFound
		}
		return SettlementProposal{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, proposal_id, obligation_id, amount, created_at
FROM settlement_allocations WHERE proposal_id = $1 ORDER BY id`, id)
	if err != nil {
		return SettlementProposal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var alloc ProposalAllocation
		if err := rows.Scan(&alloc.ID, &alloc.ProposalID, &alloc.ObligationID, &alloc.Amount, &alloc.CreatedAt); err != nil {
			return SettlementProposal{}, err
		}
		p.Allocations = append(p.Allocations, alloc)
	}
	if err := rows.Err(); err != nil {
		return SettlementProposal{}, err
	}
	return p, nil
}

// ListProposals returns proposals matching the filter, newest first.
func (r *Repository) ListProposals(ctx context.Context, req ListProposalsRequest) ([]SettlementProposal, error) {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, number, customer_id, method, note, total_amount, status, COALESCE(failure_reason, ''), submitted_at, created_at, updated_at
FROM settlement_proposals WHERE 1=1`
	args := []any{}
	if req.CustomerID != 0 {
		args = append(args, req.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var proposals []SettlementProposal
	for rows.Next() {
		var p SettlementProposal
		if err := rows.Scan(&p.ID, &p.Number, &p.CustomerID, &p.Method, &p.Note, &p.TotalAmount, &p.Status, &p.FailureReason, &p.SubmittedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return proposals, nil
}

// MarkSubmitted transitions a proposal to SUBMITTED.
func (r *Repository) MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE settlement_proposals SET status = $1, submitted_at = $2, updated_at = $2 WHERE id = $3`,
		ProposalSubmitted, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProposalNotFound
	}
	return nil
}

// MarkFailed transitions a proposal to FAILED with the ledger's reason.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE settlement_proposals SET status = $1, failure_reason = $2, updated_at = now() WHERE id = $3`,
		ProposalFailed, reason, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProposalNotFound
	}
	return nil
}
