package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-settle/internal/settlement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSettlementSubmit is the task type for forwarding a confirmed
	// settlement proposal to the credit ledger.
	TaskSettlementSubmit = "settlement:submit"
)

// SettlementSubmitPayload identifies the proposal to forward.
type SettlementSubmitPayload struct {
	ProposalID uuid.UUID `json:"proposal_id"`
}

// NewSettlementSubmitTask constructs an Asynq task.
func NewSettlementSubmitTask(payload SettlementSubmitPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementSubmit, data), nil
}

// SettlementSubmitJob processes TaskSettlementSubmit tasks.
type SettlementSubmitJob struct {
	service *settlement.Service
	logger  *slog.Logger
}

// NewSettlementSubmitJob wires the submit handler.
func NewSettlementSubmitJob(service *settlement.Service, logger *slog.Logger) *SettlementSubmitJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementSubmitJob{service: service, logger: logger}
}

// Handle forwards one proposal to the ledger. Permanent rejections are not
// retried; transient failures are left to the Asynq retry policy.
func (j *SettlementSubmitJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SettlementSubmitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger.Error("decode settlement submit payload", slog.Any("error", err))
		return asynq.SkipRetry
	}

	err := j.service.SubmitProposal(ctx, payload.ProposalID)
	switch {
	case err == nil:
		j.logger.Info("settlement submitted", slog.String("proposal_id", payload.ProposalID.String()))
		return nil
	case errors.Is(err, settlement.ErrLedgerRejected):
		j.logger.Warn("settlement rejected by ledger",
			slog.String("proposal_id", payload.ProposalID.String()),
			slog.Any("error", err))
		return asynq.SkipRetry
	case errors.Is(err, settlement.ErrProposalNotFound):
		j.logger.Warn("settlement proposal missing", slog.String("proposal_id", payload.ProposalID.String()))
		return asynq.SkipRetry
	default:
		j.logger.Error("settlement submit failed",
			slog.String("proposal_id", payload.ProposalID.String()),
			slog.Any("error", err))
		return err
	}
}
