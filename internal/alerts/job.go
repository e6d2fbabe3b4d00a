package alerts

import (
	"context"
	"fmt"

	"papertrader/internal/ports"
)

// EvaluationJob is the periodic tick that snapshots quotes for every
// instrument under alert, evaluates all rules and pushes firings to the
// notifier. It satisfies the scheduler's Job interface.
type EvaluationJob struct {
	logger    ports.Logger
	store     *Store
	evaluator *Evaluator
	quotes    ports.QuoteSource
	notifier  ports.Notifier
}

// NewEvaluationJob creates the alert evaluation tick job.
func NewEvaluationJob(logger ports.Logger, store *Store, evaluator *Evaluator, quotes ports.QuoteSource, notifier ports.Notifier) (*EvaluationJob, error) {
	if logger == nil || store == nil || evaluator == nil || quotes == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for evaluation job")
	}
	return &EvaluationJob{
		logger:    logger,
		store:     store,
		evaluator: evaluator,
		quotes:    quotes,
		notifier:  notifier,
	}, nil
}

// Name implements the scheduler Job interface.
func (j *EvaluationJob) Name() string { return "alert-evaluation" }

// Run performs one evaluation tick. Notification failures are logged per
// alert and do not abort the tick; the cooldown already started when the
// rule fired.
func (j *EvaluationJob) Run(ctx context.Context) error {
	instruments := j.store.InstrumentIDs()
	if len(instruments) == 0 {
		return nil
	}

	quotes, err := j.quotes.Snapshot(ctx, instruments)
	if err != nil {
		return fmt.Errorf("failed to snapshot quotes for evaluation tick: %w", err)
	}

	fired := j.evaluator.EvaluateAll(ctx, quotes)
	for _, alert := range fired {
		if err := j.notifier.Notify(ctx, alert); err != nil {
			j.logger.Error(ctx, err, "Failed to deliver alert notification", map[string]interface{}{
				"ruleID":     alert.Rule.ID,
				"instrument": alert.Rule.InstrumentID,
			})
		}
	}
	if len(fired) > 0 {
		j.logger.Info(ctx, "Evaluation tick complete", map[string]interface{}{
			"instruments": len(instruments),
			"fired":       len(fired),
		})
	}
	return nil
}
