package antifraud

import (
	"context"
	"fmt"
	"math"

	"github.com/mdudarev/antifraud/internal/logging"
	"github.com/mdudarev/antifraud/internal/metrics"
	"github.com/mdudarev/antifraud/internal/syncutil"
	"github.com/mdudarev/antifraud/internal/traces"
)

// emaWeight is the smoothing factor of the threshold adjustment: the new
// threshold is ceil(0.8*current +/- 0.2*amount).
const emaWeight = 0.2

// Service ties the evaluator, the transaction store and the limit store
// together behind the two public operations: submit a transaction for
// evaluation and apply feedback to a past verdict.
type Service struct {
	evaluator *Evaluator
	store     TransactionStore
	limits    LimitStore

	// Serializes the read-modify-write of the shared threshold pair across
	// concurrent feedback submissions so no adjustment is lost. All feedback
	// locks the same key: the thresholds are a single shared pair.
	feedbackMu *syncutil.ContextShardedMutex
}

// limitsLockKey is the single lock key for the shared threshold pair.
const limitsLockKey = "limits"

// NewService creates the antifraud service.
func NewService(evaluator *Evaluator, store TransactionStore, limits LimitStore) *Service {
	return &Service{
		evaluator:  evaluator,
		store:      store,
		limits:     limits,
		feedbackMu: syncutil.NewContextShardedMutex(),
	}
}

// SubmitTransaction evaluates the input and persists the resulting record
// with an empty feedback field. The caller must have validated the input.
func (s *Service) SubmitTransaction(ctx context.Context, in Input) (*Transaction, string, error) {
	ctx, span := traces.StartSpan(ctx, "antifraud.Evaluate", traces.Amount(in.Amount), traces.Region(string(in.Region)))
	defer span.End()

	verdict, info, err := s.evaluator.Evaluate(ctx, in)
	if err != nil {
		return nil, "", err
	}
	span.SetAttributes(traces.Verdict(string(verdict)))

	tx := &Transaction{
		Amount:     in.Amount,
		IP:         in.IP,
		CardNumber: in.CardNumber,
		Region:     in.Region,
		Date:       in.Date,
		Result:     verdict,
		Feedback:   "",
	}
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, "", fmt.Errorf("persist transaction: %w", err)
	}

	metrics.TransactionsEvaluatedTotal.WithLabelValues(string(verdict)).Inc()
	logging.L(ctx).Info("transaction evaluated",
		"transaction_id", tx.ID,
		"result", verdict,
		"info", info,
	)
	return tx, info, nil
}

// ApplyFeedback records human feedback on a past verdict and adjusts the
// thresholds per the EMA rule. Fails with ErrTransactionNotFound,
// ErrFeedbackExists or ErrFeedbackUnprocessable on the deterministic
// business-rule violations; infrastructure errors pass through unchanged
// and leave both the transaction and the limits untouched.
func (s *Service) ApplyFeedback(ctx context.Context, id int64, feedback Verdict) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "antifraud.ApplyFeedback", traces.TransactionID(id))
	defer span.End()

	// Single critical section for the shared threshold pair. The store-level
	// CompareAndSet still guards against writers outside this process.
	unlock, err := s.feedbackMu.LockContext(ctx, limitsLockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Feedback != "" {
		return nil, ErrFeedbackExists
	}
	if feedback == tx.Result {
		return nil, ErrFeedbackUnprocessable
	}

	current, err := s.limits.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load limits: %w", err)
	}
	next := adjustLimits(current, tx.Result, feedback, tx.Amount)

	applied, err := s.limits.CompareAndSet(ctx, current, next)
	if err != nil {
		return nil, fmt.Errorf("update limits: %w", err)
	}
	if !applied {
		// Lost a race with an external writer; nothing was changed.
		return nil, fmt.Errorf("update limits: concurrent modification")
	}

	updated, err := s.store.SetFeedback(ctx, id, feedback)
	if err != nil {
		// Feedback did not stick: roll the threshold adjustment back so the
		// two writes behave as one unit.
		if _, casErr := s.limits.CompareAndSet(ctx, next, current); casErr != nil {
			logging.L(ctx).Error("limit rollback failed after feedback error",
				"transaction_id", id,
				"error", casErr,
			)
		}
		return nil, err
	}

	metrics.FeedbackAppliedTotal.Inc()
	metrics.SetLimitGauges(next.MaxAllowed, next.MaxManual)
	logging.L(ctx).Info("feedback applied",
		"transaction_id", id,
		"result", tx.Result,
		"feedback", feedback,
		"max_allowed", next.MaxAllowed,
		"max_manual", next.MaxManual,
	)
	return updated, nil
}

// History returns all transactions in insertion order.
func (s *Service) History(ctx context.Context) ([]*Transaction, error) {
	return s.store.List(ctx)
}

// HistoryByCard returns all transactions for a card number in insertion
// order, failing with ErrNoTransactionsForCard when there are none.
func (s *Service) HistoryByCard(ctx context.Context, number string) ([]*Transaction, error) {
	txs, err := s.store.ListByCard(ctx, number)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNoTransactionsForCard
	}
	return txs, nil
}

// adjustLimits applies the feedback matrix. Each original-result/feedback
// combination moves one or both thresholds toward the transaction amount.
func adjustLimits(cur Limits, result, feedback Verdict, amount int64) Limits {
	next := cur
	switch result {
	case VerdictAllowed:
		next.MaxAllowed = ema(cur.MaxAllowed, amount, false)
		if feedback == VerdictProhibited {
			next.MaxManual = ema(cur.MaxManual, amount, false)
		}
	case VerdictManual:
		if feedback == VerdictAllowed {
			next.MaxAllowed = ema(cur.MaxAllowed, amount, true)
		} else {
			next.MaxManual = ema(cur.MaxManual, amount, false)
		}
	case VerdictProhibited:
		next.MaxManual = ema(cur.MaxManual, amount, true)
		if feedback == VerdictAllowed {
			next.MaxAllowed = ema(cur.MaxAllowed, amount, true)
		}
	}
	return next
}

// ema computes ceil((1-w)*current +/- w*amount) with w = 0.2.
func ema(current, amount int64, increase bool) int64 {
	term := emaWeight * float64(amount)
	if !increase {
		term = -term
	}
	return int64(math.Ceil((1-emaWeight)*float64(current) + term))
}
