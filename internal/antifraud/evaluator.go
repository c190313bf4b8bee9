package antifraud

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Reason tags attached to verdicts, rendered in fixed check order.
const (
	ReasonAmount            = "amount"
	ReasonCardNumber        = "card-number"
	ReasonIP                = "ip"
	ReasonRegionCorrelation = "region-correlation"
	ReasonIPCorrelation     = "ip-correlation"
)

// correlationWindow is how far back the evaluator looks for distinct
// regions/IPs around a transaction's own timestamp.
const correlationWindow = time.Hour

// Evaluator classifies transactions. It only reads shared state (limits,
// blocklists, historical records) and is safe to call concurrently.
type Evaluator struct {
	limits    LimitStore
	blocklist BlocklistChecker
	history   TransactionStore
}

// NewEvaluator creates an evaluator over the given collaborators.
func NewEvaluator(limits LimitStore, blocklist BlocklistChecker, history TransactionStore) *Evaluator {
	return &Evaluator{limits: limits, blocklist: blocklist, history: history}
}

// outcome accumulates the verdict and its reason tags across the ordered
// sequence of checks. A check observing a strictly higher tier replaces the
// accumulated reasons; the same tier appends; a lower tier is ignored.
type outcome struct {
	verdict Verdict
	reasons []string
}

func (o *outcome) apply(v Verdict, reason string) {
	switch {
	case v.tierRank() > o.verdict.tierRank():
		o.verdict = v
		o.reasons = o.reasons[:0]
		o.reasons = append(o.reasons, reason)
	case v.tierRank() == o.verdict.tierRank() && reason != "":
		o.reasons = append(o.reasons, reason)
	}
}

func (o *outcome) info() string {
	if len(o.reasons) == 0 {
		return "none"
	}
	return strings.Join(o.reasons, ", ")
}

// Evaluate classifies a single transaction and returns the verdict plus the
// comma-joined reason string ("none" when no rule fired). Collaborator
// failures propagate; the evaluator never substitutes a default for a
// failed lookup.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Verdict, string, error) {
	limits, err := e.limits.Current(ctx)
	if err != nil {
		return "", "", fmt.Errorf("load limits: %w", err)
	}

	var o outcome
	switch {
	case in.Amount <= limits.MaxAllowed:
		o.verdict = VerdictAllowed
	case in.Amount <= limits.MaxManual:
		o.verdict = VerdictManual
		o.reasons = append(o.reasons, ReasonAmount)
	default:
		o.verdict = VerdictProhibited
		o.reasons = append(o.reasons, ReasonAmount)
	}

	stolen, err := e.blocklist.IsStolenCard(ctx, in.CardNumber)
	if err != nil {
		return "", "", fmt.Errorf("stolen card lookup: %w", err)
	}
	if stolen {
		o.apply(VerdictProhibited, ReasonCardNumber)
	}

	suspicious, err := e.blocklist.IsSuspiciousIP(ctx, in.IP)
	if err != nil {
		return "", "", fmt.Errorf("suspicious ip lookup: %w", err)
	}
	if suspicious {
		o.apply(VerdictProhibited, ReasonIP)
	}

	// Correlation window is (date - 1h, date]: inclusive of the transaction's
	// own timestamp, exclusive of the instant exactly one hour before.
	windowStart := in.Date.Add(-correlationWindow)

	regions, err := e.history.CountDistinctRegionsExcluding(ctx, windowStart, in.Date, in.Region)
	if err != nil {
		return "", "", fmt.Errorf("region correlation: %w", err)
	}
	switch {
	case regions > 2:
		o.apply(VerdictProhibited, ReasonRegionCorrelation)
	case regions == 2:
		o.apply(VerdictManual, ReasonRegionCorrelation)
	}

	ips, err := e.history.CountDistinctIPsExcluding(ctx, windowStart, in.Date, in.IP)
	if err != nil {
		return "", "", fmt.Errorf("ip correlation: %w", err)
	}
	switch {
	case ips > 2:
		o.apply(VerdictProhibited, ReasonIPCorrelation)
	case ips == 2:
		o.apply(VerdictManual, ReasonIPCorrelation)
	}

	return o.verdict, o.info(), nil
}
