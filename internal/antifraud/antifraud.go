// Package antifraud implements the transaction risk-evaluation engine.
//
// Every incoming transaction is classified ALLOWED, MANUAL_PROCESSING or
// PROHIBITED based on amount thresholds, blocklist membership (stolen cards,
// suspicious IPs) and one-hour correlation signals (distinct regions and IPs
// seen around the same timestamp). Human feedback on past verdicts feeds an
// exponential-moving-average adjustment of the two amount thresholds.
package antifraud

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrFeedbackExists        = errors.New("feedback already recorded for this transaction")
	ErrFeedbackUnprocessable = errors.New("feedback matches the original result")
	ErrNoTransactionsForCard = errors.New("no transactions found for this card number")
)

// Verdict is one of the three ordered classification tiers.
type Verdict string

const (
	VerdictAllowed    Verdict = "ALLOWED"
	VerdictManual     Verdict = "MANUAL_PROCESSING"
	VerdictProhibited Verdict = "PROHIBITED"
)

// tierRank orders verdicts for escalation: a check may only move the verdict
// to a strictly higher tier, never down.
func (v Verdict) tierRank() int {
	switch v {
	case VerdictAllowed:
		return 0
	case VerdictManual:
		return 1
	case VerdictProhibited:
		return 2
	}
	return -1
}

// Valid reports whether v is one of the three known verdicts.
func (v Verdict) Valid() bool {
	return v.tierRank() >= 0
}

// Region is a World Bank region code carried by every transaction.
type Region string

const (
	RegionEAP  Region = "EAP"
	RegionECA  Region = "ECA"
	RegionHIC  Region = "HIC"
	RegionLAC  Region = "LAC"
	RegionMENA Region = "MENA"
	RegionSA   Region = "SA"
	RegionSSA  Region = "SSA"
)

// Regions lists all valid region codes.
var Regions = []Region{RegionEAP, RegionECA, RegionHIC, RegionLAC, RegionMENA, RegionSA, RegionSSA}

// Valid reports whether r is a known region code.
func (r Region) Valid() bool {
	for _, known := range Regions {
		if r == known {
			return true
		}
	}
	return false
}

// Transaction is an evaluated transaction record. Result is fixed at
// creation; Feedback is set at most once and must differ from Result.
type Transaction struct {
	ID         int64     `json:"transactionId"`
	Amount     int64     `json:"amount"`
	IP         string    `json:"ip"`
	CardNumber string    `json:"number"`
	Region     Region    `json:"region"`
	Date       time.Time `json:"date"`
	Result     Verdict   `json:"result"`
	Feedback   string    `json:"feedback"`
}

// Input carries an already-validated transaction into the evaluator.
// The boundary layer is responsible for format validation (Luhn, IPv4,
// region enum, amount >= 1) before this point.
type Input struct {
	Amount     int64
	IP         string
	CardNumber string
	Region     Region
	Date       time.Time
}

// Limits is the single global threshold pair. Amounts <= MaxAllowed are
// ALLOWED, amounts in (MaxAllowed, MaxManual] need manual processing,
// larger amounts are prohibited.
type Limits struct {
	MaxAllowed int64 `json:"maxAllowed"`
	MaxManual  int64 `json:"maxManual"`
}

// TransactionStore persists transaction records and answers the correlation
// queries the evaluator needs. Correlation windows are half-open: a record
// participates when start < date <= end.
type TransactionStore interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id int64) (*Transaction, error)
	// SetFeedback records feedback for a transaction whose feedback is still
	// empty. Returns ErrFeedbackExists if feedback was already set and
	// ErrTransactionNotFound if the id is unknown.
	SetFeedback(ctx context.Context, id int64, feedback Verdict) (*Transaction, error)
	List(ctx context.Context) ([]*Transaction, error)
	ListByCard(ctx context.Context, number string) ([]*Transaction, error)
	CountDistinctRegionsExcluding(ctx context.Context, start, end time.Time, region Region) (int64, error)
	CountDistinctIPsExcluding(ctx context.Context, start, end time.Time, ip string) (int64, error)
}

// BlocklistChecker answers set-membership questions against the stolen-card
// and suspicious-IP lists. Lookup failures must surface as errors, never as
// a silent "not listed".
type BlocklistChecker interface {
	IsStolenCard(ctx context.Context, number string) (bool, error)
	IsSuspiciousIP(ctx context.Context, ip string) (bool, error)
}

// LimitStore owns the single mutable threshold pair. Current lazily creates
// the pair from configured defaults on first access. CompareAndSet performs
// an atomic conditional update and reports whether it applied, allowing
// callers to retry on contention without losing updates.
type LimitStore interface {
	Current(ctx context.Context) (Limits, error)
	CompareAndSet(ctx context.Context, expected, next Limits) (bool, error)
}
