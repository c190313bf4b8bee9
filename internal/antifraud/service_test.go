package antifraud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *MemoryStore, *MemoryLimitStore) {
	t.Helper()
	store := NewMemoryStore()
	limits := NewMemoryLimitStore(Limits{MaxAllowed: 200, MaxManual: 1500})
	bl := &fakeBlocklist{
		stolenCards: make(map[string]bool),
		suspicious:  make(map[string]bool),
	}
	ev := NewEvaluator(limits, bl, store)
	return NewService(ev, store, limits), store, limits
}

func submit(t *testing.T, svc *Service, amount int64) *Transaction {
	t.Helper()
	tx, _, err := svc.SubmitTransaction(context.Background(), baseInput(amount))
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	return tx
}

func TestSubmitTransactionPersistsVerdict(t *testing.T) {
	svc, store, _ := newTestService(t)

	tx, info, err := svc.SubmitTransaction(context.Background(), baseInput(1200))
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if tx.ID == 0 {
		t.Error("expected assigned transaction id")
	}
	if tx.Result != VerdictManual {
		t.Errorf("result = %s, want MANUAL_PROCESSING", tx.Result)
	}
	if info != "amount" {
		t.Errorf("info = %q, want %q", info, "amount")
	}

	stored, err := store.Get(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Result != VerdictManual || stored.Feedback != "" {
		t.Errorf("stored transaction = %+v, want MANUAL_PROCESSING with empty feedback", stored)
	}
}

func TestApplyFeedbackDecreasesAllowedLimit(t *testing.T) {
	svc, _, limits := newTestService(t)
	tx := submit(t, svc, 120) // ALLOWED

	updated, err := svc.ApplyFeedback(context.Background(), tx.ID, VerdictManual)
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}
	if updated.Feedback != string(VerdictManual) {
		t.Errorf("feedback = %q, want MANUAL_PROCESSING", updated.Feedback)
	}

	// ceil(0.8*200 - 0.2*120) = 136
	cur, err := limits.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.MaxAllowed != 136 {
		t.Errorf("MaxAllowed = %d, want 136", cur.MaxAllowed)
	}
	if cur.MaxManual != 1500 {
		t.Errorf("MaxManual = %d, want unchanged 1500", cur.MaxManual)
	}
}

func TestApplyFeedbackProhibitedToAllowedRaisesBothLimits(t *testing.T) {
	svc, _, limits := newTestService(t)
	tx := submit(t, svc, 2500) // PROHIBITED

	if _, err := svc.ApplyFeedback(context.Background(), tx.ID, VerdictAllowed); err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}

	cur, err := limits.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	// ceil(0.8*200 + 0.2*2500) = 660, ceil(0.8*1500 + 0.2*2500) = 1700
	if cur.MaxAllowed != 660 {
		t.Errorf("MaxAllowed = %d, want 660", cur.MaxAllowed)
	}
	if cur.MaxManual != 1700 {
		t.Errorf("MaxManual = %d, want 1700", cur.MaxManual)
	}
}

func TestApplyFeedbackMatrix(t *testing.T) {
	tests := []struct {
		name        string
		result      Verdict
		feedback    Verdict
		amount      int64
		wantAllowed int64
		wantManual  int64
	}{
		{"allowed to manual", VerdictAllowed, VerdictManual, 120, 136, 1500},
		{"allowed to prohibited", VerdictAllowed, VerdictProhibited, 120, 136, 1176},
		{"manual to allowed", VerdictManual, VerdictAllowed, 1000, 360, 1500},
		{"manual to prohibited", VerdictManual, VerdictProhibited, 1000, 200, 1000},
		{"prohibited to allowed", VerdictProhibited, VerdictAllowed, 2500, 660, 1700},
		{"prohibited to manual", VerdictProhibited, VerdictManual, 2500, 200, 1700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adjustLimits(Limits{MaxAllowed: 200, MaxManual: 1500}, tt.result, tt.feedback, tt.amount)
			if got.MaxAllowed != tt.wantAllowed {
				t.Errorf("MaxAllowed = %d, want %d", got.MaxAllowed, tt.wantAllowed)
			}
			if got.MaxManual != tt.wantManual {
				t.Errorf("MaxManual = %d, want %d", got.MaxManual, tt.wantManual)
			}
		})
	}
}

func TestApplyFeedbackNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ApplyFeedback(context.Background(), 999, VerdictAllowed)
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("err = %v, want ErrTransactionNotFound", err)
	}
}

func TestApplyFeedbackConflictOnSecondSubmission(t *testing.T) {
	svc, _, limits := newTestService(t)
	tx := submit(t, svc, 120)

	if _, err := svc.ApplyFeedback(context.Background(), tx.ID, VerdictManual); err != nil {
		t.Fatalf("first ApplyFeedback: %v", err)
	}

	before, _ := limits.Current(context.Background())

	// Identical feedback resubmitted is still a conflict, not idempotent.
	_, err := svc.ApplyFeedback(context.Background(), tx.ID, VerdictManual)
	if !errors.Is(err, ErrFeedbackExists) {
		t.Errorf("err = %v, want ErrFeedbackExists", err)
	}

	after, _ := limits.Current(context.Background())
	if after != before {
		t.Errorf("limits changed on rejected feedback: %+v -> %+v", before, after)
	}
}

func TestApplyFeedbackUnprocessableWhenEqualToResult(t *testing.T) {
	svc, store, limits := newTestService(t)
	tx := submit(t, svc, 120) // ALLOWED

	before, _ := limits.Current(context.Background())

	_, err := svc.ApplyFeedback(context.Background(), tx.ID, VerdictAllowed)
	if !errors.Is(err, ErrFeedbackUnprocessable) {
		t.Errorf("err = %v, want ErrFeedbackUnprocessable", err)
	}

	after, _ := limits.Current(context.Background())
	if after != before {
		t.Errorf("limits changed on rejected feedback: %+v -> %+v", before, after)
	}

	stored, _ := store.Get(context.Background(), tx.ID)
	if stored.Feedback != "" {
		t.Errorf("feedback = %q, want empty after rejection", stored.Feedback)
	}
}

func TestApplyFeedbackConcurrentSingleWinner(t *testing.T) {
	svc, store, limits := newTestService(t)
	tx := submit(t, svc, 120)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApplyFeedback(context.Background(), tx.ID, VerdictManual)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrFeedbackExists):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}

	// Exactly one adjustment applied.
	cur, _ := limits.Current(context.Background())
	if cur.MaxAllowed != 136 {
		t.Errorf("MaxAllowed = %d, want 136 after single adjustment", cur.MaxAllowed)
	}

	stored, _ := store.Get(context.Background(), tx.ID)
	if stored.Feedback != string(VerdictManual) {
		t.Errorf("feedback = %q, want MANUAL_PROCESSING", stored.Feedback)
	}
}

func TestHistoryByCard(t *testing.T) {
	svc, _, _ := newTestService(t)
	first := submit(t, svc, 50)
	submit(t, svc, 80)

	txs, err := svc.HistoryByCard(context.Background(), first.CardNumber)
	if err != nil {
		t.Fatalf("HistoryByCard: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len = %d, want 2", len(txs))
	}
	if txs[0].ID >= txs[1].ID {
		t.Error("expected ascending id order")
	}

	_, err = svc.HistoryByCard(context.Background(), "4532015112830366")
	if !errors.Is(err, ErrNoTransactionsForCard) {
		t.Errorf("err = %v, want ErrNoTransactionsForCard", err)
	}
}

func TestEMARounding(t *testing.T) {
	// ceil must round toward positive infinity on fractional results.
	if got := ema(200, 111, false); got != 138 {
		// 0.8*200 - 0.2*111 = 160 - 22.2 = 137.8 -> 138
		t.Errorf("ema decrease = %d, want 138", got)
	}
	if got := ema(200, 111, true); got != 183 {
		// 0.8*200 + 0.2*111 = 182.2 -> 183
		t.Errorf("ema increase = %d, want 183", got)
	}
}

func TestHistoryInsertionOrder(t *testing.T) {
	svc, _, _ := newTestService(t)

	// Insert with out-of-order timestamps; history order follows insertion.
	in := baseInput(50)
	in.Date = in.Date.Add(time.Hour)
	if _, _, err := svc.SubmitTransaction(context.Background(), in); err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	submit(t, svc, 60)

	txs, err := svc.History(context.Background())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != 1 || txs[1].ID != 2 {
		t.Errorf("unexpected history order: %+v", txs)
	}
}
