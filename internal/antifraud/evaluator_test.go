package antifraud

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeBlocklist is a hand-rolled BlocklistChecker for evaluator tests.
type fakeBlocklist struct {
	stolenCards map[string]bool
	suspicious  map[string]bool
	failWith    error
}

func (f *fakeBlocklist) IsStolenCard(ctx context.Context, number string) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	return f.stolenCards[number], nil
}

func (f *fakeBlocklist) IsSuspiciousIP(ctx context.Context, ip string) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	return f.suspicious[ip], nil
}

func newTestEvaluator(t *testing.T) (*Evaluator, *MemoryStore, *fakeBlocklist) {
	t.Helper()
	store := NewMemoryStore()
	bl := &fakeBlocklist{
		stolenCards: make(map[string]bool),
		suspicious:  make(map[string]bool),
	}
	limits := NewMemoryLimitStore(Limits{MaxAllowed: 200, MaxManual: 1500})
	return NewEvaluator(limits, bl, store), store, bl
}

func baseInput(amount int64) Input {
	return Input{
		Amount:     amount,
		IP:         "192.168.1.1",
		CardNumber: "4000008449433403",
		Region:     RegionEAP,
		Date:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateAmountTiers(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		verdict  Verdict
		wantInfo string
	}{
		{"lower boundary allowed", 1, VerdictAllowed, "none"},
		{"at allowed cap", 200, VerdictAllowed, "none"},
		{"just above allowed cap", 201, VerdictManual, "amount"},
		{"mid manual", 1200, VerdictManual, "amount"},
		{"at manual cap", 1500, VerdictManual, "amount"},
		{"just above manual cap", 1501, VerdictProhibited, "amount"},
		{"far above manual cap", 12000, VerdictProhibited, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, _, _ := newTestEvaluator(t)
			verdict, info, err := ev.Evaluate(context.Background(), baseInput(tt.amount))
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if verdict != tt.verdict {
				t.Errorf("verdict = %s, want %s", verdict, tt.verdict)
			}
			if info != tt.wantInfo {
				t.Errorf("info = %q, want %q", info, tt.wantInfo)
			}
		})
	}
}

func TestEvaluateStolenCardReplacesLowerTierReason(t *testing.T) {
	ev, _, bl := newTestEvaluator(t)
	bl.stolenCards["4000008449433403"] = true

	// Amount alone would be MANUAL_PROCESSING with reason "amount"; the
	// stolen card escalates and the amount reason is discarded.
	verdict, info, err := ev.Evaluate(context.Background(), baseInput(1200))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict != VerdictProhibited {
		t.Errorf("verdict = %s, want PROHIBITED", verdict)
	}
	if info != "card-number" {
		t.Errorf("info = %q, want %q", info, "card-number")
	}
}

func TestEvaluateSameTierReasonsAccumulateInOrder(t *testing.T) {
	ev, _, bl := newTestEvaluator(t)
	bl.stolenCards["4000008449433403"] = true
	bl.suspicious["192.168.1.1"] = true

	// Amount already PROHIBITED; card and ip checks land on the same tier
	// and append in check order.
	verdict, info, err := ev.Evaluate(context.Background(), baseInput(12000))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict != VerdictProhibited {
		t.Errorf("verdict = %s, want PROHIBITED", verdict)
	}
	if info != "amount, card-number, ip" {
		t.Errorf("info = %q, want %q", info, "amount, card-number, ip")
	}
}

func TestEvaluateLowerTierCheckIgnored(t *testing.T) {
	ev, store, bl := newTestEvaluator(t)
	bl.stolenCards["4000008449433403"] = true

	// Two other regions in the window would add region-correlation at
	// MANUAL_PROCESSING, below the PROHIBITED already reached.
	seedHistory(t, store, []Input{
		historyAt(RegionECA, "10.0.0.1", -10*time.Minute),
		historyAt(RegionHIC, "10.0.0.2", -20*time.Minute),
	})

	verdict, info, err := ev.Evaluate(context.Background(), baseInput(50))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict != VerdictProhibited {
		t.Errorf("verdict = %s, want PROHIBITED", verdict)
	}
	if info != "card-number" {
		t.Errorf("info = %q, want %q", info, "card-number")
	}
}

func TestEvaluateRegionCorrelation(t *testing.T) {
	t.Run("two other regions means manual", func(t *testing.T) {
		ev, store, _ := newTestEvaluator(t)
		seedHistory(t, store, []Input{
			historyAt(RegionECA, "10.0.0.1", -10*time.Minute),
			historyAt(RegionHIC, "10.0.0.1", -20*time.Minute),
		})

		verdict, info, err := ev.Evaluate(context.Background(), baseInput(50))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if verdict != VerdictManual {
			t.Errorf("verdict = %s, want MANUAL_PROCESSING", verdict)
		}
		if info != "region-correlation" {
			t.Errorf("info = %q, want %q", info, "region-correlation")
		}
	})

	t.Run("three other regions means prohibited", func(t *testing.T) {
		ev, store, _ := newTestEvaluator(t)
		seedHistory(t, store, []Input{
			historyAt(RegionECA, "10.0.0.1", -10*time.Minute),
			historyAt(RegionHIC, "10.0.0.1", -20*time.Minute),
			historyAt(RegionLAC, "10.0.0.1", -30*time.Minute),
		})

		verdict, info, err := ev.Evaluate(context.Background(), baseInput(50))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if verdict != VerdictProhibited {
			t.Errorf("verdict = %s, want PROHIBITED", verdict)
		}
		if info != "region-correlation" {
			t.Errorf("info = %q, want %q", info, "region-correlation")
		}
	})

	t.Run("own region never counts", func(t *testing.T) {
		ev, store, _ := newTestEvaluator(t)
		seedHistory(t, store, []Input{
			historyAt(RegionEAP, "10.0.0.1", -10*time.Minute),
			historyAt(RegionEAP, "10.0.0.1", -20*time.Minute),
			historyAt(RegionECA, "10.0.0.1", -30*time.Minute),
		})

		verdict, info, err := ev.Evaluate(context.Background(), baseInput(50))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if verdict != VerdictAllowed {
			t.Errorf("verdict = %s, want ALLOWED", verdict)
		}
		if info != "none" {
			t.Errorf("info = %q, want %q", info, "none")
		}
	})
}

func TestEvaluateIPCorrelationCombinesWithRegion(t *testing.T) {
	ev, store, _ := newTestEvaluator(t)
	seedHistory(t, store, []Input{
		historyAt(RegionECA, "10.0.0.1", -10*time.Minute),
		historyAt(RegionHIC, "10.0.0.2", -20*time.Minute),
	})

	verdict, info, err := ev.Evaluate(context.Background(), baseInput(50))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict != VerdictManual {
		t.Errorf("verdict = %s, want MANUAL_PROCESSING", verdict)
	}
	if info != "region-correlation, ip-correlation" {
		t.Errorf("info = %q, want %q", info, "region-correlation, ip-correlation")
	}
}

func TestEvaluateWindowBoundaries(t *testing.T) {
	// The window is half-open: a record exactly one hour before the
	// transaction is outside it, one at the transaction's own instant is
	// inside.
	ev, store, _ := newTestEvaluator(t)
	seedHistory(t, store, []Input{
		historyAt(RegionECA, "10.0.0.1", -time.Hour),      // excluded
		historyAt(RegionHIC, "10.0.0.2", -59*time.Minute), // included
		historyAt(RegionLAC, "10.0.0.3", 0),               // included
	})

	verdict, info, err := ev.Evaluate(context.Background(), baseInput(50))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict != VerdictManual {
		t.Errorf("verdict = %s, want MANUAL_PROCESSING (2 regions in window)", verdict)
	}
	if info != "region-correlation, ip-correlation" {
		t.Errorf("info = %q, want %q", info, "region-correlation, ip-correlation")
	}
}

func TestEvaluatePropagatesCollaboratorErrors(t *testing.T) {
	ev, _, bl := newTestEvaluator(t)
	bl.failWith = errors.New("blocklist backend down")

	_, _, err := ev.Evaluate(context.Background(), baseInput(50))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// historyAt builds an input offset from the base transaction date.
func historyAt(region Region, ip string, offset time.Duration) Input {
	in := baseInput(50)
	in.Region = region
	in.IP = ip
	in.Date = in.Date.Add(offset)
	return in
}

func seedHistory(t *testing.T, store *MemoryStore, inputs []Input) {
	t.Helper()
	for _, in := range inputs {
		tx := &Transaction{
			Amount:     in.Amount,
			IP:         in.IP,
			CardNumber: in.CardNumber,
			Region:     in.Region,
			Date:       in.Date,
			Result:     VerdictAllowed,
		}
		if err := store.Create(context.Background(), tx); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}
}
