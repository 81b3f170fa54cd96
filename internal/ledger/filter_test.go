package ledger

import (
	"testing"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
)

func transfer(id uint64, from, to string) domain.Transaction {
	return domain.Transaction{ID: id, BlockTime: float64(id), Details: domain.Transfer{From: from, To: to}}
}

func TestFilterSelfTransfers(t *testing.T) {
	owned := OwnedSet([]string{"alice", "alice-savings"})

	tests := []struct {
		name    string
		tx      domain.Transaction
		removed bool
	}{
		{"same owned account on both sides", transfer(1, "alice", "alice"), true},
		{"between two owned accounts", transfer(2, "alice", "alice-savings"), true},
		{"owned sender, external receiver", transfer(3, "alice", "bob"), false},
		{"external sender, owned receiver", transfer(4, "bob", "alice"), false},
		{"reward", domain.Transaction{ID: 5, Details: domain.PaydayReward{}}, false},
		{"delegation change", domain.Transaction{ID: 6, Details: domain.ConfigureDelegation{}}, false},
		{"unknown type", domain.Transaction{ID: 7, Details: domain.Other{Type: "deployModule"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, removed := FilterSelfTransfers([]domain.Transaction{tt.tx}, owned)
			if tt.removed && (len(kept) != 0 || removed != 1) {
				t.Errorf("expected transaction to be removed, kept=%d removed=%d", len(kept), removed)
			}
			if !tt.removed && (len(kept) != 1 || removed != 0) {
				t.Errorf("expected transaction to be kept, kept=%d removed=%d", len(kept), removed)
			}
		})
	}
}

func TestFilterSelfTransfers_PreservesOrderAndInput(t *testing.T) {
	owned := OwnedSet([]string{"a", "b"})
	in := []domain.Transaction{
		transfer(1, "a", "x"),
		transfer(2, "a", "b"),
		transfer(3, "x", "b"),
	}

	kept, removed := FilterSelfTransfers(in, owned)

	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got := ids(kept); !equalIDs(got, []uint64{1, 3}) {
		t.Errorf("kept = %v, want [1 3]", got)
	}
	if len(in) != 3 || in[1].ID != 2 {
		t.Error("input slice was modified")
	}
}
