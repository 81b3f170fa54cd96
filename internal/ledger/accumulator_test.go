package ledger

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
)

func tx(id uint64, blockTime float64) domain.Transaction {
	return domain.Transaction{ID: id, BlockTime: blockTime, Details: domain.Other{}}
}

func ids(txs []domain.Transaction) []uint64 {
	out := make([]uint64, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func equalIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAccumulator_MergeIsIdempotent(t *testing.T) {
	page := []domain.Transaction{tx(3, 300), tx(2, 200), tx(1, 100)}

	once := NewAccumulator()
	once.Merge(page)

	twice := NewAccumulator()
	if added := twice.Merge(page); added != 3 {
		t.Fatalf("first merge added %d, want 3", added)
	}
	if added := twice.Merge(page); added != 0 {
		t.Fatalf("second merge added %d, want 0", added)
	}

	if !equalIDs(ids(once.Snapshot()), ids(twice.Snapshot())) {
		t.Errorf("merging twice gave %v, once gave %v", ids(twice.Snapshot()), ids(once.Snapshot()))
	}
	if twice.Len() != 3 {
		t.Errorf("Len() = %d, want 3", twice.Len())
	}
}

func TestAccumulator_DuplicateKeyedByIDOnly(t *testing.T) {
	acc := NewAccumulator()
	total := int64(5)
	acc.Merge([]domain.Transaction{{ID: 7, BlockTime: 10, Details: domain.Other{}}})
	acc.Merge([]domain.Transaction{{ID: 7, BlockTime: 99, Total: &total, Details: domain.PaydayReward{}}})

	got := acc.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(got))
	}
	if got[0].BlockTime != 10 || got[0].Total != nil {
		t.Errorf("first inserted version should win, got %+v", got[0])
	}
}

func TestAccumulator_OrderIndependentOfInsertion(t *testing.T) {
	pages := [][]domain.Transaction{
		{tx(10, 1000.5), tx(9, 900)},
		{tx(4, 400), tx(11, 1100), tx(1, 100.25)},
		{tx(9, 900), tx(5, 500)},
	}
	want := []uint64{1, 4, 5, 9, 10, 11}

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1}}
	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			acc := NewAccumulator()
			for _, i := range order {
				acc.Merge(pages[i])
			}
			if got := ids(acc.Snapshot()); !equalIDs(got, want) {
				t.Errorf("order %v: got %v, want %v", order, got, want)
			}
		})
	}
}

func TestAccumulator_TiesOrderedByID(t *testing.T) {
	pages := [][]domain.Transaction{
		{tx(2, 50), tx(1, 50)},
		{tx(3, 50), tx(0, 10)},
	}
	want := []uint64{0, 1, 2, 3}

	for _, order := range [][]int{{0, 1}, {1, 0}} {
		acc := NewAccumulator()
		for _, i := range order {
			acc.Merge(pages[i])
		}
		if got := ids(acc.Snapshot()); !equalIDs(got, want) {
			t.Errorf("order %v: got %v, want %v", order, got, want)
		}
	}
}

func TestAccumulator_ManyPagesStaySorted(t *testing.T) {
	acc := NewAccumulator()
	// Pages arrive newest first with interleaved block times and ties.
	for p := 9; p >= 0; p-- {
		page := make([]domain.Transaction, 0, 5)
		for k := 4; k >= 0; k-- {
			id := uint64(p*5 + k)
			page = append(page, tx(id, float64(id/3)))
		}
		acc.Merge(page)
	}

	got := acc.Snapshot()
	if len(got) != 50 {
		t.Fatalf("expected 50 transactions, got %d", len(got))
	}
	for i, tr := range got {
		if tr.ID != uint64(i) {
			t.Fatalf("position %d holds ID %d, want %d", i, tr.ID, i)
		}
	}
}

func TestAccumulator_ConcurrentMerge(t *testing.T) {
	acc := NewAccumulator()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for p := 0; p < 50; p++ {
				// Workers overlap on IDs to exercise duplicate handling.
				id := uint64(p*4 + w%4)
				acc.Merge([]domain.Transaction{tx(id, float64(id))})
			}
		}(w)
	}
	wg.Wait()

	got := acc.Snapshot()
	if len(got) != 200 {
		t.Fatalf("expected 200 unique transactions, got %d", len(got))
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return before(got[i], got[j]) }) {
		t.Error("snapshot is not sorted by block time and ID")
	}
}

func TestAccumulator_SnapshotIsACopy(t *testing.T) {
	acc := NewAccumulator()
	acc.Merge([]domain.Transaction{tx(1, 1)})

	snap := acc.Snapshot()
	snap[0].ID = 42

	if acc.Snapshot()[0].ID != 1 {
		t.Error("mutating a snapshot changed the accumulator")
	}
}
