package walletproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
)

// fakeFetcher serves a fixed list of pages and records the cursors it saw.
type fakeFetcher struct {
	pages   []Page
	errAt   int // 1-based call that fails, 0 for never
	cursors []*uint64
}

func (f *fakeFetcher) FetchPage(ctx context.Context, account string, limit int, cursor *uint64) (Page, error) {
	f.cursors = append(f.cursors, cursor)
	call := len(f.cursors)
	if f.errAt == call {
		return Page{}, errors.New("connection reset")
	}
	if call > len(f.pages) {
		return Page{}, errors.New("fetched past the last page")
	}
	return f.pages[call-1], nil
}

func fullPage(ids ...uint64) Page {
	txs := make([]domain.Transaction, len(ids))
	for i, id := range ids {
		txs[i] = domain.Transaction{ID: id, Details: domain.Other{}}
	}
	return Page{Transactions: txs, Count: len(ids), Limit: len(ids), HasMore: true}
}

func shortPage(limit int, ids ...uint64) Page {
	p := fullPage(ids...)
	p.Limit = limit
	p.HasMore = false
	return p
}

func TestFetchAll_StopsOnShortPage(t *testing.T) {
	f := &fakeFetcher{pages: []Page{
		fullPage(30, 29, 28),
		fullPage(27, 26, 25),
		shortPage(3, 24),
	}}

	var got []uint64
	calls, err := FetchAll(context.Background(), f, "alice", 3, func(txs []domain.Transaction) {
		for _, tx := range txs {
			got = append(got, tx.ID)
		}
	})
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}

	if calls != 3 || len(f.cursors) != 3 {
		t.Fatalf("expected exactly 3 fetch calls, got %d (recorded %d)", calls, len(f.cursors))
	}
	if f.cursors[0] != nil {
		t.Error("first request must not carry a cursor")
	}
	if *f.cursors[1] != 28 || *f.cursors[2] != 25 {
		t.Errorf("cursors = %d, %d, want 28, 25", *f.cursors[1], *f.cursors[2])
	}
	if len(got) != 7 {
		t.Errorf("expected 7 transactions delivered, got %d", len(got))
	}
}

func TestFetchAll_EmptyFullPageTerminates(t *testing.T) {
	f := &fakeFetcher{pages: []Page{
		fullPage(5, 4),
		{Count: 0, Limit: 0, HasMore: true},
	}}

	calls, err := FetchAll(context.Background(), f, "alice", 2, func([]domain.Transaction) {})
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestFetchAll_WrapsErrorWithAccount(t *testing.T) {
	f := &fakeFetcher{pages: []Page{fullPage(2, 1)}, errAt: 2}

	delivered := 0
	_, err := FetchAll(context.Background(), f, "bob", 2, func(txs []domain.Transaction) {
		delivered += len(txs)
	})

	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Account != "bob" {
		t.Errorf("account = %q, want bob", fetchErr.Account)
	}
	if delivered != 2 {
		t.Errorf("pages before the failure should still be delivered, got %d", delivered)
	}
}
