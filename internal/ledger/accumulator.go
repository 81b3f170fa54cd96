// Package ledger merges fetched pages into one deduplicated, time-ordered
// ledger and removes transfers between owned accounts.
package ledger

import (
	"sort"
	"sync"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
)

// Accumulator is a set of transactions unique by ID and ordered by block time.
// It keeps an ID index for membership checks next to the ordered slice.
// Merge is safe for concurrent use.
type Accumulator struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
	txs  []domain.Transaction
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{seen: make(map[uint64]struct{})}
}

// Merge inserts the transactions of page whose ID is not present yet and
// returns how many were added. Merging the same page twice is a no-op.
// Transactions with equal block times are ordered by ID, so the ledger does
// not depend on the order pages arrive in.
func (a *Accumulator) Merge(page []domain.Transaction) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	fresh := make([]domain.Transaction, 0, len(page))
	for _, tx := range page {
		if _, ok := a.seen[tx.ID]; ok {
			continue
		}
		a.seen[tx.ID] = struct{}{}
		fresh = append(fresh, tx)
	}
	if len(fresh) == 0 {
		return 0
	}

	sort.Slice(fresh, func(i, j int) bool { return before(fresh[i], fresh[j]) })
	a.txs = mergeSorted(a.txs, fresh)
	return len(fresh)
}

// before orders by block time, then by ID.
func before(x, y domain.Transaction) bool {
	if x.BlockTime != y.BlockTime {
		return x.BlockTime < y.BlockTime
	}
	return x.ID < y.ID
}

// mergeSorted merges two slices already ordered by before.
func mergeSorted(cur, fresh []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(cur)+len(fresh))
	i, j := 0, 0
	for i < len(cur) && j < len(fresh) {
		if before(fresh[j], cur[i]) {
			out = append(out, fresh[j])
			j++
		} else {
			out = append(out, cur[i])
			i++
		}
	}
	out = append(out, cur[i:]...)
	return append(out, fresh[j:]...)
}

// Len returns the number of unique transactions.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.txs)
}

// Snapshot returns a copy of the ledger in ascending (block time, ID) order.
func (a *Accumulator) Snapshot() []domain.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.Transaction, len(a.txs))
	copy(out, a.txs)
	return out
}
