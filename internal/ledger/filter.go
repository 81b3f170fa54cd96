package ledger

import "github.com/dvloznov/ccd-tax-export/internal/domain"

// OwnedSet builds the owned-account lookup used by FilterSelfTransfers.
func OwnedSet(accounts []string) map[string]struct{} {
	owned := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		owned[a] = struct{}{}
	}
	return owned
}

// FilterSelfTransfers drops transfers whose sender and receiver are both
// owned. It returns the surviving transactions in their original order and
// the number removed. The input slice is not modified.
func FilterSelfTransfers(txs []domain.Transaction, owned map[string]struct{}) ([]domain.Transaction, int) {
	kept := make([]domain.Transaction, 0, len(txs))
	removed := 0
	for _, tx := range txs {
		if IsSelfTransfer(tx, owned) {
			removed++
			continue
		}
		kept = append(kept, tx)
	}
	return kept, removed
}

// IsSelfTransfer reports whether tx moves funds between two owned accounts.
func IsSelfTransfer(tx domain.Transaction, owned map[string]struct{}) bool {
	t, ok := tx.Details.(domain.Transfer)
	if !ok {
		return false
	}
	_, fromOwned := owned[t.From]
	_, toOwned := owned[t.To]
	return fromOwned && toOwned
}
