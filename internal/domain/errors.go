package domain

import "fmt"

// FetchError reports a failed page request for one account. It aborts that
// account's pagination only.
type FetchError struct {
	Account string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch transactions for account %s: %v", e.Account, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TimestampConversionError means a block time cannot be represented as a date.
type TimestampConversionError struct {
	TxID      uint64
	BlockTime float64
}

func (e *TimestampConversionError) Error() string {
	return fmt.Sprintf("transaction %d: cannot convert block time %v", e.TxID, e.BlockTime)
}

// MissingAmountError means a transaction has no total and cannot be priced.
type MissingAmountError struct {
	TxID uint64
}

func (e *MissingAmountError) Error() string {
	return fmt.Sprintf("transaction %d: missing total amount", e.TxID)
}
