// Package export turns ledger transactions into tax-export rows and writes
// them out.
package export

import (
	"github.com/dvloznov/ccd-tax-export/internal/domain"
)

// ToRows converts one transaction into zero, one or two export rows: the
// principal movement and, when the sender paid a fee, a fee row. A
// transaction whose whole net effect is the fee yields the fee row only.
//
// The principal uses subtotal when present, even when it does not reconcile
// with total minus cost.
func ToRows(tx domain.Transaction) ([]domain.ExportRow, error) {
	if tx.Total == nil {
		return nil, &domain.MissingAmountError{TxID: tx.ID}
	}

	when, err := domain.BlockTimeUTC(tx.BlockTime)
	if err != nil {
		return nil, &domain.TimestampConversionError{TxID: tx.ID, BlockTime: tx.BlockTime}
	}
	date := when.Format(domain.DateLayout)

	hash := ""
	if tx.Hash != nil {
		hash = *tx.Hash
	}

	principalMicro := *tx.Total
	if tx.Subtotal != nil {
		principalMicro = *tx.Subtotal
	}

	label := domain.LabelNone
	if _, ok := tx.Details.(domain.PaydayReward); ok {
		label = domain.LabelMining
	}

	principal := domain.ExportRow{
		Date:     date,
		Amount:   domain.MicroCCDToCCD(principalMicro),
		Currency: domain.BaseCurrency,
		Label:    label,
		TxHash:   hash,
	}

	if tx.Cost == nil {
		return []domain.ExportRow{principal}, nil
	}

	fee := domain.ExportRow{
		Date:     date,
		Amount:   domain.MicroCCDToCCD(-*tx.Cost),
		Currency: domain.BaseCurrency,
		Label:    domain.LabelFee,
		TxHash:   hash,
	}

	if abs(*tx.Total) == *tx.Cost {
		return []domain.ExportRow{fee}, nil
	}
	return []domain.ExportRow{principal, fee}, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
