package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// BaseCurrency is the currency code written on every export row.
	BaseCurrency = "CCD"

	// MicroCCDExponent shifts a microCCD integer into CCD (1 CCD = 10^6 microCCD).
	MicroCCDExponent = -6

	// DateLayout is the minute-precision UTC layout used for export rows.
	DateLayout = "2006-01-02 15:04 UTC"
)

// maxBlockTime is the last second of year 9999, the largest instant DateLayout
// can render with a four digit year.
const maxBlockTime = 253402300799

// Label tags an export row. The zero value means no label.
type Label string

const (
	LabelNone   Label = ""
	LabelFee    Label = "fee"
	LabelMining Label = "mining"
)

// ExportRow is one accounting line of the tax export.
type ExportRow struct {
	Date     string          `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Label    Label           `json:"label,omitempty"`
	TxHash   string          `json:"tx_hash,omitempty"`
}

// MicroCCDToCCD converts an integer microCCD amount to CCD without rounding.
func MicroCCDToCCD(micro int64) decimal.Decimal {
	return decimal.New(micro, MicroCCDExponent)
}

// BlockTimeUTC converts a block time in (fractional) seconds since epoch to a
// UTC time.
func BlockTimeUTC(blockTime float64) (time.Time, error) {
	if math.IsNaN(blockTime) || math.IsInf(blockTime, 0) || blockTime < 0 || blockTime > maxBlockTime {
		return time.Time{}, fmt.Errorf("block time %v out of range", blockTime)
	}
	sec, frac := math.Modf(blockTime)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
