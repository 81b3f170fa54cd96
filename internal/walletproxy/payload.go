package walletproxy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
)

type accountTransactionsResponse struct {
	Count        int              `json:"count"`
	Limit        int              `json:"limit"`
	Transactions []transactionDTO `json:"transactions"`
}

type transactionDTO struct {
	ID              uint64          `json:"id"`
	TransactionHash *string         `json:"transactionHash"`
	BlockTime       float64         `json:"blockTime"`
	Details         json.RawMessage `json:"details"`
	Cost            *string         `json:"cost"`
	Subtotal        *string         `json:"subtotal"`
	Total           *string         `json:"total"`
}

type detailsDTO struct {
	Type                string `json:"type"`
	TransferSource      string `json:"transferSource"`
	TransferDestination string `json:"transferDestination"`
}

func (r accountTransactionsResponse) toPage() (Page, error) {
	txs := make([]domain.Transaction, 0, len(r.Transactions))
	for i, dto := range r.Transactions {
		tx, err := dto.toDomain()
		if err != nil {
			return Page{}, fmt.Errorf("transaction %d (id %d): %w", i, dto.ID, err)
		}
		txs = append(txs, tx)
	}

	return Page{
		Transactions: txs,
		Count:        r.Count,
		Limit:        r.Limit,
		HasMore:      r.Count == r.Limit,
	}, nil
}

func (t transactionDTO) toDomain() (domain.Transaction, error) {
	cost, err := parseAmount("cost", t.Cost)
	if err != nil {
		return domain.Transaction{}, err
	}
	subtotal, err := parseAmount("subtotal", t.Subtotal)
	if err != nil {
		return domain.Transaction{}, err
	}
	total, err := parseAmount("total", t.Total)
	if err != nil {
		return domain.Transaction{}, err
	}

	return domain.Transaction{
		ID:        t.ID,
		Hash:      t.TransactionHash,
		BlockTime: t.BlockTime,
		Details:   decodeDetails(t.Details),
		Cost:      cost,
		Total:     total,
		Subtotal:  subtotal,
	}, nil
}

// decodeDetails never fails: shapes we cannot read become domain.Other.
func decodeDetails(raw json.RawMessage) domain.Details {
	if len(raw) == 0 {
		return domain.Other{}
	}
	var d detailsDTO
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.Other{}
	}

	switch d.Type {
	case "transfer", "transferWithMemo":
		return domain.Transfer{From: d.TransferSource, To: d.TransferDestination}
	case "paydayAccountReward", "paydayFoundationReward", "paydayPoolReward":
		return domain.PaydayReward{}
	case "configureDelegation":
		return domain.ConfigureDelegation{}
	default:
		return domain.Other{Type: d.Type}
	}
}

// parseAmount reads an optional signed microCCD amount encoded as a string.
func parseAmount(field string, s *string) (*int64, error) {
	if s == nil {
		return nil, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(*s), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("field %q: invalid amount %q: %w", field, *s, err)
	}
	return &v, nil
}
