package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
)

func TestPrintLedger(t *testing.T) {
	hash := "aa11"
	total := int64(-1001000)
	cost := int64(1000)
	reward := int64(2000000)

	txs := []domain.Transaction{
		{ID: 7, Hash: &hash, BlockTime: 1709296496, Details: domain.Transfer{From: "a", To: "b"}, Total: &total, Cost: &cost},
		{ID: 8, BlockTime: 1709382896, Details: domain.PaydayReward{}, Total: &reward},
		{ID: 9, BlockTime: -1, Details: domain.Other{Type: "bakerAdded"}},
	}

	var buf bytes.Buffer
	if err := printLedger(&buf, txs); err != nil {
		t.Fatalf("printLedger() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got:\n%s", buf.String())
	}
	checks := [][]string{
		{"ID", "TIME", "TYPE", "TOTAL", "COST", "HASH"},
		{"7", "2024-03-01 12:34 UTC", "transfer", "-1.001", "0.001", "aa11"},
		{"8", "2024-03-02 12:34 UTC", "paydayReward", "2", "-"},
		{"9", "invalid", "bakerAdded", "-"},
	}
	for i, want := range checks {
		for _, field := range want {
			if !strings.Contains(lines[i], field) {
				t.Errorf("line %d %q missing %q", i, lines[i], field)
			}
		}
	}
}
