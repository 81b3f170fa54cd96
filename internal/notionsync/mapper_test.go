package notionsync

import (
	"testing"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/jomei/notionapi"
)

func TestRowKey(t *testing.T) {
	tests := []struct {
		name string
		row  domain.ExportRow
		want string
	}{
		{
			name: "principal with hash",
			row:  domain.ExportRow{Date: "2024-03-01 12:34 UTC", Amount: domain.MicroCCDToCCD(-4000), TxHash: "h12"},
			want: "h12:principal",
		},
		{
			name: "fee with hash",
			row:  domain.ExportRow{Date: "2024-03-01 12:34 UTC", Amount: domain.MicroCCDToCCD(-1000), Label: domain.LabelFee, TxHash: "h12"},
			want: "h12:fee",
		},
		{
			name: "reward without hash",
			row:  domain.ExportRow{Date: "2024-03-02 00:00 UTC", Amount: domain.MicroCCDToCCD(2500000), Label: domain.LabelMining},
			want: "2024-03-02 00:00 UTC:2.5:mining",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RowKey(tt.row); got != tt.want {
				t.Errorf("RowKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExportRowToNotionProperties(t *testing.T) {
	row := domain.ExportRow{
		Date:     "2024-03-01 12:34 UTC",
		Amount:   domain.MicroCCDToCCD(-1000),
		Currency: "CCD",
		Label:    domain.LabelFee,
		TxHash:   "h12",
	}

	props := ExportRowToNotionProperties(row, "run-1")

	title, ok := props[PropKey].(notionapi.TitleProperty)
	if !ok || title.Title[0].Text.Content != "h12:fee" {
		t.Errorf("unexpected key property %#v", props[PropKey])
	}
	amount, ok := props[PropAmount].(notionapi.NumberProperty)
	if !ok || amount.Number != -0.001 {
		t.Errorf("unexpected amount property %#v", props[PropAmount])
	}
	date, ok := props[PropDate].(notionapi.DateProperty)
	if !ok {
		t.Fatalf("missing date property")
	}
	if got := time.Time(*date.Date.Start); !got.Equal(time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC)) {
		t.Errorf("date = %v", got)
	}
	if label, ok := props[PropLabel].(notionapi.SelectProperty); !ok || label.Select.Name != "fee" {
		t.Errorf("unexpected label property %#v", props[PropLabel])
	}
	if _, ok := props[PropRunID]; !ok {
		t.Error("expected run ID property")
	}
}

func TestExportRowToNotionProperties_OmitsEmptyFields(t *testing.T) {
	row := domain.ExportRow{Date: "not a date", Amount: domain.MicroCCDToCCD(1), Currency: "CCD"}

	props := ExportRowToNotionProperties(row, "")

	for _, name := range []string{PropLabel, PropTxHash, PropRunID, PropDate} {
		if _, ok := props[name]; ok {
			t.Errorf("property %q should be omitted", name)
		}
	}
}
