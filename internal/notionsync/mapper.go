package notionsync

import (
	"strings"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the export database.
const (
	PropKey      = "Key"
	PropDate     = "Date"
	PropAmount   = "Amount"
	PropCurrency = "Currency"
	PropLabel    = "Label"
	PropTxHash   = "Tx Hash"
	PropRunID    = "Run ID"
)

// RowKey identifies an export row independently of the run that produced it.
// Rows with a transaction hash are keyed by hash and label, since a hash yields
// at most one principal and one fee row. Rows without a hash (rewards) fall
// back to date, amount and label.
func RowKey(row domain.ExportRow) string {
	label := string(row.Label)
	if label == "" {
		label = "principal"
	}
	if row.TxHash != "" {
		return row.TxHash + ":" + label
	}
	return strings.Join([]string{row.Date, row.Amount.String(), label}, ":")
}

// ExportRowToNotionProperties converts an export row to Notion properties.
func ExportRowToNotionProperties(row domain.ExportRow, runID string) notionapi.Properties {
	amount, _ := row.Amount.Float64()

	props := notionapi.Properties{
		PropKey: notionapi.TitleProperty{
			Title: richText(RowKey(row)),
		},
		PropAmount: notionapi.NumberProperty{
			Number: amount,
		},
		PropCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: row.Currency},
		},
	}

	if t, err := time.Parse(domain.DateLayout, row.Date); err == nil {
		d := notionapi.Date(t)
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	if row.Label != domain.LabelNone {
		props[PropLabel] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(row.Label)},
		}
	}

	if row.TxHash != "" {
		props[PropTxHash] = notionapi.RichTextProperty{
			RichText: richText(row.TxHash),
		}
	}

	if runID != "" {
		props[PropRunID] = notionapi.RichTextProperty{
			RichText: richText(runID),
		}
	}

	return props
}

// extractRowKey reads the row key from a Notion page. Returns "" when absent.
func extractRowKey(page notionapi.Page) string {
	prop, ok := page.Properties[PropKey]
	if !ok {
		return ""
	}
	if title, ok := prop.(*notionapi.TitleProperty); ok && len(title.Title) > 0 {
		return title.Title[0].PlainText
	}
	return ""
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}
