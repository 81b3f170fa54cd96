package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/shopspring/decimal"
)

// CSVHeader is the column layout of the export file.
var CSVHeader = []string{"Date", "Amount", "Currency", "Label", "TxHash"}

// WriteCSV writes rows with a header line to w.
func WriteCSV(w io.Writer, rows []domain.ExportRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	for i, r := range rows {
		record := []string{r.Date, r.Amount.String(), r.Currency, string(r.Label), r.TxHash}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteCSV: row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}

// ReadCSV parses a file produced by WriteCSV back into rows.
func ReadCSV(r io.Reader) ([]domain.ExportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("ReadCSV: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(CSVHeader, ",") {
		return nil, fmt.Errorf("ReadCSV: unexpected header %q", header)
	}

	var rows []domain.ExportRow
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: line %d: %w", line, err)
		}
		amount, err := decimal.NewFromString(record[1])
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: line %d: amount %q: %w", line, record[1], err)
		}
		rows = append(rows, domain.ExportRow{
			Date:     record[0],
			Amount:   amount,
			Currency: record[2],
			Label:    domain.Label(record[3]),
			TxHash:   record[4],
		})
	}
	return rows, nil
}
