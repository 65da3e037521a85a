package export

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// SheetsExporter appends consultation rows to a Google Sheet. Credentials
// come from application-default credentials, same as the other Google
// clients.
type SheetsExporter struct {
	svc           *sheets.Service
	spreadsheetID string
}

func NewSheetsExporter(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*SheetsExporter, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &SheetsExporter{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (e *SheetsExporter) AppendRow(ctx context.Context, callID uint, question, response string) error {
	body := &sheets.ValueRange{
		Values: [][]interface{}{{callID, question, response}},
	}
	_, err := e.svc.Spreadsheets.Values.
		Append(e.spreadsheetID, "A1", body).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: append to %s: %w", e.spreadsheetID, err)
	}
	return nil
}
