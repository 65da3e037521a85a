package export

import "context"

// Exporter mirrors finalized consultation rows to an external spreadsheet for
// the practice staff. Export is best-effort: the durable record of truth is
// the responses table.
type Exporter interface {
	AppendRow(ctx context.Context, callID uint, question, response string) error
}
