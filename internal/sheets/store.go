// Package sheets talks to the remote spreadsheet backend. Reads produce
// immutable snapshots; writes always overwrite a whole tab.
package sheets

import (
	"context"

	"popdesk/internal/models"
	"popdesk/internal/normalize"
)

// RowSource yields successive raw rows, header row first. It returns false
// once exhausted. Writers consume a source exactly once; retrying callers
// must build a fresh one per attempt.
type RowSource func() ([]string, bool)

// Store is the spreadsheet backend as the rest of the system sees it: read
// a tab into a snapshot, or overwrite a tab completely. There are no
// row-level updates.
type Store interface {
	ReadTab(ctx context.Context, sheetID, tab string) (*models.Snapshot, error)
	WriteTab(ctx context.Context, sheetID, tab string, snap *models.Snapshot) error
	WriteTabStreaming(ctx context.Context, sheetID, tab string, rows RowSource, batchRows int) error
}

// SliceRows adapts an in-memory row slice into a RowSource.
func SliceRows(rows [][]string) RowSource {
	i := 0
	return func() ([]string, bool) {
		if i >= len(rows) {
			return nil, false
		}
		row := rows[i]
		i++
		return row, true
	}
}

// BuildSnapshot turns raw cell values (header row first) into a snapshot:
// headers deduplicated, every data row padded or truncated to the header
// count. Empty input yields an empty snapshot, not nil rows per header.
func BuildSnapshot(values [][]string) *models.Snapshot {
	if len(values) == 0 {
		return &models.Snapshot{Headers: []string{}, Rows: []models.Row{}}
	}

	headers := normalize.DedupeHeaders(values[0])
	rows := make([]models.Row, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := make(models.Row, len(headers))
		for i, h := range headers {
			if i < len(raw) {
				row[h] = raw[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return &models.Snapshot{Headers: headers, Rows: rows}
}
