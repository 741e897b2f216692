package models

// Row maps a deduplicated header name to the cell value in that column.
type Row map[string]string

// Snapshot is an in-memory copy of one spreadsheet tab: an ordered header
// row plus its data rows. Every row holds exactly one value per header.
// Snapshots are immutable once built; a stale snapshot is replaced, never
// patched.
type Snapshot struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// RowCount returns the number of data rows (the header row is not counted).
func (s *Snapshot) RowCount() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// ColumnCount returns the number of deduplicated headers.
func (s *Snapshot) ColumnCount() int {
	if s == nil {
		return 0
	}
	return len(s.Headers)
}

// Values flattens the snapshot back into raw cell values, header row first,
// in header order. Missing cells come out as empty strings.
func (s *Snapshot) Values() [][]string {
	if s == nil {
		return nil
	}
	out := make([][]string, 0, len(s.Rows)+1)
	header := make([]string, len(s.Headers))
	copy(header, s.Headers)
	out = append(out, header)
	for _, row := range s.Rows {
		cells := make([]string, len(s.Headers))
		for i, h := range s.Headers {
			cells[i] = row[h]
		}
		out = append(out, cells)
	}
	return out
}
