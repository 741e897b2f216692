package models

// UploadPreview is the non-destructive half of the two-step upload flow:
// what the staged file contains and whether it can be committed, plus the
// token that identifies the staged bytes on confirm.
type UploadPreview struct {
	Token       string   `json:"token"`
	Dataset     string   `json:"dataset"`
	Tab         string   `json:"tab"`
	RowCount    int      `json:"row_count"`
	ColumnCount int      `json:"column_count"`
	Headers     []string `json:"headers"`
	SampleRows  []Row    `json:"sample_rows"`
	HasKeyCol   bool     `json:"has_key_column"`
}

// UploadResult reports a completed confirm step.
type UploadResult struct {
	Dataset     string `json:"dataset"`
	Tab         string `json:"tab"`
	RowsWritten int    `json:"rows_written"`
	ArchivedAs  string `json:"archived_as,omitempty"`
}
