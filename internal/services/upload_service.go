package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xuri/excelize/v2"

	"popdesk/internal/caching"
	"popdesk/internal/common"
	"popdesk/internal/models"
	"popdesk/internal/normalize"
	"popdesk/internal/sheets"
	"popdesk/internal/staging"
)

// PreviewSampleRows is how many data rows Preview returns for inspection.
const PreviewSampleRows = 5

// UploadService runs the two-phase replacement flow for a dataset tab.
// Preview stages the uploaded bytes and reports what they contain; Confirm
// is the only step that touches the remote backend.
type UploadService interface {
	Datasets() []Dataset
	Preview(ctx context.Context, dataset, filename string, data []byte) (*models.UploadPreview, error)
	Confirm(ctx context.Context, dataset, token string) (*models.UploadResult, error)
}

type uploadService struct {
	store    sheets.Store
	cache    *caching.SnapshotCache
	staging  *staging.Store
	archive  ArchiveService // may be nil when object storage is not configured
	sheetID  string
	datasets []Dataset
	resolver normalize.Resolver
	clock    clockwork.Clock
	backoff  []time.Duration
}

// NewUploadService wires the upload flow. archive may be nil; confirmed
// payloads are then simply not archived.
func NewUploadService(store sheets.Store, cache *caching.SnapshotCache, stage *staging.Store,
	archive ArchiveService, sheetID string, datasets []Dataset, clock clockwork.Clock) UploadService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &uploadService{
		store:    store,
		cache:    cache,
		staging:  stage,
		archive:  archive,
		sheetID:  sheetID,
		datasets: datasets,
		resolver: normalize.POPColumn(),
		clock:    clock,
		backoff:  []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second},
	}
}

func (s *uploadService) Datasets() []Dataset {
	out := make([]Dataset, len(s.datasets))
	copy(out, s.datasets)
	return out
}

func (s *uploadService) Preview(ctx context.Context, dataset, filename string, data []byte) (*models.UploadPreview, error) {
	s.staging.PurgeExpired()

	ds, err := s.dataset(dataset)
	if err != nil {
		return nil, err
	}
	if err := validateExtension(filename); err != nil {
		return nil, err
	}

	values, err := parseWorkbook(filename, data)
	if err != nil {
		return nil, common.NewValidationError("file", err.Error())
	}
	if len(values) == 0 {
		return nil, common.NewValidationError("file", "the uploaded file has no rows")
	}

	snap := sheets.BuildSnapshot(values)
	_, hasKey := s.resolver.Resolve(snap.Headers)

	token, err := s.staging.Save(data)
	if err != nil {
		return nil, err
	}

	sample := snap.Rows
	if len(sample) > PreviewSampleRows {
		sample = sample[:PreviewSampleRows]
	}

	return &models.UploadPreview{
		Token:       token,
		Dataset:     ds.Name,
		Tab:         ds.Tab,
		RowCount:    snap.RowCount(),
		ColumnCount: snap.ColumnCount(),
		Headers:     snap.Headers,
		SampleRows:  sample,
		HasKeyCol:   hasKey,
	}, nil
}

func (s *uploadService) Confirm(ctx context.Context, dataset, token string) (*models.UploadResult, error) {
	s.staging.PurgeExpired()

	ds, err := s.dataset(dataset)
	if err != nil {
		return nil, err
	}

	data, ok := s.staging.Load(token)
	if !ok {
		// Recoverable: the client re-uploads and previews again. No write
		// has happened.
		return nil, common.NewNotFoundError("upload token")
	}

	values, err := parseWorkbook(guessName(data), data)
	if err != nil {
		return nil, common.NewValidationError("file", err.Error())
	}

	if err := s.writeWithRetry(ctx, ds.Tab, values); err != nil {
		return nil, err
	}

	s.cache.Invalidate(s.sheetID, ds.Tab)
	s.staging.Consume(token)

	result := &models.UploadResult{
		Dataset:     ds.Name,
		Tab:         ds.Tab,
		RowsWritten: len(values),
	}
	if s.archive != nil {
		object, err := s.archive.StoreUpload(ctx, ds.Name, data)
		if err != nil {
			log.Printf("WARN: failed to archive confirmed upload for %s: %v", ds.Name, err)
		} else {
			result.ArchivedAs = object
		}
	}
	return result, nil
}

// writeWithRetry performs the destructive overwrite, retrying only
// rate-limited failures with 0/1/2/4s backoff. Anything else propagates
// immediately.
func (s *uploadService) writeWithRetry(ctx context.Context, tab string, values [][]string) error {
	var lastErr error
	for _, delay := range s.backoff {
		err := s.store.WriteTabStreaming(ctx, s.sheetID, tab, sheets.SliceRows(values), 800)
		if err == nil {
			return nil
		}
		if !common.IsRateLimit(err) {
			return err
		}
		lastErr = err
		log.Printf("WARN: tab %q write rate limited, backing off %s", tab, delay)
		s.clock.Sleep(delay)
	}
	return common.NewUpstreamError("tab rewrite", lastErr)
}

func (s *uploadService) dataset(name string) (Dataset, error) {
	for _, ds := range s.datasets {
		if ds.Name == name {
			return ds, nil
		}
	}
	return Dataset{}, common.NewValidationError("dataset", fmt.Sprintf("unknown dataset %q", name))
}

var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".csv":  true,
}

func validateExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return common.NewValidationError("file", fmt.Sprintf("unsupported file type %q; upload .xlsx, .xlsm or .csv", ext))
	}
	return nil
}

// parseWorkbook extracts raw rows from an uploaded file, header row first.
func parseWorkbook(filename string, data []byte) ([][]string, error) {
	if strings.ToLower(filepath.Ext(filename)) == ".csv" {
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %v", err)
		}
		return records, nil
	}

	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %v", err)
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no worksheet found")
	}
	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet: %v", err)
	}
	return rows, nil
}

// guessName picks a synthetic filename for re-parsing staged bytes: CSV
// content has no zip signature.
func guessName(data []byte) string {
	if len(data) >= 2 && data[0] == 'P' && data[1] == 'K' {
		return "staged.xlsx"
	}
	return "staged.csv"
}
