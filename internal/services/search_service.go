package services

import (
	"context"
	"strings"

	"popdesk/internal/caching"
	"popdesk/internal/models"
	"popdesk/internal/normalize"
)

// Dataset names one searchable tab of the spreadsheet.
type Dataset struct {
	Name string `json:"name" toml:"name"`
	Tab  string `json:"tab" toml:"tab"`
}

// DatasetResult is the filtered rows of one dataset for a lookup.
type DatasetResult struct {
	Dataset string       `json:"dataset"`
	Tab     string       `json:"tab"`
	Columns []string     `json:"columns"`
	Rows    []models.Row `json:"rows"`
}

// SearchService answers POP-code lookups across every configured dataset.
type SearchService interface {
	Datasets() []Dataset
	// Lookup returns one result per dataset, in configuration order. A code
	// with no matches anywhere still succeeds with empty row sets.
	Lookup(ctx context.Context, code string, exclude []string) ([]DatasetResult, error)
}

type searchService struct {
	cache    *caching.SnapshotCache
	sheetID  string
	datasets []Dataset
	resolver normalize.Resolver
}

// NewSearchService creates a lookup service over the snapshot cache.
func NewSearchService(cache *caching.SnapshotCache, sheetID string, datasets []Dataset) SearchService {
	return &searchService{
		cache:    cache,
		sheetID:  sheetID,
		datasets: datasets,
		resolver: normalize.POPColumn(),
	}
}

func (s *searchService) Datasets() []Dataset {
	out := make([]Dataset, len(s.datasets))
	copy(out, s.datasets)
	return out
}

func (s *searchService) Lookup(ctx context.Context, code string, exclude []string) ([]DatasetResult, error) {
	results := make([]DatasetResult, 0, len(s.datasets))
	for _, ds := range s.datasets {
		snap, err := s.cache.Get(ctx, s.sheetID, ds.Tab)
		if err != nil {
			return nil, err
		}
		rows := Filter(snap, code, exclude, s.resolver)
		results = append(results, DatasetResult{
			Dataset: ds.Name,
			Tab:     ds.Tab,
			Columns: keptColumns(snap.Headers, exclude),
			Rows:    rows,
		})
	}
	return results, nil
}

// Filter selects the snapshot rows whose POP column matches code. The
// column is located by the resolver; when the snapshot has no POP-like
// column at all the result is simply empty, never an error. Matching folds
// both sides (case, whitespace, diacritics); output cells keep their
// original casing but are trimmed, have newlines collapsed to single spaces
// and come out as "" when missing. Row order follows the snapshot.
func Filter(snap *models.Snapshot, code string, exclude []string, resolver normalize.Resolver) []models.Row {
	out := []models.Row{}
	if snap == nil {
		return out
	}

	column, ok := resolver.Resolve(snap.Headers)
	if !ok {
		return out
	}

	target := normalize.Fold(code)
	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[normalize.Fold(name)] = true
	}

	for _, row := range snap.Rows {
		if normalize.Fold(row[column]) != target {
			continue
		}
		cleaned := make(models.Row, len(snap.Headers))
		for _, h := range snap.Headers {
			if excluded[normalize.Fold(h)] {
				continue
			}
			cleaned[h] = cleanCell(row[h])
		}
		out = append(out, cleaned)
	}
	return out
}

func keptColumns(headers []string, exclude []string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[normalize.Fold(name)] = true
	}
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if !excluded[normalize.Fold(h)] {
			out = append(out, h)
		}
	}
	return out
}

// cleanCell trims and flattens a cell for output: internal newlines become
// single spaces, absent values become empty strings.
func cleanCell(v string) string {
	v = strings.ReplaceAll(v, "\r\n", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.TrimSpace(v)
}
