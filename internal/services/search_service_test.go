package services

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popdesk/internal/caching"
	"popdesk/internal/models"
	"popdesk/internal/normalize"
	"popdesk/internal/sheets"
)

func snapFrom(rows [][]string) *models.Snapshot {
	return sheets.BuildSnapshot(rows)
}

func TestFilterFoldsBothSides(t *testing.T) {
	snap := snapFrom([][]string{
		{"POP", "X"},
		{"  abc ", "1"},
		{"XYZ", "2"},
	})

	got := Filter(snap, "ABC", nil, normalize.POPColumn())
	require.Len(t, got, 1)
	assert.Equal(t, models.Row{"POP": "abc", "X": "1"}, got[0])
}

func TestFilterDiacritics(t *testing.T) {
	snap := snapFrom([][]string{
		{"Pop Asignado", "Nodo"},
		{"José", "n1"},
		{"otro", "n2"},
	})

	got := Filter(snap, "jose", nil, normalize.POPColumn())
	require.Len(t, got, 1)
	assert.Equal(t, "n1", got[0]["Nodo"])
}

func TestFilterNoPOPColumn(t *testing.T) {
	snap := snapFrom([][]string{
		{"Nombre", "Ciudad"},
		{"abc", "x"},
	})

	got := Filter(snap, "abc", nil, normalize.POPColumn())
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestFilterExcludesColumns(t *testing.T) {
	snap := snapFrom([][]string{
		{"POP", "Secreto", "Nodo"},
		{"abc", "hide-me", "n1"},
	})

	got := Filter(snap, "abc", []string{" secreto "}, normalize.POPColumn())
	require.Len(t, got, 1)
	_, present := got[0]["Secreto"]
	assert.False(t, present)
	assert.Equal(t, "n1", got[0]["Nodo"])
}

func TestFilterCollapsesNewlines(t *testing.T) {
	snap := snapFrom([][]string{
		{"POP", "Notas"},
		{"abc", "linea 1\r\nlinea 2\nfin"},
	})

	got := Filter(snap, "abc", nil, normalize.POPColumn())
	require.Len(t, got, 1)
	assert.Equal(t, "linea 1 linea 2 fin", got[0]["Notas"])
}

func TestFilterPreservesRowOrder(t *testing.T) {
	snap := snapFrom([][]string{
		{"POP", "N"},
		{"abc", "1"},
		{"zzz", "2"},
		{"ABC", "3"},
		{"abc ", "4"},
	})

	got := Filter(snap, "abc", nil, normalize.POPColumn())
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0]["N"])
	assert.Equal(t, "3", got[1]["N"])
	assert.Equal(t, "4", got[2]["N"])
}

func TestLookupAcrossDatasets(t *testing.T) {
	store := newMemStore()
	store.tabs["Bases POP"] = [][]string{
		{"POP", "Ciudad"},
		{"abc", "Quito"},
	}
	store.tabs["Directorio"] = [][]string{
		{"Nombre", "Pop"},
		{"Tecnico 1", "ABC"},
		{"Tecnico 2", "other"},
	}
	cache := caching.NewSnapshotCache(store, time.Hour, clockwork.NewFakeClock())
	svc := NewSearchService(cache, "sheet-1", []Dataset{
		{Name: "bases", Tab: "Bases POP"},
		{Name: "directorio", Tab: "Directorio"},
	})

	results, err := svc.Lookup(context.Background(), "abc", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "bases", results[0].Dataset)
	assert.Equal(t, []string{"POP", "Ciudad"}, results[0].Columns)
	require.Len(t, results[0].Rows, 1)
	assert.Equal(t, "Quito", results[0].Rows[0]["Ciudad"])

	assert.Equal(t, "directorio", results[1].Dataset)
	require.Len(t, results[1].Rows, 1)
	assert.Equal(t, "Tecnico 1", results[1].Rows[0]["Nombre"])
}

func TestLookupNoMatchesStillSucceeds(t *testing.T) {
	store := newMemStore()
	store.tabs["Bases POP"] = [][]string{
		{"POP", "Ciudad"},
		{"abc", "Quito"},
	}
	cache := caching.NewSnapshotCache(store, time.Hour, clockwork.NewFakeClock())
	svc := NewSearchService(cache, "sheet-1", []Dataset{{Name: "bases", Tab: "Bases POP"}})

	results, err := svc.Lookup(context.Background(), "nope", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Rows)
}
