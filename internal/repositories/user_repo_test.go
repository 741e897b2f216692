package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popdesk/internal/common"
	"popdesk/internal/models"
	"popdesk/internal/sheets"
)

// memStore is an in-memory sheet backend. failWrites queues one error per
// pending write attempt.
type memStore struct {
	tabs       map[string][][]string
	reads      int
	writes     int
	failWrites []error
}

func newMemStore() *memStore {
	return &memStore{tabs: make(map[string][][]string)}
}

func (s *memStore) ReadTab(ctx context.Context, sheetID, tab string) (*models.Snapshot, error) {
	s.reads++
	return sheets.BuildSnapshot(s.tabs[tab]), nil
}

func (s *memStore) WriteTab(ctx context.Context, sheetID, tab string, snap *models.Snapshot) error {
	return s.WriteTabStreaming(ctx, sheetID, tab, sheets.SliceRows(snap.Values()), 100)
}

func (s *memStore) WriteTabStreaming(ctx context.Context, sheetID, tab string, rows sheets.RowSource, batchRows int) error {
	s.writes++
	if len(s.failWrites) > 0 {
		err := s.failWrites[0]
		s.failWrites = s.failWrites[1:]
		if err != nil {
			return err
		}
	}
	var all [][]string
	for {
		row, ok := rows()
		if !ok {
			break
		}
		all = append(all, row)
	}
	s.tabs[tab] = all
	return nil
}

func seedUsersTab(s *memStore, rows ...[]string) {
	all := [][]string{models.UserColumns}
	all = append(all, rows...)
	s.tabs["Usuarios"] = all
}

func newTestRepo(s *memStore, clock clockwork.Clock) *userRepository {
	repo := NewUserRepository(s, "sheet-1", "Usuarios", time.Minute, clock).(*userRepository)
	repo.backoff = []time.Duration{0, 0, 0, 0}
	return repo
}

func TestLoadAllNormalizesAndFilters(t *testing.T) {
	store := newMemStore()
	seedUsersTab(store,
		[]string{"  Ana@Example.COM ", "Ana", "hash1", "admin", "TRUE", "2024-01-01T00:00:00Z", "", ""},
		[]string{"ana@example.com", "Duplicate", "hash2", "customer", "TRUE", "", "", ""},
		[]string{"", "No email", "hash3", "customer", "TRUE", "", "", ""},
		[]string{"bob@example.com", "Bob", "hash4", "customer", "FALSE", "", "", ""},
	)
	repo := newTestRepo(store, clockwork.NewFakeClock())

	users, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "ana@example.com", users[0].Email)
	assert.Equal(t, "Ana", users[0].Name)
	assert.True(t, users[0].IsActive)
	assert.Equal(t, "bob@example.com", users[1].Email)
	assert.False(t, users[1].IsActive)
}

func TestLoadAllUsesCacheWithinTTL(t *testing.T) {
	store := newMemStore()
	seedUsersTab(store, []string{"a@example.com", "A", "h", "customer", "TRUE", "", "", ""})
	clock := clockwork.NewFakeClock()
	repo := newTestRepo(store, clock)

	ctx := context.Background()
	_, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	_, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.reads)

	clock.Advance(61 * time.Second)
	_, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.reads)
}

func TestLoadAllReturnsCopies(t *testing.T) {
	store := newMemStore()
	seedUsersTab(store, []string{"a@example.com", "A", "h", "customer", "TRUE", "", "", ""})
	repo := newTestRepo(store, clockwork.NewFakeClock())

	ctx := context.Background()
	first, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", second[0].Name)
}

func TestReplaceAllWritesHeaderAndInvalidates(t *testing.T) {
	store := newMemStore()
	seedUsersTab(store, []string{"a@example.com", "A", "h", "customer", "TRUE", "", "", ""})
	repo := newTestRepo(store, clockwork.NewFakeClock())

	ctx := context.Background()
	users, err := repo.LoadAll(ctx)
	require.NoError(t, err)

	users = append(users, &models.User{Email: "b@example.com", Role: "customer", IsActive: true})
	require.NoError(t, repo.ReplaceAll(ctx, users))

	written := store.tabs["Usuarios"]
	require.Len(t, written, 3)
	assert.Equal(t, models.UserColumns, written[0])
	assert.Equal(t, "b@example.com", written[2][0])
	assert.Equal(t, "TRUE", written[2][4])

	// Cache was dropped by the write, so the next load refetches.
	reads := store.reads
	_, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, reads+1, store.reads)
}

func TestReplaceAllRetriesOnRateLimit(t *testing.T) {
	store := newMemStore()
	store.failWrites = []error{
		common.NewRateLimitError("update", errors.New("429")),
		common.NewRateLimitError("update", errors.New("429")),
	}
	repo := newTestRepo(store, clockwork.NewFakeClock())

	err := repo.ReplaceAll(context.Background(), []*models.User{
		{Email: "a@example.com", Role: "customer", IsActive: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.writes)
	require.Len(t, store.tabs["Usuarios"], 2)
}

func TestReplaceAllGivesUpAfterBackoffExhausted(t *testing.T) {
	store := newMemStore()
	rl := common.NewRateLimitError("update", errors.New("429"))
	store.failWrites = []error{rl, rl, rl, rl}
	repo := newTestRepo(store, clockwork.NewFakeClock())

	err := repo.ReplaceAll(context.Background(), nil)
	require.Error(t, err)

	var up *common.UpstreamError
	assert.ErrorAs(t, err, &up)
	assert.Equal(t, 4, store.writes)
}

func TestReplaceAllDoesNotRetryOtherErrors(t *testing.T) {
	store := newMemStore()
	boom := common.NewUpstreamError("update", errors.New("permission denied"))
	store.failWrites = []error{boom}
	repo := newTestRepo(store, clockwork.NewFakeClock())

	err := repo.ReplaceAll(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, store.writes)
}
