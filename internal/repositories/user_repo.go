package repositories

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"popdesk/internal/common"
	"popdesk/internal/models"
	"popdesk/internal/sheets"
)

// DefaultUserCacheTTL is the freshness window for the accounts tab read
// cache. Short, because account changes should be visible quickly.
const DefaultUserCacheTTL = 60 * time.Second

// UserRepository persists accounts on one spreadsheet tab. There are no
// row-level writes: every mutation loads the whole table, changes it in
// memory and rewrites it completely. Concurrent writers therefore race with
// last-writer-wins semantics; this repository assumes a single writer
// process.
type UserRepository interface {
	// LoadAll returns every valid account row, cached up to the TTL.
	// Callers get copies and may mutate them freely.
	LoadAll(ctx context.Context) ([]*models.User, error)
	// ReplaceAll rewrites the entire accounts tab, retrying rate-limited
	// writes with backoff, and drops the read cache.
	ReplaceAll(ctx context.Context, users []*models.User) error
	// Invalidate drops the read cache so the next LoadAll refetches.
	Invalidate()
}

type userRepository struct {
	store   sheets.Store
	sheetID string
	tab     string
	ttl     time.Duration
	clock   clockwork.Clock
	backoff []time.Duration
	batch   int

	mu        sync.Mutex
	cached    []*models.User
	fetchedAt time.Time
}

// NewUserRepository builds a repository for the accounts tab. A zero ttl
// means DefaultUserCacheTTL.
func NewUserRepository(store sheets.Store, sheetID, tab string, ttl time.Duration, clock clockwork.Clock) UserRepository {
	if ttl <= 0 {
		ttl = DefaultUserCacheTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &userRepository{
		store:   store,
		sheetID: sheetID,
		tab:     tab,
		ttl:     ttl,
		clock:   clock,
		backoff: []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second},
		batch:   5000,
	}
}

func (r *userRepository) LoadAll(ctx context.Context) ([]*models.User, error) {
	r.mu.Lock()
	if r.cached != nil && r.clock.Since(r.fetchedAt) < r.ttl {
		out := cloneUsers(r.cached)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	snap, err := r.store.ReadTab(ctx, r.sheetID, r.tab)
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, snap.RowCount())
	seen := make(map[string]bool, snap.RowCount())
	for _, row := range snap.Rows {
		u := models.UserFromRow(trimRow(row))
		u.Email = common.NormalizeEmail(u.Email)
		if u.Email == "" || seen[u.Email] {
			continue
		}
		seen[u.Email] = true
		users = append(users, u)
	}

	r.mu.Lock()
	r.cached = users
	r.fetchedAt = r.clock.Now()
	out := cloneUsers(users)
	r.mu.Unlock()
	return out, nil
}

func (r *userRepository) ReplaceAll(ctx context.Context, users []*models.User) error {
	// Invalidate before writing: even a failed write leaves the remote
	// state uncertain, so the next read must go to the backend.
	r.Invalidate()

	var lastErr error
	for _, delay := range r.backoff {
		rows := userRows(users)
		err := r.store.WriteTabStreaming(ctx, r.sheetID, r.tab, rows, r.batch)
		if err == nil {
			return nil
		}
		if !common.IsRateLimit(err) {
			return err
		}
		lastErr = err
		log.Printf("WARN: accounts tab write rate limited, backing off %s", delay)
		r.clock.Sleep(delay)
	}
	return common.NewUpstreamError("accounts rewrite", lastErr)
}

func (r *userRepository) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// userRows yields the header row followed by one row per account, in the
// order given.
func userRows(users []*models.User) sheets.RowSource {
	i := -1
	return func() ([]string, bool) {
		i++
		if i == 0 {
			header := make([]string, len(models.UserColumns))
			copy(header, models.UserColumns)
			return header, true
		}
		if i > len(users) {
			return nil, false
		}
		return users[i-1].ToCells(), true
	}
}

func cloneUsers(users []*models.User) []*models.User {
	out := make([]*models.User, len(users))
	for i, u := range users {
		out[i] = u.Clone()
	}
	return out
}

func trimRow(row models.Row) models.Row {
	out := make(models.Row, len(row))
	for k, v := range row {
		out[k] = strings.TrimSpace(v)
	}
	return out
}
