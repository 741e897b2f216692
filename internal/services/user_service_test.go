package services

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popdesk/internal/common"
	"popdesk/internal/models"
	"popdesk/internal/repositories"
	"popdesk/internal/sheets"
)

// memStore is an in-memory sheet backend shared by the service tests.
type memStore struct {
	tabs       map[string][][]string
	writes     int
	failWrites []error
}

func newMemStore() *memStore {
	return &memStore{tabs: make(map[string][][]string)}
}

func (s *memStore) ReadTab(ctx context.Context, sheetID, tab string) (*models.Snapshot, error) {
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

func newUserFixture(t *testing.T) (UserService, *memStore, *clockwork.FakeClock) {
	t.Helper()
	store := newMemStore()
	store.tabs["Usuarios"] = [][]string{models.UserColumns}
	clock := clockwork.NewFakeClock()
	repo := repositories.NewUserRepository(store, "sheet-1", "Usuarios", time.Minute, clock)
	return NewUserService(repo, clock), store, clock
}

func TestCreateAndGet(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, "  Ana@Example.COM ", "supersecret", " Ana ", "admin")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "supersecret", user.PasswordHash)

	got, err := svc.Get(ctx, "ANA@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ana@example.com", got.Email)
}

func TestGetUnknownReturnsNil(t *testing.T) {
	svc, _, _ := newUserFixture(t)

	got, err := svc.Get(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateRejectsDuplicateEmailVariants(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ana@example.com", "supersecret", "Ana", "customer")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "  ANA@Example.com ", "otherpassword", "Ana 2", "customer")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "not-an-email", "supersecret", "", "customer")
	assert.True(t, common.IsValidation(err))

	_, err = svc.Create(ctx, "ok@example.com", "short", "", "customer")
	assert.True(t, common.IsValidation(err))

	// Unknown roles fall back to customer instead of failing.
	user, err := svc.Create(ctx, "ok@example.com", "supersecret", "", "superuser")
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, user.Role)
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ana@example.com", "supersecret", "Ana", "customer")
	require.NoError(t, err)

	assert.True(t, svc.Authenticate(ctx, "Ana@Example.com", "supersecret"))
	assert.False(t, svc.Authenticate(ctx, "ana@example.com", "wrong"))
	assert.False(t, svc.Authenticate(ctx, "ghost@example.com", "supersecret"))
}

func TestAuthenticateDeactivatedAccount(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ana@example.com", "supersecret", "Ana", "customer")
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, "ana@example.com"))

	// Correct password, but the account is soft-deleted.
	assert.False(t, svc.Authenticate(ctx, "ana@example.com", "supersecret"))

	// The row is retained, not removed.
	got, err := svc.Get(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsActive)
}

func TestUpdateUnknownUser(t *testing.T) {
	svc, _, _ := newUserFixture(t)

	name := "New Name"
	_, err := svc.Update(context.Background(), "ghost@example.com", UserUpdate{Name: &name})
	require.Error(t, err)
	assert.True(t, common.IsNotFound(err))
}

func TestUpdateRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ana@example.com", "supersecret", "Ana", "customer")
	require.NoError(t, err)

	role := "root"
	_, err = svc.Update(ctx, "ana@example.com", UserUpdate{Role: &role})
	assert.True(t, common.IsValidation(err))
}

func TestStartPasswordResetUnknownEmail(t *testing.T) {
	svc, _, _ := newUserFixture(t)

	token, err := svc.StartPasswordReset(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ana@example.com", "oldpassword", "Ana", "customer")
	require.NoError(t, err)

	token, err := svc.StartPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	email, err := svc.CompletePasswordReset(ctx, token, "newpassword")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", email)

	assert.True(t, svc.Authenticate(ctx, "ana@example.com", "newpassword"))
	assert.False(t, svc.Authenticate(ctx, "ana@example.com", "oldpassword"))

	// The token is single-use.
	_, err = svc.CompletePasswordReset(ctx, token, "anotherpassword")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestPasswordResetLatestTokenWins(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ana@example.com", "oldpassword", "Ana", "customer")
	require.NoError(t, err)

	first, err := svc.StartPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	second, err := svc.StartPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = svc.CompletePasswordReset(ctx, first, "newpassword")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = svc.CompletePasswordReset(ctx, second, "newpassword")
	require.NoError(t, err)
}

func TestPasswordResetExpiredToken(t *testing.T) {
	svc, _, clock := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ana@example.com", "oldpassword", "Ana", "customer")
	require.NoError(t, err)

	token, err := svc.StartPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)

	clock.Advance(ResetTokenTTL + time.Minute)

	_, err = svc.CompletePasswordReset(ctx, token, "newpassword")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.True(t, svc.Authenticate(ctx, "ana@example.com", "oldpassword"))
}

func TestCompletePasswordResetShortPassword(t *testing.T) {
	svc, _, _ := newUserFixture(t)

	_, err := svc.CompletePasswordReset(context.Background(), "sometoken", "short")
	assert.True(t, common.IsValidation(err))
}

func TestSetPasswordClearsPendingReset(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ana@example.com", "oldpassword", "Ana", "customer")
	require.NoError(t, err)

	token, err := svc.StartPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(ctx, "ana@example.com", "newpassword"))

	_, err = svc.CompletePasswordReset(ctx, token, "anotherpassword")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.True(t, svc.Authenticate(ctx, "ana@example.com", "newpassword"))
}
