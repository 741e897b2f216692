package staging

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(15*time.Minute, clockwork.NewFakeClock())

	payload := []byte("PK\x03\x04 workbook bytes")
	token, err := s.Save(payload)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, ok := s.Load(token)
	assert.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestSaveCopiesPayload(t *testing.T) {
	s := New(0, clockwork.NewFakeClock())

	payload := []byte("original")
	token, err := s.Save(payload)
	require.NoError(t, err)

	payload[0] = 'X'
	got, ok := s.Load(token)
	require.True(t, ok)
	assert.Equal(t, []byte("original"), got)
}

func TestLoadReturnsCopy(t *testing.T) {
	s := New(0, clockwork.NewFakeClock())

	token, err := s.Save([]byte("original"))
	require.NoError(t, err)

	got, ok := s.Load(token)
	require.True(t, ok)
	got[0] = 'X'

	again, ok := s.Load(token)
	require.True(t, ok)
	assert.Equal(t, []byte("original"), again)
}

func TestLoadUnknownToken(t *testing.T) {
	s := New(15*time.Minute, clockwork.NewFakeClock())

	_, ok := s.Load("no-such-token")
	assert.False(t, ok)
}

func TestLoadAfterExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(15*time.Minute, clock)

	token, err := s.Save([]byte("data"))
	require.NoError(t, err)

	clock.Advance(15*time.Minute + time.Second)
	_, ok := s.Load(token)
	assert.False(t, ok)
	// Expired entry is removed eagerly on access.
	assert.Equal(t, 0, s.Len())
}

func TestConsumeThenLoad(t *testing.T) {
	s := New(15*time.Minute, clockwork.NewFakeClock())

	token, err := s.Save([]byte("data"))
	require.NoError(t, err)

	s.Consume(token)
	_, ok := s.Load(token)
	assert.False(t, ok)
}

func TestPurgeExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(10*time.Minute, clock)

	old, err := s.Save([]byte("old"))
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	fresh, err := s.Save([]byte("fresh"))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	removed := s.PurgeExpired()

	assert.Equal(t, 1, removed)
	_, ok := s.Load(old)
	assert.False(t, ok)
	_, ok = s.Load(fresh)
	assert.True(t, ok)
}

func TestTokensAreUnique(t *testing.T) {
	s := New(time.Minute, clockwork.NewFakeClock())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := s.Save([]byte("x"))
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}
