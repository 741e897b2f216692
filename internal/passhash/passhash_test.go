package passhash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h, err := Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h, "$sha256-bcrypt$"))

	assert.True(t, Verify("correct horse battery staple", h))
	assert.False(t, Verify("wrong password", h))
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := Hash("samepassword")
	require.NoError(t, err)
	h2, err := Hash("samepassword")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestLongPasswordsAreNotTruncated(t *testing.T) {
	// Plain bcrypt only reads 72 bytes; the prehash scheme must distinguish
	// passwords that differ past that boundary.
	base := strings.Repeat("a", 72)
	h, err := Hash(base + "tail-one")
	require.NoError(t, err)

	assert.True(t, Verify(base+"tail-one", h))
	assert.False(t, Verify(base+"tail-two", h))
}

func TestVerifyLegacyBcryptFallback(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.DefaultCost)
	require.NoError(t, err)

	assert.True(t, Verify("oldpassword", string(legacy)))
	assert.False(t, Verify("notit", string(legacy)))
}

func TestVerifyGarbageHash(t *testing.T) {
	assert.False(t, Verify("whatever", ""))
	assert.False(t, Verify("whatever", "not-a-hash"))
	assert.False(t, Verify("whatever", "$sha256-bcrypt$mangled"))
}
