package security_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/security"
)

var cheap = config.PasswordConfig{ArgonMemoryKB: 8192, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

func TestHashRoundTrip(t *testing.T) {
	hash, err := security.HashPassword("kasir-toko-123", cheap)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), hash)

	again, err := security.HashPassword("kasir-toko-123", cheap)
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salts differ per hash")

	for password, want := range map[string]bool{
		"kasir-toko-123":  true,
		"kasir-toko-1234": false,
		"":                false,
	} {
		ok, err := security.VerifyPassword(password, hash)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "password %q", password)
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	_, err := security.HashPassword("", cheap)
	assert.Error(t, err)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$!!",
	} {
		_, err := security.VerifyPassword("irrelevant", encoded)
		assert.ErrorIs(t, err, security.ErrInvalidHash, encoded)
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, err := security.HashPassword("store-owner-pass", cheap)
	require.NoError(t, err)
	assert.False(t, security.NeedsRehash(hash, cheap))

	stronger := cheap
	stronger.ArgonTime = 2
	assert.True(t, security.NeedsRehash(hash, stronger))

	longerKey := cheap
	longerKey.ArgonKeyLen = 64
	assert.True(t, security.NeedsRehash(hash, longerKey))

	assert.True(t, security.NeedsRehash("$argon2id$v=19$m=x$salt$key", cheap))
}
