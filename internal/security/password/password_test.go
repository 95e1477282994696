package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig keeps hashing cheap.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := cfg.Verify(h, "correct horse battery")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cfg.Verify(h, "wrong horse battery")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	cfg := testConfig()

	a, err := cfg.Hash("same password")
	require.NoError(t, err)
	b, err := cfg.Hash("same password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidateLength(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLength = 12

	assert.ErrorIs(t, cfg.Validate("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, cfg.Validate("much too long for it"), ErrPasswordTooLong)
	assert.NoError(t, cfg.Validate("just right"))

	_, err := cfg.Hash("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	cfg := testConfig()

	for _, h := range []string{
		"",
		"not-a-hash",
		"5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8", // legacy sha256
		"$2b$10$abcdefghijklmnopqrstuv",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		ok, err := cfg.Verify(h, "whatever")
		assert.False(t, ok, h)
		assert.ErrorIs(t, err, ErrInvalidHash, h)
		assert.False(t, cfg.VerifyCredential(h, "whatever"), h)
	}
}

func TestVerifyCredential(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("library card 42")
	require.NoError(t, err)
	assert.True(t, cfg.VerifyCredential(h, "library card 42"))
	assert.False(t, cfg.VerifyCredential(h, "library card 43"))
}
