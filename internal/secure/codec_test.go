package secure

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		plaintext string
		secret    string
	}{
		{"ascii", "I slept badly again last night.", "user@example.com"},
		{"unicode", "今日はとても疲れた 😔", "ユーザー@example.jp"},
		{"single byte", "x", "s"},
		{"long", strings.Repeat("journal entry ", 512), "someone@example.org"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env, err := Encrypt(tc.plaintext, tc.secret)
			require.NoError(t, err)

			got, err := Decrypt(env, tc.secret)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, got)
		})
	}
}

func TestEncryptUsesFreshSaltAndNonce(t *testing.T) {
	t.Parallel()

	a, err := Encrypt("same text", "user@example.com")
	require.NoError(t, err)
	b, err := Encrypt("same text", "user@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	rawA, _ := base64.StdEncoding.DecodeString(a)
	rawB, _ := base64.StdEncoding.DecodeString(b)
	assert.NotEqual(t, rawA[:headerSize], rawB[:headerSize])
}

func TestEnvelopeLayout(t *testing.T) {
	t.Parallel()

	header := bytes.Repeat([]byte{0x42}, headerSize)
	env, err := encryptWithReader(bytes.NewReader(header), "hello", "secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(env)
	require.NoError(t, err)
	require.Len(t, raw, headerSize+len("hello")+tagSize)
	assert.Equal(t, header, raw[:headerSize])

	got, err := Decrypt(env, "secret")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestEmptyInputsAreInvalid(t *testing.T) {
	t.Parallel()

	_, err := Encrypt("", "secret")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Encrypt("text", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Decrypt("", "secret")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Decrypt("AAAA", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEncryptRejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	_, err := Encrypt("ok\xff\xfe", "secret")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDecryptRejectsTampering(t *testing.T) {
	t.Parallel()

	env, err := Encrypt("do not alter me", "user@example.com")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(env)
	require.NoError(t, err)

	// First and last ciphertext bytes, plus one inside the tag.
	for _, pos := range []int{headerSize, headerSize + 3, len(raw) - tagSize/2, len(raw) - 1} {
		mutated := append([]byte(nil), raw...)
		mutated[pos] ^= 0x01

		got, err := Decrypt(base64.StdEncoding.EncodeToString(mutated), "user@example.com")
		assert.ErrorIs(t, err, ErrDecryptionFailed, "byte %d", pos)
		assert.Empty(t, got)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	t.Parallel()

	env, err := Encrypt("private", "alice@example.com")
	require.NoError(t, err)

	got, err := Decrypt(env, "bob@example.com")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Empty(t, got)
}

func TestDecryptRejectsMalformedEnvelopes(t *testing.T) {
	t.Parallel()

	short := base64.StdEncoding.EncodeToString(make([]byte, headerSize-1))
	headerOnly := base64.StdEncoding.EncodeToString(make([]byte, headerSize))

	for name, env := range map[string]string{
		"not base64":  "%%%not-base64%%%",
		"short":       short,
		"header only": headerOnly,
	} {
		_, err := Decrypt(env, "secret")
		assert.ErrorIs(t, err, ErrDecryptionFailed, name)
	}
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	salt := bytes.Repeat([]byte{7}, SaltSize)
	k1 := DeriveKey("user@example.com", salt)
	k2 := DeriveKey("user@example.com", salt)
	require.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)

	other := DeriveKey("user@example.com", bytes.Repeat([]byte{8}, SaltSize))
	assert.NotEqual(t, k1, other)
}
