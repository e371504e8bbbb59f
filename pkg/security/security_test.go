package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)

	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)

	assert.NoError(t, h.Compare(hash, "correct-horse"))
	assert.ErrorIs(t, h.Compare(hash, "wrong-horse"), ErrPasswordMismatch)

	err = h.Compare("not-a-bcrypt-hash", "correct-horse")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPasswordMismatch)

	_, err = h.Hash("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = h.Hash(strings.Repeat("x", MaxPasswordLen+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = h.Hash(strings.Repeat("x", MaxPasswordLen))
	assert.NoError(t, err)
}

func TestEncryptStringRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sealed, err := EncryptString(enc, "acute bronchitis")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "bronchitis")

	plain, err := DecryptString(enc, sealed)
	require.NoError(t, err)
	assert.Equal(t, "acute bronchitis", plain)

	empty, err := EncryptString(enc, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewAESEncryptorRejectsBadKey(t *testing.T) {
	_, err := NewAESEncryptor([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestVerifyPaymentSignature(t *testing.T) {
	sig := SignPayment("s3cret", "order_1", "pay_1")

	assert.True(t, VerifyPaymentSignature("s3cret", "order_1", "pay_1", sig))
	assert.True(t, VerifyPaymentSignature("s3cret", "order_1", "pay_1", strings.ToUpper(sig)))
	assert.False(t, VerifyPaymentSignature("s3cret", "order_1", "pay_2", sig))
	assert.False(t, VerifyPaymentSignature("other", "order_1", "pay_1", sig))
	assert.False(t, VerifyPaymentSignature("s3cret", "order_1", "pay_1", ""))
}
