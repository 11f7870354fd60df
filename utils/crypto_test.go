package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
)

func TestGenerateAndValidateHMAC(t *testing.T) {
	key := []byte("receipt-signing-key")
	data := `<Receipt number="RCP20260201ABCDEFGH"/>`

	mac := GenerateHMAC(data, key)
	assert.NotEmpty(t, mac)

	assert.True(t, ValidateHMAC(data, mac, key))

	// Измененные данные не проходят проверку
	assert.False(t, ValidateHMAC(data+" ", mac, key))

	// Чужой ключ не проходит проверку
	assert.False(t, ValidateHMAC(data, mac, []byte("other-key")))
}

func TestPGPEncryptDecryptRoundTrip(t *testing.T) {
	entity, err := openpgp.NewEntity("Receipts", "", "receipts@example.com", nil)
	require.NoError(t, err)

	// Приватный ключ сериализуется первым: подписывает идентичности
	var privateKey strings.Builder
	w, err := armor.Encode(&privateKey, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())

	var publicKey strings.Builder
	w, err = armor.Encode(&publicKey, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	data := `<Receipt number="RCP20260201ABCDEFGH"/>`

	encrypted, err := PGPEncrypt(data, publicKey.String())
	require.NoError(t, err)
	assert.Contains(t, encrypted, "PGP MESSAGE")
	assert.NotContains(t, encrypted, "RCP20260201ABCDEFGH")

	decrypted, err := PGPDecrypt(encrypted, privateKey.String())
	require.NoError(t, err)
	assert.Equal(t, data, decrypted)
}

func TestGenerateRandomKey(t *testing.T) {
	key, err := GenerateRandomKey(32)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	other, err := GenerateRandomKey(32)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken(16)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	other, err := GenerateSecureToken(16)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
