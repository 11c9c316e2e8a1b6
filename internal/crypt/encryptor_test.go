package crypt_test

import (
	"strings"
	"testing"

	"homelink-publisher/internal/crypt"

	"github.com/stretchr/testify/require"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func TestKeypairFromSeed(t *testing.T) {
	kp, err := crypt.KeypairFromSeed(testSeed)
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, kp.Public)

	// 同一种子派生同一公钥
	kp2, err := crypt.KeypairFromSeed(testSeed)
	require.NoError(t, err)
	require.Equal(t, kp.Public, kp2.Public)
}

func TestKeypairFromSeed_Invalid(t *testing.T) {
	_, err := crypt.KeypairFromSeed("not-hex")
	require.Error(t, err)

	_, err = crypt.KeypairFromSeed("abcd")
	require.Error(t, err)
	require.Contains(t, err.Error(), "32 bytes")
}

func TestSelfEncrypt_Roundtrip(t *testing.T) {
	kp, err := crypt.KeypairFromSeed(testSeed)
	require.NoError(t, err)

	encryptor := crypt.NewSelfEncryptor(kp)
	plaintext := []byte(`{"twin_id": 14}`)

	blob, err := encryptor.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, blob)

	// 持有种子的一方可解密自己发出的密文
	decrypted, err := crypt.Decrypt(blob, kp.Public, kp)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDecrypt_WrongKey(t *testing.T) {
	kp, err := crypt.KeypairFromSeed(testSeed)
	require.NoError(t, err)
	other, err := crypt.KeypairFromSeed(strings.Repeat("11", 32))
	require.NoError(t, err)

	blob, err := crypt.NewSelfEncryptor(kp).Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = crypt.Decrypt(blob, kp.Public, other)
	require.ErrorIs(t, err, crypt.ErrDecryptFailed)
}

func TestDecrypt_TruncatedBlob(t *testing.T) {
	kp, err := crypt.KeypairFromSeed(testSeed)
	require.NoError(t, err)

	_, err = crypt.Decrypt([]byte("short"), kp.Public, kp)
	require.ErrorIs(t, err, crypt.ErrDecryptFailed)
}
