package strategy

import (
	"crypto/aes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func allStrategies() []Strategy {
	return []Strategy{NewAES(), NewDES(), NewAESGCM(), NewSecretBox(DefaultCompressionThreshold)}
}

func TestStrategies_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		key       string
	}{
		{name: "phone number", plaintext: "13800138000", key: testKey},
		{name: "email", plaintext: "alice@example.com", key: testKey},
		{name: "unicode", plaintext: "张三 ✓ émoji", key: testKey},
		{name: "block aligned", plaintext: "0123456789abcdef", key: testKey},
		{name: "short key", plaintext: "secret", key: "short"},
		{name: "long key", plaintext: "secret", key: strings.Repeat("k", 70)},
		{name: "large payload", plaintext: strings.Repeat("compressible text ", 200), key: testKey},
	}

	for _, st := range allStrategies() {
		for _, tt := range tests {
			t.Run(st.Algorithm()+"/"+tt.name, func(t *testing.T) {
				ciphertext, err := st.Encrypt(tt.plaintext, tt.key)
				require.NoError(t, err)
				assert.NotEqual(t, tt.plaintext, ciphertext)

				_, err = base64.StdEncoding.DecodeString(ciphertext)
				require.NoError(t, err, "ciphertext should be standard base64")

				decrypted, err := st.Decrypt(ciphertext, tt.key)
				require.NoError(t, err)
				assert.Equal(t, tt.plaintext, decrypted)
			})
		}
	}
}

func TestStrategies_EmptyPassThrough(t *testing.T) {
	for _, st := range allStrategies() {
		t.Run(st.Algorithm(), func(t *testing.T) {
			out, err := st.Encrypt("", testKey)
			require.NoError(t, err)
			assert.Empty(t, out)

			out, err = st.Decrypt("", testKey)
			require.NoError(t, err)
			assert.Empty(t, out)
		})
	}
}

func TestStrategies_InvalidCiphertext(t *testing.T) {
	for _, st := range allStrategies() {
		t.Run(st.Algorithm(), func(t *testing.T) {
			out, err := st.Decrypt("not base64 !!!", testKey)
			require.Error(t, err)
			assert.True(t, errors.Is(err, fcerr.ErrDecryptionFailed))
			assert.Equal(t, "not base64 !!!", out)
		})
	}
}

func TestDeterministicStrategies(t *testing.T) {
	for _, st := range []Strategy{NewAES(), NewDES()} {
		t.Run(st.Algorithm(), func(t *testing.T) {
			a, err := st.Encrypt("13800138000", testKey)
			require.NoError(t, err)
			b, err := st.Encrypt("13800138000", testKey)
			require.NoError(t, err)
			assert.Equal(t, a, b)
			assert.True(t, Deterministic(st.Algorithm()))
		})
	}
}

func TestRandomizedStrategies(t *testing.T) {
	for _, st := range []Strategy{NewAESGCM(), NewSecretBox(0)} {
		t.Run(st.Algorithm(), func(t *testing.T) {
			a, err := st.Encrypt("13800138000", testKey)
			require.NoError(t, err)
			b, err := st.Encrypt("13800138000", testKey)
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
			assert.False(t, Deterministic(st.Algorithm()))
		})
	}
}

func TestAES_MatchesSingleBlockECB(t *testing.T) {
	key := "0123456789abcdef"
	block, err := aes.NewCipher([]byte(key))
	require.NoError(t, err)

	// "hello" padded with 11 bytes of 0x0b fills exactly one block.
	padded := append([]byte("hello"), []byte(strings.Repeat("\x0b", 11))...)
	want := make([]byte, aes.BlockSize)
	block.Encrypt(want, padded)

	got, err := NewAES().Encrypt("hello", key)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(want), got)
}

func TestSealOpenAES(t *testing.T) {
	st := NewAES()
	sealed, err := st.Seal([]byte("payload"), testKey)
	require.NoError(t, err)
	assert.Zero(t, len(sealed)%aes.BlockSize)

	opened, err := st.Open(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(opened))

	_, err = st.Open(sealed[:5], testKey)
	assert.Error(t, err)
}

func TestAES_FoldsLongKeys(t *testing.T) {
	// MySQL's default aes-128-ecb XORs byte i of the key into byte i%16.
	key := "0123456789abcdefghijklmnopqrstuv"
	folded := make([]byte, 16)
	for i := 0; i < 16; i++ {
		folded[i] = key[i] ^ key[i+16]
	}
	block, err := aes.NewCipher(folded)
	require.NoError(t, err)
	padded := append([]byte("hello"), []byte(strings.Repeat("\x0b", 11))...)
	want := make([]byte, aes.BlockSize)
	block.Encrypt(want, padded)

	got, err := NewAES().Encrypt("hello", key)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(want), got)
	assert.Equal(t, 16, NewAES().KeySize())
}

func TestAESKeySize(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{size: 16, want: 16},
		{size: 24, want: 24},
		{size: 32, want: 32},
		{size: 0, want: DefaultAESKeySize},
		{size: 20, want: DefaultAESKeySize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewAESKeySize(tt.size).KeySize(), "size %d", tt.size)
	}

	// aes-256-ecb with a 32 byte key uses the key unchanged.
	key := "0123456789abcdefghijklmnopqrstuv"
	block, err := aes.NewCipher([]byte(key))
	require.NoError(t, err)
	padded := append([]byte("hello"), []byte(strings.Repeat("\x0b", 11))...)
	want := make([]byte, aes.BlockSize)
	block.Encrypt(want, padded)

	got, err := NewAESKeySize(32).Encrypt("hello", key)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(want), got)

	other, err := NewAES().Encrypt("hello", key)
	require.NoError(t, err)
	assert.NotEqual(t, got, other)
}

func TestAESGCM_TamperedCiphertext(t *testing.T) {
	st := NewAESGCM()
	ciphertext, err := st.Encrypt("alice@example.com", testKey)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	out, err := st.Decrypt(tampered, testKey)
	require.Error(t, err)
	assert.Equal(t, tampered, out)
}

func TestSecretBox_WrongKey(t *testing.T) {
	st := NewSecretBox(0)
	ciphertext, err := st.Encrypt("alice@example.com", testKey)
	require.NoError(t, err)

	_, err = st.Decrypt(ciphertext, "another-key-entirely-0123456789")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestSecretBox_Compression(t *testing.T) {
	st := NewSecretBox(DefaultCompressionThreshold)
	plaintext := strings.Repeat("aaaaaaaaaa", 500)

	ciphertext, err := st.Encrypt(plaintext, testKey)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, flagZstd, raw[0])
	assert.Less(t, len(raw), len(plaintext))

	decrypted, err := st.Decrypt(ciphertext, testKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestSecretBox_SmallPayloadNotCompressed(t *testing.T) {
	st := NewSecretBox(DefaultCompressionThreshold)
	ciphertext, err := st.Encrypt("short value", testKey)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, flagNoCompression, raw[0])
}

func TestApply(t *testing.T) {
	var reported []error
	report := func(err error) { reported = append(reported, err) }

	aesStrategy := NewAES()
	encrypted := Apply(aesStrategy, fcerr.Encrypt, "13800138000", testKey, report)
	assert.NotEqual(t, "13800138000", encrypted)
	assert.Equal(t, "13800138000", Apply(aesStrategy, fcerr.Decrypt, encrypted, testKey, report))
	assert.Empty(t, reported)

	t.Run("fails open on error", func(t *testing.T) {
		reported = nil
		out := Apply(aesStrategy, fcerr.Decrypt, "%%%", testKey, report)
		assert.Equal(t, "%%%", out)
		require.Len(t, reported, 1)
		assert.ErrorIs(t, reported[0], fcerr.ErrDecryptionFailed)
	})

	t.Run("nil report is allowed", func(t *testing.T) {
		assert.Equal(t, "%%%", Apply(aesStrategy, fcerr.Decrypt, "%%%", testKey, nil))
	})

	t.Run("nil strategy and empty value", func(t *testing.T) {
		assert.Equal(t, "value", Apply(nil, fcerr.Encrypt, "value", testKey, report))
		assert.Equal(t, "", Apply(aesStrategy, fcerr.Encrypt, "", testKey, report))
	})

	t.Run("unrelated action", func(t *testing.T) {
		assert.Equal(t, "value", Apply(aesStrategy, fcerr.Rewrite, "value", testKey, report))
	})
}
