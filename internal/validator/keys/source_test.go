package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime/internal/signing"
)

func newSecret(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func publicString(priv ed25519.PrivateKey) string {
	return base58.Encode(priv.Public().(ed25519.PublicKey))
}

func TestParse_Encodings(t *testing.T) {
	secret := newSecret(t)
	want := publicString(secret)

	ints := make([]int, len(secret))
	for i, b := range secret {
		ints[i] = int(b)
	}
	jsonArray, err := json.Marshal(ints)
	require.NoError(t, err)

	cases := map[string][]byte{
		"json array secret": jsonArray,
		"hex secret":        []byte(hex.EncodeToString(secret)),
		"hex seed":          []byte(hex.EncodeToString(secret.Seed())),
		"base64 secret":     []byte(base64.StdEncoding.EncodeToString(secret)),
		"base58 secret":     []byte(base58.Encode(secret)),
		"base58 seed":       []byte(base58.Encode(secret.Seed())),
		"trailing newline":  []byte(hex.EncodeToString(secret) + "\n"),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			kp, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, want, kp.PublicKeyString())
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := Parse([]byte("  \n"))
		assert.ErrorIs(t, err, ErrUnrecognized)
	})

	t.Run("json byte out of range", func(t *testing.T) {
		_, err := Parse([]byte("[1, 2, 300]"))
		assert.ErrorIs(t, err, ErrUnrecognized)
	})

	t.Run("json array of wrong length", func(t *testing.T) {
		_, err := Parse([]byte("[1, 2, 3]"))
		assert.ErrorIs(t, err, signing.ErrInvalidPrivateKey)
	})

	t.Run("short hex", func(t *testing.T) {
		_, err := Parse([]byte("abcdef"))
		assert.ErrorIs(t, err, ErrUnrecognized)
	})
}

func TestFileSource(t *testing.T) {
	secret := newSecret(t)
	path := filepath.Join(t.TempDir(), "validator.key")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(secret)), 0o600))

	kp, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publicString(secret), kp.PublicKeyString())

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing")}.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvSource(t *testing.T) {
	secret := newSecret(t)
	env := map[string]string{"VALIDATOR_PRIVATE_KEY": base58.Encode(secret)}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	kp, err := EnvSource{Var: "VALIDATOR_PRIVATE_KEY", Lookup: lookup}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publicString(secret), kp.PublicKeyString())

	_, err = EnvSource{Var: "UNSET", Lookup: lookup}.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestSelect(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "VALIDATOR_PRIVATE_KEY" {
			return "value", true
		}
		return "", false
	}

	src, err := Select("/etc/validator.key", "VALIDATOR_PRIVATE_KEY", lookup)
	require.NoError(t, err)
	assert.IsType(t, FileSource{}, src)

	src, err = Select("", "VALIDATOR_PRIVATE_KEY", lookup)
	require.NoError(t, err)
	assert.IsType(t, EnvSource{}, src)

	_, err = Select("", "OTHER", lookup)
	assert.ErrorIs(t, err, ErrNoSource)
}
