// Package signing produces and checks the detached ed25519 attestations that
// validators attach to every signup and validation message.
//
// The attestation strings are part of the wire contract: the hub rebuilds the
// exact string and verifies the signature against it, so the templates below
// must not change.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr-tron/base58"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid ed25519 private key")
	ErrInvalidPublicKey  = errors.New("invalid ed25519 public key")
	ErrKeyMismatch       = errors.New("public key does not match private key")
)

// Keypair is an ed25519 signing key held in memory for the process lifetime.
type Keypair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// NewKeypair builds a Keypair from a 32 byte seed or a 64 byte secret key.
// A 64 byte key must carry the public half that its seed derives.
func NewKeypair(raw []byte) (*Keypair, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(raw)
		return fromPrivate(priv), nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, ErrKeyMismatch
		}
		return fromPrivate(priv), nil
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPrivateKey, len(raw))
	}
}

// Generate creates a fresh random keypair.
func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return fromPrivate(priv), nil
}

func fromPrivate(priv ed25519.PrivateKey) *Keypair {
	return &Keypair{
		private: append(ed25519.PrivateKey(nil), priv...),
		public:  append(ed25519.PublicKey(nil), priv.Public().(ed25519.PublicKey)...),
	}
}

// PublicKey returns a copy of the public key.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), k.public...)
}

// PublicKeyString is the base58 text form sent on the wire.
func (k *Keypair) PublicKeyString() string {
	return base58.Encode(k.public)
}

// String never prints private material.
func (k *Keypair) String() string {
	return "Keypair(" + k.PublicKeyString() + ")"
}

// LogValue keeps the private key out of structured logs.
func (k *Keypair) LogValue() slog.Value {
	return slog.StringValue(k.PublicKeyString())
}

// ParsePublicKey decodes the base58 text form of a public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Sign returns the base64 detached signature over the UTF-8 bytes of message.
func Sign(message string, k *Keypair) string {
	sig := ed25519.Sign(k.private, []byte(message))
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify reports whether signature is a valid base64 signature by pub over message.
func Verify(signature, message string, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, []byte(message), sig)
}

// SignupAttestation is the string a validator signs when registering.
func SignupAttestation(callbackID, publicKey string) string {
	return "Validator signup:" + callbackID + ":" + publicKey
}

// ValidationAttestation is signed when a probe produced a response.
func ValidationAttestation(callbackID, websiteID string) string {
	return "Validation:" + callbackID + ":" + websiteID
}

// ErrorAttestation is signed when a probe failed or timed out.
func ErrorAttestation(callbackID, websiteID string) string {
	return "Error:" + callbackID + ":" + websiteID
}
