// Package keys resolves the validator keypair from a secret source once at
// startup. Key material is held only in memory and never logged.
package keys

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"

	"uptime/internal/signing"
)

var (
	ErrNoSource     = errors.New("no key source configured")
	ErrUnrecognized = errors.New("unrecognized key encoding")
)

// Source loads the validator keypair.
type Source interface {
	Load(ctx context.Context) (*signing.Keypair, error)
}

// FileSource reads a key file: a Solana-style JSON byte array, or a single
// line of hex, base64 or base58 text.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) (*signing.Keypair, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	kp, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", s.Path, err)
	}
	return kp, nil
}

// EnvSource reads the key from an environment variable.
type EnvSource struct {
	Var    string
	Lookup func(string) (string, bool)
}

func (s EnvSource) Load(_ context.Context) (*signing.Keypair, error) {
	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(s.Var)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoSource, s.Var)
	}
	kp, err := Parse([]byte(v))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Var, err)
	}
	return kp, nil
}

// Select picks the file source when a path is set, otherwise the named
// environment variable when it holds a value.
func Select(keyFile, envVar string, lookup func(string) (string, bool)) (Source, error) {
	if keyFile != "" {
		return FileSource{Path: keyFile}, nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(envVar); ok && strings.TrimSpace(v) != "" {
		return EnvSource{Var: envVar, Lookup: lookup}, nil
	}
	return nil, ErrNoSource
}

// Parse decodes key material in any of the supported encodings. Only
// decodings of seed (32) or secret key (64) length are accepted.
func Parse(raw []byte) (*signing.Keypair, error) {
	text := bytes.TrimSpace(raw)
	if len(text) == 0 {
		return nil, ErrUnrecognized
	}
	if text[0] == '[' {
		var ints []int
		if err := json.Unmarshal(text, &ints); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
		}
		key := make([]byte, len(ints))
		for i, n := range ints {
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrUnrecognized, i)
			}
			key[i] = byte(n)
		}
		return signing.NewKeypair(key)
	}

	s := string(text)
	for _, decode := range []func(string) ([]byte, error){
		hex.DecodeString,
		base64.StdEncoding.DecodeString,
		base58.Decode,
	} {
		key, err := decode(s)
		if err != nil || !validLength(len(key)) {
			continue
		}
		return signing.NewKeypair(key)
	}
	return nil, ErrUnrecognized
}

func validLength(n int) bool {
	return n == 32 || n == 64
}
