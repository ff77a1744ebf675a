// Package secret resolves the key used to sign and verify magic-link tokens.
//
// There is no default secret. A blank one yields ErrMissingSecret, which
// wraps common.ErrConfiguration.
package secret

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the derived HMAC key.
const KeySize = 32

const hkdfInfo = "magiclink hs256"

// ErrMissingSecret is returned when no signing secret is configured.
var ErrMissingSecret = fmt.Errorf("%w: signing secret is not set", common.ErrConfiguration)

// Provider returns the signing key for the token codec.
type Provider interface {
	SigningKey() ([]byte, error)
}

// Static holds a key derived from a secret known at construction time.
type Static struct {
	key []byte
}

// New derives a signing key from raw. It fails with ErrMissingSecret when raw is blank.
func New(raw string) (*Static, error) {
	key, err := deriveKey(raw)
	if err != nil {
		return nil, err
	}
	return &Static{key: key}, nil
}

func (s *Static) SigningKey() ([]byte, error) {
	return s.key, nil
}

func deriveKey(raw string) ([]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingSecret
	}
	r := hkdf.New(sha256.New, []byte(raw), nil, []byte(hkdfInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}
