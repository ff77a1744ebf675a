package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/server/secret"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is written to the "iss" claim unless WithIssuer overrides it.
const DefaultIssuer = "postscript"

// Codec signs and verifies claim sets.
type Codec struct {
	keys   secret.Provider
	issuer string
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for both issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIssuer sets the "iss" claim written and required by the codec.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if issuer != "" {
			c.issuer = issuer
		}
	}
}

func NewCodec(keys secret.Provider, opts ...Option) *Codec {
	c := &Codec{keys: keys, issuer: DefaultIssuer, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode signs claims with an absolute expiry of now+ttl. ID, IssuedAt and
// ExpiresAt on the input are ignored and filled in by the codec.
func (c *Codec) Encode(claims Claims, ttl time.Duration) (string, error) {
	if err := claims.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: non-positive ttl %s", ErrInvalidClaims, ttl)
	}

	key, err := c.keys.SigningKey()
	if err != nil {
		return "", err
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Purpose:         claims.Purpose,
		BoundResourceID: claims.BoundResourceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})

	return token.SignedString(key)
}

// Decode verifies the signature, algorithm, issuer and expiry of token and
// returns its claims. Expiry is checked against the codec clock at call
// time with no leeway. Every failure is reported as common.ErrInvalidToken.
func (c *Codec) Decode(token string) (*Claims, error) {
	key, err := c.keys.SigningKey()
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	wire := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, wire, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, common.ErrInvalidToken
	}

	claims := wire.claims()
	return &claims, nil
}
