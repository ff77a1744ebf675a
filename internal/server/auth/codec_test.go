package auth

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/server/secret"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T, raw string, clock *testClock) *Codec {
	t.Helper()
	keys, err := secret.New(raw)
	require.NoError(t, err)
	return NewCodec(keys, WithClock(clock.Now))
}

type failingProvider struct{}

func (failingProvider) SigningKey() ([]byte, error) { return nil, secret.ErrMissingSecret }

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	codec := newTestCodec(t, "super-secret", clock)

	cases := []Claims{
		{Subject: "U1", Purpose: PurposeAuth},
		{Subject: "U2", Purpose: PurposeEntry, BoundResourceID: "p1"},
	}

	for _, in := range cases {
		tok, err := codec.Encode(in, time.Hour)
		require.NoError(t, err)

		out, err := codec.Decode(tok)
		require.NoError(t, err)

		assert.Equal(t, in.Subject, out.Subject)
		assert.Equal(t, in.Purpose, out.Purpose)
		assert.Equal(t, in.BoundResourceID, out.BoundResourceID)
		assert.NotEmpty(t, out.ID)
		assert.True(t, out.IssuedAt.Equal(clock.Now()))
		assert.True(t, out.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
	}
}

func TestEncode_FreshIDPerToken(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, "k", newTestClock())
	a, err := codec.Encode(Claims{Subject: "U1", Purpose: PurposeAuth}, time.Minute)
	require.NoError(t, err)
	b, err := codec.Encode(Claims{Subject: "U1", Purpose: PurposeAuth}, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecode_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	const ttl = 15 * time.Minute

	clock := newTestClock()
	codec := newTestCodec(t, "secret", clock)

	tok, err := codec.Encode(Claims{Subject: "U1", Purpose: PurposeAuth}, ttl)
	require.NoError(t, err)

	clock.Advance(ttl - time.Second)
	_, err = codec.Decode(tok)
	require.NoError(t, err, "token must still be valid one second before expiry")

	clock.Advance(2 * time.Second)
	_, err = codec.Decode(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestDecode_TamperRejection(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, "secret", newTestClock())
	tok, err := codec.Encode(Claims{Subject: "U1", Purpose: PurposeEntry, BoundResourceID: "p1"}, time.Hour)
	require.NoError(t, err)

	for i := 0; i < len(tok); i++ {
		b := []byte(tok)
		b[i] ^= 0x01
		got, err := codec.Decode(string(b))
		if err == nil {
			t.Fatalf("flipping byte %d produced a valid token with claims %+v", i, got)
		}
		if !errors.Is(err, common.ErrInvalidToken) {
			t.Fatalf("byte %d: want ErrInvalidToken, got %v", i, err)
		}
	}
}

func TestDecode_FailuresCollapseToInvalidToken(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	codec := newTestCodec(t, "right-secret", clock)
	other := newTestCodec(t, "wrong-secret", clock)
	otherIssuer := NewCodec(mustKeys(t, "right-secret"), WithClock(clock.Now), WithIssuer("someone-else"))

	valid, err := codec.Encode(Claims{Subject: "U1", Purpose: PurposeAuth}, time.Hour)
	require.NoError(t, err)
	foreignIssuer, err := otherIssuer.Encode(Claims{Subject: "U1", Purpose: PurposeAuth}, time.Hour)
	require.NoError(t, err)

	key, _ := mustKeys(t, "right-secret").SigningKey()

	sign := func(method jwt.SigningMethod, claims jwt.Claims, k any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(k)
		require.NoError(t, err)
		return s
	}
	registered := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   "U1",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		}
	}

	cases := map[string]string{
		"empty":             "",
		"garbage":           "not.a.jwt",
		"two segments":      strings.Join(strings.Split(valid, ".")[:2], "."),
		"wrong secret":      mustEncode(t, other, Claims{Subject: "U1", Purpose: PurposeAuth}),
		"wrong issuer":      foreignIssuer,
		"alg none":          sign(jwt.SigningMethodNone, tokenClaims{Purpose: PurposeAuth, RegisteredClaims: registered()}, jwt.UnsafeAllowNoneSignatureType),
		"hs512":             sign(jwt.SigningMethodHS512, tokenClaims{Purpose: PurposeAuth, RegisteredClaims: registered()}, key),
		"missing purpose":   sign(jwt.SigningMethodHS256, tokenClaims{RegisteredClaims: registered()}, key),
		"entry without rid": sign(jwt.SigningMethodHS256, tokenClaims{Purpose: PurposeEntry, RegisteredClaims: registered()}, key),
		"auth with rid":     sign(jwt.SigningMethodHS256, tokenClaims{Purpose: PurposeAuth, BoundResourceID: "p1", RegisteredClaims: registered()}, key),
		"missing expiry":    sign(jwt.SigningMethodHS256, tokenClaims{Purpose: PurposeAuth, RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer, Subject: "U1"}}, key),
		"missing subject":   sign(jwt.SigningMethodHS256, tokenClaims{Purpose: PurposeAuth, RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer, ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour))}}, key),
		"iat in the future": sign(jwt.SigningMethodHS256, tokenClaims{Purpose: PurposeAuth, RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer, Subject: "U1", IssuedAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)), ExpiresAt: jwt.NewNumericDate(clock.Now().Add(2 * time.Hour))}}, key),
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := codec.Decode(tok)
			require.Nil(t, got)
			require.True(t, errors.Is(err, common.ErrInvalidToken), "got %v", err)
			assert.Equal(t, common.ErrInvalidToken, err, "failure reason must not leak")
		})
	}
}

func TestEncode_RejectsBrokenClaims(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, "k", newTestClock())

	cases := map[string]Claims{
		"no subject":        {Purpose: PurposeAuth},
		"no purpose":        {Subject: "U1"},
		"unknown purpose":   {Subject: "U1", Purpose: "admin"},
		"entry without rid": {Subject: "U1", Purpose: PurposeEntry},
		"auth with rid":     {Subject: "U1", Purpose: PurposeAuth, BoundResourceID: "p1"},
	}
	for name, c := range cases {
		_, err := codec.Encode(c, time.Hour)
		assert.ErrorIs(t, err, ErrInvalidClaims, name)
	}

	_, err := codec.Encode(Claims{Subject: "U1", Purpose: PurposeAuth}, 0)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestCodec_MissingSecret(t *testing.T) {
	t.Parallel()

	codec := NewCodec(failingProvider{})

	_, err := codec.Encode(Claims{Subject: "U1", Purpose: PurposeAuth}, time.Hour)
	require.ErrorIs(t, err, common.ErrConfiguration)

	_, err = codec.Decode("a.b.c")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestPurpose_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, PurposeAuth.Valid())
	assert.True(t, PurposeEntry.Valid())
	assert.False(t, Purpose("").Valid())
	assert.False(t, Purpose("AUTH").Valid())
}

func mustKeys(t *testing.T, raw string) secret.Provider {
	t.Helper()
	k, err := secret.New(raw)
	require.NoError(t, err)
	return k
}

func mustEncode(t *testing.T, c *Codec, claims Claims) string {
	t.Helper()
	tok, err := c.Encode(claims, time.Hour)
	require.NoError(t, err)
	return tok
}
