package infra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me2d/cmlsync/internal/domain"
)

// testKeyPair generates a fresh RSA-2048 credential.
func testKeyPair(t *testing.T) domain.Credential {
	t.Helper()
	cred, err := NewRSACredentials().GenerateKeyPair()
	require.NoError(t, err)
	return cred
}

func parseAssertion(t *testing.T, token string, pub *rsa.PublicKey, at time.Time) *jwt.RegisteredClaims {
	t.Helper()
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(tok *jwt.Token) (interface{}, error) { return pub, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(func() time.Time { return at }),
	)
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	return claims
}

func TestRSACredentials_GenerateKeyPair(t *testing.T) {
	cred := testKeyPair(t)

	pub, err := x509.ParsePKIXPublicKey(cred.PublicKey)
	require.NoError(t, err)
	rsaPub, ok := pub.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 2048, rsaPub.N.BitLen())

	priv, err := DecodePrivateKey(cred.PrivateKeyBase64())
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(rsaPub))

	block, _ := pem.Decode([]byte(cred.PublicKeyPEM()))
	require.NotNil(t, block)
	assert.Equal(t, "PUBLIC KEY", block.Type)
	assert.Equal(t, cred.PublicKey, block.Bytes)
}

func TestRSACredentials_GenerateKeyPair_Unique(t *testing.T) {
	a := testKeyPair(t)
	b := testKeyPair(t)
	assert.NotEqual(t, a.PrivateKeyBase64(), b.PrivateKeyBase64())
}

func TestRSACredentials_SignAssertion(t *testing.T) {
	cred := testKeyPair(t)
	pub, err := x509.ParsePKIXPublicKey(cred.PublicKey)
	require.NoError(t, err)

	fixed := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	creds := NewRSACredentialsWithClock(func() time.Time { return fixed })

	tests := []struct {
		name    string
		subject string
	}{
		{name: "commands subject", subject: domain.SubjectCommands},
		{name: "execute subject", subject: domain.SubjectExecuteCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := creds.SignAssertion(tt.subject, cred.PrivateKeyBase64())
			require.NoError(t, err)
			assert.Len(t, strings.Split(token, "."), 3)

			claims := parseAssertion(t, token, pub.(*rsa.PublicKey), fixed)
			assert.Equal(t, tt.subject, claims.Subject)
			assert.Equal(t, "1709985600000", claims.ID)
			assert.True(t, fixed.Equal(claims.IssuedAt.Time))
			assert.True(t, fixed.Add(AssertionTTL).Equal(claims.ExpiresAt.Time))
		})
	}
}

func TestRSACredentials_SignAssertion_Expires(t *testing.T) {
	cred := testKeyPair(t)
	pub, err := x509.ParsePKIXPublicKey(cred.PublicKey)
	require.NoError(t, err)

	fixed := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	token, err := NewRSACredentialsWithClock(func() time.Time { return fixed }).
		SignAssertion(domain.SubjectCommands, cred.PrivateKeyBase64())
	require.NoError(t, err)

	_, err = jwt.Parse(token,
		func(*jwt.Token) (interface{}, error) { return pub, nil },
		jwt.WithTimeFunc(func() time.Time { return fixed.Add(2 * AssertionTTL) }),
	)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestDecodePrivateKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8B64 := base64.StdEncoding.EncodeToString(pkcs8)
	pkcs1B64 := base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(key))

	wrapped := ""
	for i := 0; i < len(pkcs8B64); i += 64 {
		end := min(i+64, len(pkcs8B64))
		wrapped += pkcs8B64[i:end] + "\n"
	}

	tests := []struct {
		name       string
		encoded    string
		wantErr    bool
		wantReason string
	}{
		{name: "pkcs8", encoded: pkcs8B64},
		{name: "pkcs1 fallback", encoded: pkcs1B64},
		{name: "line wrapped", encoded: wrapped},
		{name: "empty", encoded: "", wantErr: true, wantReason: "no private key stored, register first"},
		{name: "whitespace only", encoded: " \n ", wantErr: true, wantReason: "no private key stored, register first"},
		{name: "not base64", encoded: "!!!", wantErr: true, wantReason: "private key is not valid base64"},
		{name: "not a key", encoded: base64.StdEncoding.EncodeToString([]byte("hello")), wantErr: true, wantReason: "parse private key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePrivateKey(tt.encoded)
			if tt.wantErr {
				var credErr *domain.CredentialError
				require.True(t, errors.As(err, &credErr))
				assert.Equal(t, tt.wantReason, credErr.Reason)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(key))
		})
	}
}

func TestRSACredentials_SignAssertion_NoKey(t *testing.T) {
	_, err := NewRSACredentials().SignAssertion(domain.SubjectCommands, "")

	var credErr *domain.CredentialError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, "no private key stored, register first", credErr.Reason)
}
