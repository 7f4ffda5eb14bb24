package infra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/me2d/cmlsync/internal/domain"
)

const (
	rsaKeyBits = 2048

	// AssertionTTL bounds how long a signed assertion is accepted by the server.
	AssertionTTL = time.Minute
)

// RSACredentials implements domain.CredentialManager with RSA-2048 keys and RS256 JWT assertions.
type RSACredentials struct {
	now func() time.Time
}

// NewRSACredentials creates a credential manager using the wall clock.
func NewRSACredentials() *RSACredentials {
	return &RSACredentials{now: time.Now}
}

// NewRSACredentialsWithClock creates a credential manager with a custom clock (for testing).
func NewRSACredentialsWithClock(now func() time.Time) *RSACredentials {
	return &RSACredentials{now: now}
}

// GenerateKeyPair creates a fresh 2048-bit RSA key pair.
func (c *RSACredentials) GenerateKeyPair() (domain.Credential, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return domain.Credential{}, &domain.CredentialError{Reason: "generate RSA key", Err: err}
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return domain.Credential{}, &domain.CredentialError{Reason: "encode public key", Err: err}
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return domain.Credential{}, &domain.CredentialError{Reason: "encode private key", Err: err}
	}
	return domain.Credential{PublicKey: pub, PrivateKey: priv}, nil
}

// SignAssertion returns an RS256 JWT whose subject names the operation and whose
// jti is the current time in milliseconds.
func (c *RSACredentials) SignAssertion(subject, privateKeyEncoded string) (string, error) {
	key, err := DecodePrivateKey(privateKeyEncoded)
	if err != nil {
		return "", err
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        strconv.FormatInt(now.UnixMilli(), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AssertionTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", &domain.CredentialError{Reason: "sign assertion", Err: err}
	}
	return token, nil
}

// DecodePrivateKey parses a base64 PKCS#8 (or PKCS#1) RSA private key.
// Whitespace is ignored: keys migrated from the old app were stored line-wrapped.
func DecodePrivateKey(encoded string) (*rsa.PrivateKey, error) {
	compact := strings.Join(strings.Fields(encoded), "")
	if compact == "" {
		return nil, &domain.CredentialError{Reason: "no private key stored, register first"}
	}
	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, &domain.CredentialError{Reason: "private key is not valid base64", Err: err}
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		pkcs1, pkcs1Err := x509.ParsePKCS1PrivateKey(der)
		if pkcs1Err != nil {
			return nil, &domain.CredentialError{Reason: "parse private key", Err: err}
		}
		return pkcs1, nil
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, &domain.CredentialError{Reason: "private key is not RSA"}
	}
	return key, nil
}

var _ domain.CredentialManager = (*RSACredentials)(nil)
