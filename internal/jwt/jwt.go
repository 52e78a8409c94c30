package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/evidenceledger/oadrvtn/internal/errl"
)

// KeyID identifies the VTN key in JWKS and JWS headers.
const KeyID = "oadrvtn-key"

// adminAudience is the audience of tokens issued by the admin login.
const adminAudience = "oadrvtn-admin"

// Service holds the VTN key material: it signs replies and admin tokens, and publishes the public key
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewService creates a service with a freshly generated key
func NewService(issuer string) (*Service, error) {
	// Generate RSA key pair for token signing
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	slog.Info("JWT service initialized with generated key", "issuer", issuer)
	return newService(privateKey, issuer), nil
}

// NewServiceFromFile creates a service with the RSA key in a PKCS#1 or PKCS#8 PEM file
func NewServiceFromFile(path, issuer string) (*Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errl.Errorf("failed to read signing key: %w", err)
	}

	privateKey, err := parsePrivateKey(data)
	if err != nil {
		return nil, errl.Errorf("failed to parse signing key %s: %w", path, err)
	}

	slog.Info("JWT service initialized", "issuer", issuer, "key_file", path)
	return newService(privateKey, issuer), nil
}

func newService(privateKey *rsa.PrivateKey, issuer string) *Service {
	return &Service{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     issuer,
	}
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T, RSA required", key)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}

// SignDetached returns a compact JWS with a detached payload ("header..signature") over body
func (s *Service) SignDetached(body []byte) (string, error) {
	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, KeyID); err != nil {
		return "", errl.Errorf("failed to set key id: %w", err)
	}

	sig, err := jws.Sign(nil,
		jws.WithKey(jwa.RS256(), s.privateKey, jws.WithProtectedHeaders(hdrs)),
		jws.WithDetachedPayload(body),
	)
	if err != nil {
		return "", errl.Errorf("failed to sign reply: %w", err)
	}
	return string(sig), nil
}

// VerifyDetached checks a detached JWS produced by SignDetached against body
func (s *Service) VerifyDetached(signature string, body []byte) error {
	_, err := jws.Verify([]byte(signature),
		jws.WithKey(jwa.RS256(), s.publicKey),
		jws.WithDetachedPayload(body),
	)
	if err != nil {
		return errl.Errorf("invalid signature: %w", err)
	}
	return nil
}

// IssueAdminToken generates a token for the admin API
func (s *Service) IssueAdminToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{adminAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = KeyID

	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}

	slog.Debug("Admin token generated", "subject", subject, "expiration", claims.ExpiresAt.Time)
	return tokenString, nil
}

// VerifyAdminToken parses and validates an admin token, returning its subject
func (s *Service) VerifyAdminToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(adminAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errl.Errorf("invalid admin token: %w", err)
	}
	return claims.Subject, nil
}

// GetJWKS returns the JSON Web Key Set
func (s *Service) GetJWKS() map[string]any {
	jk, err := jwk.Import(s.publicKey)
	if err != nil {
		slog.Error("Failed to import public key into JWK", "error", err)
		return nil
	}

	jk.Set(jwk.KeyUsageKey, "sig")
	jk.Set(jwk.KeyIDKey, KeyID)
	jk.Set(jwk.AlgorithmKey, jwa.RS256())

	return map[string]any{
		"keys": []any{jk},
	}
}
