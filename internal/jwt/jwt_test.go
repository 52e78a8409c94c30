package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignDetached(t *testing.T) {
	s, err := NewService("vtn_test")
	require.NoError(t, err)

	body := []byte(`<?xml version="1.0"?><oadr:oadrPayload/>`)
	sig, err := s.SignDetached(body)
	require.NoError(t, err)

	parts := strings.Split(sig, ".")
	require.Len(t, parts, 3)
	assert.Empty(t, parts[1], "payload is detached")

	require.NoError(t, s.VerifyDetached(sig, body))
	assert.Error(t, s.VerifyDetached(sig, append(body, ' ')))
}

func TestAdminToken(t *testing.T) {
	s, err := NewService("vtn_test")
	require.NoError(t, err)

	tok, err := s.IssueAdminToken("admin", time.Minute)
	require.NoError(t, err)

	sub, err := s.VerifyAdminToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", sub)

	expired, err := s.IssueAdminToken("admin", -time.Minute)
	require.NoError(t, err)
	_, err = s.VerifyAdminToken(expired)
	assert.Error(t, err)

	other, err := NewService("vtn_test")
	require.NoError(t, err)
	_, err = other.VerifyAdminToken(tok)
	assert.Error(t, err, "signed by another key")
}

func TestNewServiceFromFile(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	dir := t.TempDir()

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	files := map[string][]byte{
		"pkcs1.pem": pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		"pkcs8.pem": pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}),
	}
	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			s, err := NewServiceFromFile(path, "vtn_test")
			require.NoError(t, err)
			assert.True(t, key.PublicKey.Equal(s.publicKey))
		})
	}

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0o600))
	_, err = NewServiceFromFile(bad, "vtn_test")
	assert.Error(t, err)
}

func TestGetJWKS(t *testing.T) {
	s, err := NewService("vtn_test")
	require.NoError(t, err)

	data, err := json.Marshal(s.GetJWKS())
	require.NoError(t, err)

	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(data, &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "RSA", set.Keys[0]["kty"])
	assert.Equal(t, KeyID, set.Keys[0]["kid"])
	assert.Equal(t, "RS256", set.Keys[0]["alg"])
	assert.Equal(t, "sig", set.Keys[0]["use"])
}
