package middleware

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/evidenceledger/oadrvtn/internal/errl"
)

// SubjectKey is the fiber Locals key holding the authenticated admin subject.
const SubjectKey = "admin_subject"

// TokenVerifier validates locally issued admin tokens.
type TokenVerifier interface {
	VerifyAdminToken(token string) (string, error)
}

// AdminAuth handles admin authentication
type AdminAuth struct {
	passwordHash []byte
	tokens       TokenVerifier
	oidc         *oidc.IDTokenVerifier
}

// NewAdminAuth creates a new admin auth middleware. Only the bcrypt hash of the password is kept.
func NewAdminAuth(adminPassword string, tokens TokenVerifier) (*AdminAuth, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, errl.Errorf("failed to hash admin password: %w", err)
	}
	return &AdminAuth{
		passwordHash: hash,
		tokens:       tokens,
	}, nil
}

// WithOIDC also accepts ID tokens checked by verifier.
func (a *AdminAuth) WithOIDC(verifier *oidc.IDTokenVerifier) *AdminAuth {
	a.oidc = verifier
	return a
}

// NewOIDCVerifier discovers an OpenID provider and returns a verifier for ID tokens issued to clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errl.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// CheckPassword compares a password with the admin password hash.
func (a *AdminAuth) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
}

// AuthMiddleware returns the admin authentication middleware.
// It accepts a Bearer token (local admin token or OIDC ID token) or Basic credentials.
func (a *AdminAuth) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		if auth == "" {
			c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="oadrvtn admin"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Admin authentication required",
			})
		}

		scheme, credentials, _ := strings.Cut(auth, " ")
		credentials = strings.TrimSpace(credentials)

		var subject string
		switch strings.ToLower(scheme) {
		case "bearer":
			subject = a.verifyToken(c.UserContext(), credentials)
		case "basic":
			subject = a.verifyBasic(credentials)
		}

		if subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin credentials",
			})
		}

		c.Locals(SubjectKey, subject)
		return c.Next()
	}
}

func (a *AdminAuth) verifyToken(ctx context.Context, token string) string {
	if a.tokens != nil {
		if sub, err := a.tokens.VerifyAdminToken(token); err == nil {
			return sub
		}
	}
	if a.oidc != nil {
		if idToken, err := a.oidc.Verify(ctx, token); err == nil {
			return idToken.Subject
		}
	}
	return ""
}

func (a *AdminAuth) verifyBasic(credentials string) string {
	raw, err := base64.StdEncoding.DecodeString(credentials)
	if err != nil {
		return ""
	}
	user, password, ok := strings.Cut(string(raw), ":")
	if !ok || !a.CheckPassword(password) {
		return ""
	}
	if user == "" {
		user = "admin"
	}
	return user
}
