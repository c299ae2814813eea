package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/tailmate/chat-service/internal/domain"
)

// Resolver turns an access token issued by the auth service into an Identity.
type Resolver struct {
	public     *rsa.PublicKey
	issuer     string
	audience   string
	emailClaim string
	clockSkew  time.Duration
	now        func() time.Time
}

func NewResolver(public *rsa.PublicKey, issuer, audience, emailClaim string, clockSkew time.Duration) *Resolver {
	if emailClaim == "" {
		emailClaim = "email"
	}
	return &Resolver{
		public:     public,
		issuer:     issuer,
		audience:   audience,
		emailClaim: emailClaim,
		clockSkew:  clockSkew,
		now:        time.Now,
	}
}

// Resolve validates an RS256 token and returns the local-part of its email claim.
func (r *Resolver) Resolve(_ context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	parser := &jwt.Parser{SkipClaimsValidation: true}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, domain.ErrInvalidToken
		}
		return r.public, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	if !claims.VerifyIssuer(r.issuer, true) {
		return "", fmt.Errorf("%w: issuer", domain.ErrInvalidToken)
	}
	if r.audience != "" && !claims.VerifyAudience(r.audience, true) {
		return "", fmt.Errorf("%w: audience", domain.ErrInvalidToken)
	}

	// time claims are checked here so clockSkew applies to both ends
	now := r.now()
	if !claims.VerifyExpiresAt(now.Add(-r.clockSkew).Unix(), true) {
		return "", fmt.Errorf("%w: expired", domain.ErrInvalidToken)
	}
	if !claims.VerifyNotBefore(now.Add(r.clockSkew).Unix(), false) {
		return "", fmt.Errorf("%w: not valid yet", domain.ErrInvalidToken)
	}

	email, _ := claims[r.emailClaim].(string)
	identity, err := domain.IdentityFromEmail(email)
	if err != nil {
		return "", fmt.Errorf("%w: %s claim", domain.ErrInvalidToken, r.emailClaim)
	}
	return identity, nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}
