package security

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"course-entitlement/internal/domain"
)

const RoleAdmin = "admin"

type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller of a request.
type Identity struct {
	AccountID string
	Admin     bool
}

// IdentityResolver validates HS256 bearer tokens. The sub claim is the account id.
type IdentityResolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewIdentityResolver(secret, issuer string) *IdentityResolver {
	return &IdentityResolver{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Resolve returns domain.ErrUnauthorized for a missing or invalid token.
func (r *IdentityResolver) Resolve(req *http.Request) (*Identity, error) {
	hdr := req.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, domain.ErrUnauthorized
	}
	claims, err := r.parse(strings.TrimSpace(hdr[7:]))
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	return &Identity{AccountID: claims.Subject, Admin: claims.Role == RoleAdmin}, nil
}

func (r *IdentityResolver) parse(tok string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}

// Mint signs a token for accountID. Used by tooling and tests.
func (r *IdentityResolver) Mint(accountID string, admin bool, ttl time.Duration) (string, error) {
	now := r.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if admin {
		claims.Role = RoleAdmin
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
