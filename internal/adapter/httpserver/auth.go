package httpserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/sales-cert-evaluator/internal/observability"
)

// Argon2Params defines parameters for Argon2id password hashing
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2Params are used for trainer password hashes.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

// HashPassword creates an Argon2id hash of the password
func HashPassword(password string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen)

	// argon2id$iterations$memory$parallelism$salt$hash
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		params.Iterations,
		params.Memory,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword verifies a password against its Argon2id hash
func VerifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	iters, err1 := parseUint32(parts[1])
	mem, err2 := parseUint32(parts[2])
	par, err3 := parseUint32(parts[3])
	if err1 != nil || err2 != nil || err3 != nil || par == 0 || par > math.MaxUint8 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	actual := argon2.IDKey([]byte(password), salt, iters, mem, uint8(par), uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

// Role is the caller's role claim.
type Role string

const (
	RoleLearner Role = "learner"
	RoleTrainer Role = "trainer"
)

// Claims are the JWT claims the API issues and accepts.
type Claims struct {
	Role         Role   `json:"role"`
	Organization string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	Subject      string
	Role         Role
	Organization string
}

const tokenIssuer = "sales-cert-evaluator"

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for subject.
func (tm *TokenManager) Issue(subject string, role Role, org string) (string, time.Time, error) {
	if subject == "" || (role != RoleLearner && role != RoleTrainer) {
		return "", time.Time{}, fmt.Errorf("%w: subject and a known role are required", domain.ErrInvalidArgument)
	}
	now := tm.now()
	exp := now.Add(tm.ttl)
	claims := Claims{
		Role:         role,
		Organization: org,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("op=auth.issue: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a token.
func (tm *TokenManager) Verify(token string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" || (claims.Role != RoleLearner && claims.Role != RoleTrainer) {
		return Principal{}, fmt.Errorf("%w: incomplete claims", domain.ErrUnauthorized)
	}
	return Principal{Subject: claims.Subject, Role: claims.Role, Organization: claims.Organization}, nil
}

type principalKey struct{}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal attaches a caller to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Authenticate requires a valid bearer token.
func (tm *TokenManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, r, fmt.Errorf("%w: bearer token required", domain.ErrUnauthorized), nil)
			return
		}
		p, err := tm.Verify(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		ctx, _ := obsctx.WithLogAttrs(WithPrincipal(r.Context(), p), "subject", p.Subject, "role", string(p.Role))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects callers without one of roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, r, fmt.Errorf("%w: not authenticated", domain.ErrUnauthorized), nil)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, fmt.Errorf("%w: role %s not allowed", domain.ErrForbidden, p.Role), nil)
		})
	}
}

var errBadCredentials = errors.New("invalid username or password")

// parseUint32 parses a decimal string into uint32; returns error on failure
func parseUint32(s string) (uint32, error) {
	x, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse")
	}
	return uint32(x), nil
}
