package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"taskboard-api/domain"
)

const (
	DefaultTokenTTL    = 24 * time.Hour
	DefaultKeyCacheTTL = 15 * time.Minute
)

// Claims is the payload of an access token.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Options configures Tokens. Secret signs and verifies HS256 tokens; JWKS,
// when set, additionally accepts RS256 tokens signed by an external issuer.
type Options struct {
	Secret      []byte
	TTL         time.Duration
	Issuer      string
	JWKS        *keyfunc.JWKS
	KeyCacheTTL time.Duration
}

// Tokens issues and verifies signed access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	jwks   *keyfunc.JWKS
	parser *jwt.Parser
	now    func() time.Time

	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

func NewTokens(opts Options) (*Tokens, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}
	if opts.KeyCacheTTL == 0 {
		opts.KeyCacheTTL = DefaultKeyCacheTTL
	}
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if opts.JWKS != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	return &Tokens{
		secret:      opts.Secret,
		ttl:         opts.TTL,
		issuer:      opts.Issuer,
		jwks:        opts.JWKS,
		parser:      jwt.NewParser(jwt.WithValidMethods(methods)),
		now:         time.Now,
		keyCacheTTL: opts.KeyCacheTTL,
	}, nil
}

// Issue signs a token carrying id that expires after the configured TTL.
func (t *Tokens) Issue(id domain.Identity) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: id.ID,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns the identity it
// carries. Expired tokens fail with domain.ErrTokenExpired, every other
// failure with domain.ErrTokenInvalid.
func (t *Tokens) Verify(raw string) (domain.Identity, error) {
	var claims Claims
	_, err := t.parser.ParseWithClaims(raw, &claims, t.keyFor)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return domain.Identity{}, domain.ErrTokenExpired
		}
		return domain.Identity{}, domain.ErrTokenInvalid
	}
	if claims.ExpiresAt == nil {
		return domain.Identity{}, domain.ErrTokenInvalid
	}
	if t.issuer != "" && !claims.VerifyIssuer(t.issuer, true) {
		return domain.Identity{}, domain.ErrTokenInvalid
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return domain.Identity{}, domain.ErrTokenInvalid
	}
	return domain.Identity{ID: id, Email: claims.Email}, nil
}

func (t *Tokens) keyFor(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return t.secret, nil
	case *jwt.SigningMethodRSA:
		return t.jwksKey(token)
	}
	return nil, errors.New("invalid signing method")
}

func (t *Tokens) jwksKey(token *jwt.Token) (any, error) {
	if t.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && t.keyCacheTTL > 0 {
		if cached, ok := t.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			t.keyCache.Delete(kid)
		}
	}

	key, err := t.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && t.keyCacheTTL > 0 {
		t.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(t.keyCacheTTL)})
	}
	return key, nil
}
