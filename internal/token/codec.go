package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures, fail-closed: a token that trips any of these
// yields no payload at all.
var (
	ErrExpired      = errors.New("token expired")
	ErrMalformed    = errors.New("token malformed")
	ErrBadSignature = errors.New("token signature invalid")
)

const (
	classAccess  = "access"
	classRefresh = "refresh"
)

// AccessClaims is the access-token payload: subject email, subject id
// and the per-issuance session id (jti, in RegisteredClaims.ID).
type AccessClaims struct {
	Email  string `json:"email"`
	UserID int64  `json:"id"`
	Class  string `json:"cls"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-token payload: subject id and jti only.
type RefreshClaims struct {
	UserID int64  `json:"id"`
	Class  string `json:"cls"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Codec signs and verifies the two token classes with a single
// process-wide HS256 secret. Signing-key rotation is not supported;
// replacing the secret invalidates all outstanding tokens.
type Codec struct {
	cfg Config
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("token: invalid leeway")
	}
	return &Codec{cfg: cfg}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.cfg.AccessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

func (c *Codec) SignAccess(email string, userID int64, jti string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email:  email,
		UserID: userID,
		Class:  classAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access: %w", err)
	}
	return signed, nil
}

func (c *Codec) SignRefresh(userID int64, jti string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID: userID,
		Class:  classRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.RefreshTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh: %w", err)
	}
	return signed, nil
}

func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	// The class tag keeps a refresh token from passing as an access
	// token even though both are signed with the same secret.
	if claims.Class != classAccess || claims.ID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Class != classRefresh || claims.ID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.cfg.Leeway))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return c.cfg.Secret, nil
	})
	switch {
	case err == nil && tok.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	default:
		return ErrMalformed
	}
}
