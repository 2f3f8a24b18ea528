package clientstate

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gadgethost/internal/config"
)

// Codec turns State into the opaque st value handed to the gadget runtime
// and back.
type Codec interface {
	Wrap(s State) (string, error)
	Unwrap(st string) (State, error)
}

// NewCodec returns the codec selected by cfg.Format, keyed by secret.
func NewCodec(cfg config.ClientStateConfig, secret string) (Codec, error) {
	switch cfg.Format {
	case config.ClientStateFormatAES, "":
		c, err := NewCrypter(secret)
		if err != nil {
			return nil, err
		}
		return &AESCodec{crypter: c}, nil
	case config.ClientStateFormatJWT:
		return NewJWTCodec(secret, cfg.Issuer, cfg.MaxAge)
	default:
		return nil, fmt.Errorf("unknown client state format %q", cfg.Format)
	}
}

// FromRequest unwraps the st parameter of r.
func FromRequest(c Codec, r *http.Request) (State, error) {
	st := r.FormValue("st")
	if st == "" {
		return State{}, fmt.Errorf("%w: missing st parameter", ErrInvalidClientState)
	}
	return c.Unwrap(st)
}

// AESCodec encrypts the colon-delimited encoding.
type AESCodec struct {
	crypter *Crypter
}

func (c *AESCodec) Wrap(s State) (string, error) {
	return c.crypter.Encrypt(s.Encode())
}

func (c *AESCodec) Unwrap(st string) (State, error) {
	plain, err := c.crypter.Decrypt(st)
	if err != nil {
		return State{}, err
	}
	return Decode(plain)
}

type stateClaims struct {
	jwt.RegisteredClaims
	Owner     string `json:"o,omitempty"`
	App       string `json:"a,omitempty"`
	Viewer    string `json:"v,omitempty"`
	Domain    string `json:"d,omitempty"`
	URL       string `json:"u,omitempty"`
	Module    string `json:"m,omitempty"`
	Container string `json:"c,omitempty"`
}

// JWTCodec issues HS256 signed security tokens that expire after maxAge.
// They are readable by the gadget runtime, so nothing secret goes in them.
type JWTCodec struct {
	key    []byte
	issuer string
	maxAge time.Duration
	now    func() time.Time
}

// NewJWTCodec derives the signing key from secret.
func NewJWTCodec(secret, issuer string, maxAge time.Duration) (*JWTCodec, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("security token max age must be positive")
	}
	key, err := deriveKey(secret, signingKeyInfo)
	if err != nil {
		return nil, err
	}
	return &JWTCodec{key: key, issuer: issuer, maxAge: maxAge, now: time.Now}, nil
}

func (c *JWTCodec) Wrap(s State) (string, error) {
	now := c.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   s.Viewer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
		Owner:     s.Owner,
		App:       s.App,
		Viewer:    s.Viewer,
		Domain:    s.Domain,
		URL:       s.URL,
		Module:    s.Module,
		Container: s.Container,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign security token: %w", err)
	}
	return signed, nil
}

func (c *JWTCodec) Unwrap(st string) (State, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(st, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return State{}, fmt.Errorf("%w: security token expired", ErrInvalidClientState)
		}
		return State{}, fmt.Errorf("%w: %v", ErrInvalidClientState, err)
	}
	return State{
		Owner:     claims.Owner,
		App:       claims.App,
		Viewer:    claims.Viewer,
		Domain:    claims.Domain,
		URL:       claims.URL,
		Module:    claims.Module,
		Container: claims.Container,
	}, nil
}
