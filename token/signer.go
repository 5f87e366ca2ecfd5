package token

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 is an exported constant used by the authentication engine.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 is an exported constant used by the authentication engine.
	MethodHS256 SigningMethod = "hs256"
)

// ErrTokenInvalid covers every parse/verify failure; callers are not told
// which check failed.
var ErrTokenInvalid = errors.New("invalid token")

const (
	typAccess  = "access"
	typRefresh = "refresh"
)

// Config holds the signer's keys and TTLs.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Now           func() time.Time
}

// Signer issues and verifies access and refresh tokens.
type Signer struct {
	config Config
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	AccountID string `json:"uid"`
	Email     string `json:"eml,omitempty"`
	Role      string `json:"rol,omitempty"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. It deliberately carries
// no email or role; those are re-read at refresh time.
type RefreshClaims struct {
	AccountID string `json:"uid"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewSigner validates the configuration and returns a [Signer].
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Signer{config: cfg}, nil
}

// SignAccess issues an access token bound to the given session.
func (s *Signer) SignAccess(accountID, email, role, sessionID string) (string, error) {
	now := s.config.Now()
	claims := AccessClaims{
		AccountID: accountID,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		TokenType: typAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}
	return s.sign(jwt.NewWithClaims(s.method(), claims))
}

// SignRefresh issues a refresh token bound to the given session.
func (s *Signer) SignRefresh(accountID, sessionID string) (string, error) {
	now := s.config.Now()
	claims := RefreshClaims{
		AccountID: accountID,
		SessionID: sessionID,
		TokenType: typRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}
	return s.sign(jwt.NewWithClaims(s.method(), claims))
}

// ParseAccess verifies an access token and returns its claims.
func (s *Signer) ParseAccess(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != typAccess || claims.AccountID == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (s *Signer) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.parse(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != typRefresh || claims.AccountID == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func (s *Signer) sign(token *jwt.Token) (string, error) {
	key, err := s.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

func (s *Signer) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method().Alg()}),
		jwt.WithTimeFunc(s.config.Now),
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.verifyKey()
	})
	if err != nil || !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}

func (s *Signer) method() jwt.SigningMethod {
	switch s.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (s *Signer) signKey() (interface{}, error) {
	switch s.config.SigningMethod {
	case MethodHS256:
		return s.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(s.config.PrivateKey)
	}
}

func (s *Signer) verifyKey() (interface{}, error) {
	switch s.config.SigningMethod {
	case MethodHS256:
		return s.config.PrivateKey, nil
	default:
		return parseEdPublicKey(s.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
