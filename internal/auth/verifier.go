package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gioimtg2003/control-drone-first/internal/config"
)

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	// Algorithm is "RS256" or "HS256".
	Algorithm string

	// RS256
	PublicKeyPEM string

	// HS256
	SecretKey string
}

// Verifier checks token signatures and extracts claims.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: cfg}

	switch cfg.Algorithm {
	case "RS256":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
		v.publicKey = key
	case "HS256":
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", cfg.Algorithm)
	}
	return v, nil
}

// NewVerifierFromConfig builds a verifier for the configured mode. Mode
// "none" yields a nil verifier.
func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	switch cfg.Mode {
	case config.AuthNone, "":
		return nil, nil
	case config.AuthHS256:
		return NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: cfg.Secret})
	case config.AuthRS256:
		pemData, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		return NewVerifier(VerifierConfig{Algorithm: "RS256", PublicKeyPEM: string(pemData)})
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// VerifyToken verifies a JWT token and returns the claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{v.config.Algorithm}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return extractClaims(claims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch v.config.Algorithm {
	case "RS256":
		return v.publicKey, nil
	case "HS256":
		return []byte(v.config.SecretKey), nil
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

func extractClaims(claims jwt.MapClaims) (*Claims, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("missing or invalid 'sub' claim")
	}

	roles, err := stringSlice(claims, "roles")
	if err != nil {
		return nil, err
	}
	scopes, err := stringSlice(claims, "scopes")
	if err != nil {
		return nil, err
	}

	for _, role := range roles {
		if role != RoleObserver && role != RolePilot {
			return nil, fmt.Errorf("invalid role: %s", role)
		}
	}
	for _, scope := range scopes {
		switch scope {
		case ScopeTelemetry, ScopeSession, ScopeCommand:
		default:
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return &Claims{Subject: sub, Roles: roles, Scopes: scopes}, nil
}

func stringSlice(claims jwt.MapClaims, key string) ([]string, error) {
	value, ok := claims[key]
	if !ok {
		return nil, fmt.Errorf("missing claim: %s", key)
	}

	items, ok := value.([]interface{})
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("invalid %s claim: not a string array", key)
	}
	result := make([]string, len(items))
	for i, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("invalid %s claim: not a string", key)
		}
		result[i] = str
	}
	return result, nil
}
