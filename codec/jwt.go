package codec

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures a JWT codec.
type JWTConfig struct {
	// Algorithm is the signing algorithm for Encode, e.g. "HS256" (default),
	// "HS512", "RS256", "ES256" or "EdDSA".
	Algorithm string
	// AllowedAlgorithms lists algorithms accepted during Decode. Defaults to
	// just Algorithm.
	AllowedAlgorithms []string
	// Key is the HMAC secret for HS* algorithms, or the PEM-encoded private
	// key for asymmetric ones.
	Key []byte
	// PublicKey is the PEM-encoded verification key for asymmetric
	// algorithms. When empty the public half of Key is used.
	PublicKey []byte
}

// JWT encodes claim sets as compact signed JWS tokens. Keys and the signing
// method are resolved once at construction.
type JWT struct {
	method    jwt.SigningMethod
	allowed   []string
	signKey   any
	verifyKey any
}

// NewJWT validates cfg, resolves key material, and returns a ready codec.
func NewJWT(cfg JWTConfig) (*JWT, error) {
	alg := cfg.Algorithm
	if alg == "" {
		alg = "HS256"
	}
	if strings.EqualFold(alg, "none") {
		return nil, fmt.Errorf("%w: unsecured tokens are disabled", ErrConfiguration)
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrConfiguration, alg)
	}
	allowed := cfg.AllowedAlgorithms
	if len(allowed) == 0 {
		allowed = []string{alg}
	}
	if len(cfg.Key) == 0 {
		return nil, fmt.Errorf("%w: an encode key is required", ErrConfiguration)
	}

	c := &JWT{method: method, allowed: allowed}
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		c.signKey = cfg.Key
		c.verifyKey = cfg.Key
	default:
		private, public, err := parseKeyPair(alg, cfg.Key, cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		c.signKey = private
		c.verifyKey = public
	}
	return c, nil
}

// Encode signs the claim set into a compact three-segment token.
func (c *JWT) Encode(claims map[string]any) (string, error) {
	token := jwt.NewWithClaims(c.method, jwt.MapClaims(claims))
	return token.SignedString(c.signKey)
}

// Decode verifies the signature and returns the claim set. Claim validation,
// including expiry, is disabled here and left to the caller. Any structural
// or signature problem fails with ErrInvalidTokenHeader.
func (c *JWT) Decode(token string) (map[string]any, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(c.allowed),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.Parse(token, func(*jwt.Token) (any, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWT token: %v", ErrInvalidTokenHeader, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims payload", ErrInvalidTokenHeader)
	}
	return map[string]any(claims), nil
}
