package aegis

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/halvardm/aegis/codec"
	"github.com/halvardm/aegis/password"
	"github.com/halvardm/aegis/totp"
)

// TokenProvider selects the token format produced and accepted by a Guard.
type TokenProvider string

const (
	// ProviderJWT issues compact signed JWTs.
	ProviderJWT TokenProvider = "jwt"
	// ProviderPASETO issues PASETO envelopes.
	ProviderPASETO TokenProvider = "paseto"
)

// AccessType is the purpose a decoded claim set is validated against. It is
// computed from the operation being performed, never persisted.
type AccessType string

const (
	// TokenAccess validates a token for authorized access.
	TokenAccess AccessType = "ACCESS"
	// TokenRefresh validates a token for exchange against a fresh one.
	TokenRefresh AccessType = "REFRESH"
	// TokenRegister validates a single-use registration token.
	TokenRegister AccessType = "REGISTER"
	// TokenReset validates a single-use password reset token.
	TokenReset AccessType = "RESET"
)

// Reserved claim keys. Custom claims may not use any of these.
const (
	RefreshExpirationClaim   = "rf_exp"
	IsRegistrationTokenClaim = "is_ert"
	IsResetTokenClaim        = "is_prt"
)

var reservedClaims = map[string]bool{
	"iat":                    true,
	"exp":                    true,
	"jti":                    true,
	"id":                     true,
	"rls":                    true,
	RefreshExpirationClaim:   true,
	IsRegistrationTokenClaim: true,
	IsResetTokenClaim:        true,
}

// Token extraction locations recognized by ReadToken.
const (
	TokenPlaceHeader = "header"
	TokenPlaceCookie = "cookie"
)

// Defaults applied by DefaultConfig and by New for zero-valued fields.
const (
	DefaultAccessLifespan  = 15 * time.Minute
	DefaultRefreshLifespan = 30 * day
	DefaultResetLifespan   = 10 * time.Minute
	DefaultHeaderName      = "Authorization"
	DefaultHeaderType      = "Bearer"
	DefaultCookieName      = "access_token"
	DefaultAlgorithm       = "HS256"
)

// EternalLifespan is the lifespan used by EncodeEternalToken. A hundred
// thousand days is roughly 273 years, close to the ceiling a time.Duration
// can hold, and outlives any deployment this library will see.
const EternalLifespan = 100000 * day

// Config is the full configuration surface of a Guard. It is copied at New
// and treated as immutable afterward.
type Config struct {
	// EncodeKey is the secret key material: the HMAC secret or PEM private
	// key for JWT, and the fallback PASETO key when PASETOKeys is empty.
	// Required.
	EncodeKey []byte
	// PublicKey optionally carries the PEM verification key for asymmetric
	// JWT algorithms.
	PublicKey []byte
	// Algorithm is the JWT signing algorithm. Default HS256.
	Algorithm string
	// AllowedAlgorithms lists the algorithms accepted when decoding JWTs.
	// Defaults to just Algorithm.
	AllowedAlgorithms []string

	// TokenProvider selects jwt or paseto. Default jwt.
	TokenProvider TokenProvider
	// PASETOVersion selects the PASETO protocol version (2-4, default 4).
	PASETOVersion int
	// PASETOPurpose is "local" (default) or "public".
	PASETOPurpose string
	// PASETOKeys is the ordered PASETO key list for rotation. Empty means
	// a single-element list holding EncodeKey.
	PASETOKeys [][]byte

	// AccessLifespan bounds how long a token authorizes access. Default
	// 15m. AccessLifespanString is its human-readable alternative, parsed
	// with ParseDurationString; at most one of the pair may be set.
	AccessLifespan       time.Duration
	AccessLifespanString string
	// RefreshLifespan bounds how long an access-expired token may still be
	// exchanged for a new one. Default 30d.
	RefreshLifespan       time.Duration
	RefreshLifespanString string
	// ResetLifespan bounds reset token validity. Default 10m.
	ResetLifespan time.Duration

	// TokenPlaces is the ordered list of locations ReadToken searches.
	// Default [header, cookie].
	TokenPlaces []string
	// HeaderName, HeaderType and CookieName configure extraction. Defaults:
	// Authorization, Bearer, access_token.
	HeaderName string
	HeaderType string
	CookieName string

	// RolesDisabled leaves the rls claim empty instead of joining the
	// user's role names.
	RolesDisabled bool

	// Hash configures the password hashing policy.
	Hash password.Config
	// HashAutoUpdate re-hashes and hands back passwords verified against
	// an outdated scheme after successful authentication.
	HashAutoUpdate bool
	// HashAutoTest fails authentication with ErrLegacyScheme when the
	// stored hash uses an outdated scheme, without modifying anything.
	HashAutoTest bool

	// TOTP configures the second-factor verifier.
	TOTP totp.Config
	// TOTPEnforce requires users with an enrolled second factor to supply
	// a code during Authenticate. Set by DefaultConfig.
	TOTPEnforce bool

	// IsBlacklisted is consulted with a token's jti during validation.
	// Default: nothing is blacklisted.
	IsBlacklisted func(jti string) bool
	// EncodeTokenHook observes claim sets right before initial encoding.
	EncodeTokenHook ClaimsHook
	// RefreshTokenHook observes claim sets right before re-encoding during
	// refresh.
	RefreshTokenHook ClaimsHook

	// Mailer delivers registration and reset notifications. Required only
	// by the Send*Email operations.
	Mailer Mailer
	// Notification templates and addressing. Templates are html/template
	// sources rendering a Notification.
	ConfirmationTemplate string
	ConfirmationURI      string
	ConfirmationSender   string
	ConfirmationSubject  string
	ResetTemplate        string
	ResetURI             string
	ResetSender          string
	ResetSubject         string

	// Logger receives structured diagnostics. Default zerolog.Nop().
	Logger zerolog.Logger
}

// DefaultConfig returns a Config with the library defaults filled in.
// EncodeKey and the hooks remain for the caller to supply.
func DefaultConfig() Config {
	return Config{
		Algorithm:           DefaultAlgorithm,
		TokenProvider:       ProviderJWT,
		AccessLifespan:      DefaultAccessLifespan,
		RefreshLifespan:     DefaultRefreshLifespan,
		ResetLifespan:       DefaultResetLifespan,
		TokenPlaces:         []string{TokenPlaceHeader, TokenPlaceCookie},
		HeaderName:          DefaultHeaderName,
		HeaderType:          DefaultHeaderType,
		CookieName:          DefaultCookieName,
		TOTPEnforce:         true,
		ConfirmationSubject: "Please confirm your registration",
		ResetSubject:        "Password Reset Requested",
		Logger:              zerolog.Nop(),
	}
}

// normalize applies defaults for zero-valued fields and resolves the
// human-readable lifespan strings. Called once by New.
func (c *Config) normalize() error {
	if c.Algorithm == "" {
		c.Algorithm = DefaultAlgorithm
	}
	if c.TokenProvider == "" {
		c.TokenProvider = ProviderJWT
	}
	if c.AccessLifespanString != "" {
		if c.AccessLifespan != 0 {
			return errConfigf("access lifespan configured both as duration and string")
		}
		parsed, err := ParseDurationString(c.AccessLifespanString)
		if err != nil {
			return err
		}
		c.AccessLifespan = parsed
	}
	if c.RefreshLifespanString != "" {
		if c.RefreshLifespan != 0 {
			return errConfigf("refresh lifespan configured both as duration and string")
		}
		parsed, err := ParseDurationString(c.RefreshLifespanString)
		if err != nil {
			return err
		}
		c.RefreshLifespan = parsed
	}
	if c.AccessLifespan <= 0 {
		c.AccessLifespan = DefaultAccessLifespan
	}
	if c.RefreshLifespan <= 0 {
		c.RefreshLifespan = DefaultRefreshLifespan
	}
	if c.ResetLifespan <= 0 {
		c.ResetLifespan = DefaultResetLifespan
	}
	if len(c.TokenPlaces) == 0 {
		c.TokenPlaces = []string{TokenPlaceHeader, TokenPlaceCookie}
	}
	if c.HeaderName == "" {
		c.HeaderName = DefaultHeaderName
	}
	if c.HeaderType == "" {
		c.HeaderType = DefaultHeaderType
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.ConfirmationSubject == "" {
		c.ConfirmationSubject = "Please confirm your registration"
	}
	if c.ResetSubject == "" {
		c.ResetSubject = "Password Reset Requested"
	}
	if c.IsBlacklisted == nil {
		c.IsBlacklisted = func(string) bool { return false }
	}
	return nil
}

func (c *Config) pasetoConfig() codec.PASETOConfig {
	keys := c.PASETOKeys
	if len(keys) == 0 {
		keys = [][]byte{c.EncodeKey}
	}
	return codec.PASETOConfig{
		Version: c.PASETOVersion,
		Purpose: c.PASETOPurpose,
		Keys:    keys,
	}
}
