package aegis

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/halvardm/aegis/codec"
	"github.com/halvardm/aegis/password"
	"github.com/halvardm/aegis/totp"
)

// Guard ties password hashing, second-factor verification, the token codec
// and claim validation together into the authenticate / encode / refresh /
// extract operations. A Guard is constructed once, holds only read-only
// configuration, and is safe for concurrent use; pass it explicitly to
// every call site that needs it.
type Guard struct {
	config      Config
	store       UserStore
	hasher      *password.CryptContext
	totp        *totp.Factory
	codec       codec.Codec
	headerMatch *regexp.Regexp
	log         zerolog.Logger

	// clock is overridable in tests; everything time-dependent goes
	// through it.
	clock func() time.Time
}

// New validates cfg, resolves the token codec and hashing/TOTP policies,
// and returns a ready Guard. Every misconfiguration fails here with
// ErrConfiguration; nothing is deferred to use time.
func New(cfg Config, store UserStore) (*Guard, error) {
	if store == nil {
		return nil, errConfigf("a user store is required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	// PASETO may carry its key material in the rotation list instead.
	if len(cfg.EncodeKey) == 0 &&
		!(cfg.TokenProvider == ProviderPASETO && len(cfg.PASETOKeys) > 0) {
		return nil, errConfigf("an encode key must be configured")
	}

	hasher, err := password.NewCryptContext(cfg.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	verifier, err := totp.NewFactory(cfg.TOTP)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	g := &Guard{
		config: cfg,
		store:  store,
		hasher: hasher,
		totp:   verifier,
		log:    cfg.Logger,
		clock:  time.Now,
	}

	switch cfg.TokenProvider {
	case ProviderJWT:
		g.codec, err = codec.NewJWT(codec.JWTConfig{
			Algorithm:         cfg.Algorithm,
			AllowedAlgorithms: cfg.AllowedAlgorithms,
			Key:               cfg.EncodeKey,
			PublicKey:         cfg.PublicKey,
		})
	case ProviderPASETO:
		g.codec, err = codec.NewPASETO(cfg.pasetoConfig())
	default:
		return nil, errConfigf("token provider must be %q or %q, got %q",
			ProviderJWT, ProviderPASETO, cfg.TokenProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	g.headerMatch = regexp.MustCompile(
		`^` + regexp.QuoteMeta(cfg.HeaderType) + `\s*([\w.-]+)`,
	)
	return g, nil
}

// Config returns a copy of the guard's normalized configuration.
func (g *Guard) Config() Config {
	return g.config
}

// Authenticate verifies a username/password pair and returns the matching
// user. Users with an enrolled second factor are rejected with
// ErrTOTPRequired when enforcement is on; call AuthenticateWithTOTP or
// AuthenticateTOTP to complete the challenge.
func (g *Guard) Authenticate(ctx context.Context, username, plaintext string) (User, error) {
	return g.authenticate(ctx, username, plaintext, "")
}

// AuthenticateWithTOTP verifies a username/password pair and a TOTP code in
// one call.
func (g *Guard) AuthenticateWithTOTP(ctx context.Context, username, plaintext, code string) (User, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: a totp code is required", ErrAuthentication)
	}
	return g.authenticate(ctx, username, plaintext, code)
}

func (g *Guard) authenticate(ctx context.Context, username, plaintext, code string) (User, error) {
	user, err := g.store.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrAuthentication
	}
	ok, err := g.hasher.Verify(plaintext, user.HashedPassword())
	if err != nil || !ok {
		return nil, ErrAuthentication
	}

	// A user routes into the second-factor flow only when a code was
	// supplied or a TOTP configuration is actually enrolled; merely
	// implementing the capability is not enough.
	if code != "" || userTOTPConfig(user) != "" {
		switch {
		case code != "":
			if _, err := g.authenticateTOTP(ctx, user, code); err != nil {
				return nil, err
			}
		case g.config.TOTPEnforce:
			return nil, fmt.Errorf(
				"%w: password authentication successful, totp still required for user %q",
				ErrTOTPRequired, username,
			)
		}
	}

	if g.config.HashAutoUpdate {
		if _, err := g.VerifyAndUpdate(ctx, user, plaintext); err != nil {
			return nil, err
		}
	} else if g.config.HashAutoTest {
		if _, err := g.VerifyAndUpdate(ctx, user, ""); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// AuthenticateTOTP validates a TOTP code for the named user without
// checking the password. The user must have an enrolled second factor.
func (g *Guard) AuthenticateTOTP(ctx context.Context, username, code string) (User, error) {
	user, err := g.store.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	return g.authenticateTOTP(ctx, user, code)
}

func (g *Guard) authenticateTOTP(ctx context.Context, user User, code string) (User, error) {
	if user == nil {
		return nil, ErrAuthentication
	}
	stored := userTOTPConfig(user)
	if stored == "" {
		return nil, fmt.Errorf(
			"%w: totp challenge is not properly configured for this user", ErrAuthentication,
		)
	}

	lastCounter, err := g.lastVerifyCounter(ctx, user)
	if err != nil {
		return nil, err
	}
	match, err := g.totp.Verify(code, stored, lastCounter, g.clock())
	if err != nil {
		return nil, err
	}

	if cache, ok := user.(TOTPVerifyCache); ok {
		g.log.Debug().
			Str("user", user.Identity()).
			Int64("counter", match.Counter).
			Msg("updating totp verify cache")
		if err := cache.CacheVerify(ctx, match.Counter, match.CacheSeconds); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// lastVerifyCounter reads the replay floor for a user: the verify cache
// when implemented, the user's own stored counter otherwise.
func (g *Guard) lastVerifyCounter(ctx context.Context, user User) (int64, error) {
	if cache, ok := user.(TOTPVerifyCache); ok {
		return cache.GetCacheVerify(ctx)
	}
	if tu, ok := user.(TOTPUser); ok {
		return tu.TOTPLastCounter(), nil
	}
	return -1, nil
}

// GenerateUserTOTP produces a new second-factor enrollment secret as an
// opaque blob for the caller to persist on the user.
func (g *Guard) GenerateUserTOTP() (string, error) {
	if g.config.TOTP.Source == totp.SourceNone {
		g.log.Warn().Msg(
			"generating a totp secret without a configured secret source; " +
				"stored totp secrets will not be encrypted at rest",
		)
	}
	return g.totp.NewSecret()
}

// TOTPProvisionURI renders the otpauth:// enrollment URI for a stored
// secret blob.
func (g *Guard) TOTPProvisionURI(stored, account string) (string, error) {
	return g.totp.ProvisionURI(stored, account)
}

// HashPassword hashes a plaintext password with the configured default
// scheme.
func (g *Guard) HashPassword(plaintext string) (string, error) {
	return g.hasher.Hash(plaintext)
}

// verifyPassword checks a plaintext password against a stored hash under
// the configured scheme policy.
func (g *Guard) verifyPassword(plaintext, hashed string) bool {
	ok, err := g.hasher.Verify(plaintext, hashed)
	return err == nil && ok
}

// VerifyAndUpdate checks whether the user's stored hash uses the current
// default scheme. With a plaintext available the password is verified and,
// when outdated, re-hashed; the fresh hash is returned (and pushed through
// the user's PasswordUpdater capability when present) for the caller to
// persist. Without a plaintext an outdated hash fails with ErrLegacyScheme.
// The returned hash is empty when the stored one is already current.
func (g *Guard) VerifyAndUpdate(ctx context.Context, user User, plaintext string) (string, error) {
	hashed := user.HashedPassword()
	if !g.hasher.NeedsUpdate(hashed) {
		return "", nil
	}
	if plaintext == "" {
		used, _ := g.hasher.Identify(hashed)
		return "", fmt.Errorf(
			"%w: hash uses scheme %q, use %q instead",
			ErrLegacyScheme, used, g.hasher.DefaultName(),
		)
	}
	ok, updated, err := g.hasher.VerifyAndUpdate(plaintext, hashed)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: could not verify password", ErrAuthentication)
	}
	if updated != "" {
		if up, canUpdate := user.(PasswordUpdater); canUpdate {
			up.SetHashedPassword(updated)
		}
	}
	return updated, nil
}

// checkUser rejects absent users with ErrMissingUser and consults the
// user's validity check, when implemented, rejecting with ErrInvalidUser.
func (g *Guard) checkUser(user User) error {
	if user == nil {
		return ErrMissingUser
	}
	if v, ok := user.(UserValidator); ok && !v.IsValid() {
		return ErrInvalidUser
	}
	return nil
}

func userTOTPConfig(user User) string {
	if tu, ok := user.(TOTPUser); ok {
		return tu.TOTPConfiguration()
	}
	return ""
}

func errConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}
