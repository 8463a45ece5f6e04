package aegis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type encodeOptions struct {
	accessLifespan  *time.Duration
	refreshLifespan *time.Duration
	bypassUserCheck bool
	isRegistration  bool
	isReset         bool
	custom          map[string]any
}

// EncodeOption customizes a single token encoding.
type EncodeOption func(*encodeOptions)

// WithAccessLifespan overrides the configured access lifespan for this
// token. The resulting access expiry never exceeds the refresh expiry.
func WithAccessLifespan(d time.Duration) EncodeOption {
	return func(o *encodeOptions) { o.accessLifespan = &d }
}

// WithRefreshLifespan overrides the configured refresh lifespan for this
// token.
func WithRefreshLifespan(d time.Duration) EncodeOption {
	return func(o *encodeOptions) { o.refreshLifespan = &d }
}

// WithBypassUserCheck skips the user validity check. Used when issuing
// registration tokens for users that cannot log in yet.
func WithBypassUserCheck() EncodeOption {
	return func(o *encodeOptions) { o.bypassUserCheck = true }
}

// AsRegistrationToken tags the token as usable only for registration.
func AsRegistrationToken() EncodeOption {
	return func(o *encodeOptions) { o.isRegistration = true }
}

// AsResetToken tags the token as usable only for password reset.
func AsResetToken() EncodeOption {
	return func(o *encodeOptions) { o.isReset = true }
}

// WithCustomClaims packs additional claims into the payload. Values must be
// JSON compatible and keys may not collide with reserved claims.
func WithCustomClaims(claims map[string]any) EncodeOption {
	return func(o *encodeOptions) {
		if o.custom == nil {
			o.custom = make(map[string]any, len(claims))
		}
		for k, v := range claims {
			o.custom[k] = v
		}
	}
}

// EncodeToken packs user data into a token usable for authorization at
// protected endpoints. The claim set carries a fresh jti, iat=now,
// exp=min(now+accessLifespan, refreshExpiry) and the refresh expiry; the
// configured encode hook observes the finished claim set before
// serialization.
func (g *Guard) EncodeToken(ctx context.Context, user User, opts ...EncodeOption) (string, error) {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	for key := range o.custom {
		if reservedClaims[key] {
			return "", fmt.Errorf(
				"%w: custom claim %q is reserved", ErrClaimCollision, key,
			)
		}
	}
	if !o.bypassUserCheck {
		if err := g.checkUser(user); err != nil {
			return "", err
		}
	}

	moment := g.clock().UTC().Unix()

	refreshLifespan := g.config.RefreshLifespan
	if o.refreshLifespan != nil {
		refreshLifespan = *o.refreshLifespan
	}
	refreshExpiration := moment + int64(refreshLifespan/time.Second)

	accessLifespan := g.config.AccessLifespan
	if o.accessLifespan != nil {
		accessLifespan = *o.accessLifespan
	}
	accessExpiration := min(moment+int64(accessLifespan/time.Second), refreshExpiration)

	claims := map[string]any{
		"iat":                  moment,
		"exp":                  accessExpiration,
		"jti":                  uuid.NewString(),
		"id":                   user.Identity(),
		"rls":                  g.joinedRoles(user),
		RefreshExpirationClaim: refreshExpiration,
	}
	if o.isRegistration {
		claims[IsRegistrationTokenClaim] = true
	}
	if o.isReset {
		claims[IsResetTokenClaim] = true
	}
	if len(o.custom) > 0 {
		g.log.Debug().Int("count", len(o.custom)).Msg("attaching custom claims")
		for k, v := range o.custom {
			claims[k] = v
		}
	}

	if g.config.EncodeTokenHook != nil {
		if err := g.config.EncodeTokenHook(claims); err != nil {
			return "", err
		}
	}
	return g.codec.Encode(claims)
}

// EncodeEternalToken encodes a token that never expires. Pair this with a
// blacklist so the token can still be revoked if it ever leaks.
func (g *Guard) EncodeEternalToken(ctx context.Context, user User, opts ...EncodeOption) (string, error) {
	opts = append(opts,
		WithAccessLifespan(EternalLifespan),
		WithRefreshLifespan(EternalLifespan),
	)
	return g.EncodeToken(ctx, user, opts...)
}

// RefreshToken exchanges a token whose access window has closed but whose
// refresh window is still open for a fresh one. The new token keeps the
// original jti and refresh expiry and carries every non-reserved claim
// forward; only iat and exp are recomputed. Roles are re-read from the
// freshly resolved user.
func (g *Guard) RefreshToken(ctx context.Context, token string, opts ...EncodeOption) (string, error) {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	moment := g.clock().UTC().Unix()
	data, err := g.ExtractToken(ctx, token, TokenRefresh)
	if err != nil {
		return "", err
	}

	id, _ := claimString(data, "id")
	user, err := g.store.Identify(ctx, id)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrMissingUser
	}
	if err := g.checkUser(user); err != nil {
		return "", err
	}

	accessLifespan := g.config.AccessLifespan
	if o.accessLifespan != nil {
		accessLifespan = *o.accessLifespan
	}
	refreshExpiration, _ := claimInt64(data, RefreshExpirationClaim)
	accessExpiration := min(moment+int64(accessLifespan/time.Second), refreshExpiration)

	jti, _ := claimString(data, "jti")
	claims := map[string]any{
		"iat":                  moment,
		"exp":                  accessExpiration,
		"jti":                  jti,
		"id":                   id,
		"rls":                  g.joinedRoles(user),
		RefreshExpirationClaim: refreshExpiration,
	}
	for k, v := range data {
		if !reservedClaims[k] {
			claims[k] = v
		}
	}

	if g.config.RefreshTokenHook != nil {
		if err := g.config.RefreshTokenHook(claims); err != nil {
			return "", err
		}
	}
	return g.codec.Encode(claims)
}

// ExtractToken decodes a token via the configured codec and validates the
// claim set against the given purpose. Expiry is enforced here, uniformly
// for both token formats, never inside the codec.
func (g *Guard) ExtractToken(ctx context.Context, token string, access AccessType) (map[string]any, error) {
	claims, err := g.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if err := g.validateClaims(claims, access); err != nil {
		return nil, err
	}
	return claims, nil
}

// PackHeader encodes a token for the user and packages it as the
// configured header, e.g. {"Authorization": "Bearer <token>"}.
func (g *Guard) PackHeader(ctx context.Context, user User, opts ...EncodeOption) (map[string]string, error) {
	token, err := g.EncodeToken(ctx, user, opts...)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		g.config.HeaderName: g.config.HeaderType + " " + token,
	}, nil
}

// validateClaims applies the claim rules for the given purpose in a fixed
// order; the first violated rule decides the error. Both codecs feed the
// same rules, so the two formats share one expiry policy.
func (g *Guard) validateClaims(claims map[string]any, access AccessType) error {
	jti, ok := claimString(claims, "jti")
	if !ok {
		return fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	if g.config.IsBlacklisted(jti) {
		return ErrBlacklisted
	}
	if _, ok := claims["id"]; !ok {
		return fmt.Errorf("%w: id", ErrMissingClaim)
	}
	exp, ok := claimInt64(claims, "exp")
	if !ok {
		return fmt.Errorf("%w: exp", ErrMissingClaim)
	}
	refreshExp, ok := claimInt64(claims, RefreshExpirationClaim)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingClaim, RefreshExpirationClaim)
	}

	moment := g.clock().UTC().Unix()
	switch access {
	case TokenAccess:
		if _, tagged := claims[IsRegistrationTokenClaim]; tagged {
			return fmt.Errorf("%w: registration token used for access", ErrMisusedRegistrationToken)
		}
		if _, tagged := claims[IsResetTokenClaim]; tagged {
			return fmt.Errorf("%w: reset token used for access", ErrMisusedResetToken)
		}
		if moment > exp {
			return ErrExpiredAccess
		}
	case TokenRefresh:
		if _, tagged := claims[IsRegistrationTokenClaim]; tagged {
			return fmt.Errorf("%w: registration token used for refresh", ErrMisusedRegistrationToken)
		}
		if _, tagged := claims[IsResetTokenClaim]; tagged {
			return fmt.Errorf("%w: reset token used for refresh", ErrMisusedResetToken)
		}
		if moment <= exp {
			return ErrEarlyRefresh
		}
		if moment > refreshExp {
			return ErrExpiredRefresh
		}
	case TokenRegister:
		if moment > exp {
			return fmt.Errorf("%w: register permission has expired", ErrExpiredAccess)
		}
		if _, tagged := claims[IsRegistrationTokenClaim]; !tagged {
			return ErrInvalidRegistrationToken
		}
		if _, tagged := claims[IsResetTokenClaim]; tagged {
			return fmt.Errorf("%w: reset token used for registration", ErrMisusedResetToken)
		}
	case TokenReset:
		if _, tagged := claims[IsRegistrationTokenClaim]; tagged {
			return fmt.Errorf("%w: registration token used for reset", ErrMisusedRegistrationToken)
		}
		if moment > exp {
			return fmt.Errorf("%w: reset permission has expired", ErrExpiredAccess)
		}
		if _, tagged := claims[IsResetTokenClaim]; !tagged {
			return ErrInvalidResetToken
		}
	default:
		return fmt.Errorf("%w: unknown access type %q", ErrConfiguration, access)
	}
	return nil
}

func (g *Guard) joinedRoles(user User) string {
	if g.config.RolesDisabled {
		return ""
	}
	return strings.Join(user.RoleNames(), ",")
}

// claimInt64 reads a numeric claim regardless of how the serialization
// round-trip typed it.
func claimInt64(claims map[string]any, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

func claimString(claims map[string]any, key string) (string, bool) {
	v, ok := claims[key].(string)
	return v, ok && v != ""
}
