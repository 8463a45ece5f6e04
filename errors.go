package aegis

import (
	"errors"

	"github.com/halvardm/aegis/codec"
	"github.com/halvardm/aegis/totp"
)

var (
	// ErrConfiguration reports an invalid or missing configuration value.
	// It is fatal at initialization; a constructed Guard never returns it.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrAuthentication reports missing or incorrect credentials.
	ErrAuthentication = errors.New("the credentials provided are missing or incorrect")
	// ErrTOTPRequired reports a successful password check for a user who
	// must still complete a TOTP challenge. Distinct from
	// ErrAuthentication so callers can prompt for a code instead of
	// rejecting the login.
	ErrTOTPRequired = errors.New("totp challenge required")
	// ErrMissingUser reports that the requested user could not be found.
	ErrMissingUser = errors.New("could not find the requested user")
	// ErrInvalidUser reports a user rejected by its validity check.
	ErrInvalidUser = errors.New("the user is not valid or has had access revoked")
	// ErrMissingToken reports that no token was found in any of the
	// configured locations.
	ErrMissingToken = errors.New("token not found")
	// ErrMissingClaim reports a token missing a required claim.
	ErrMissingClaim = errors.New("token is missing a required claim")
	// ErrBlacklisted reports a token whose jti has been blacklisted.
	ErrBlacklisted = errors.New("token has a blacklisted jti")
	// ErrExpiredAccess reports a token whose access window has closed.
	ErrExpiredAccess = errors.New("access permission has expired")
	// ErrEarlyRefresh reports a refresh attempted while the access window
	// is still open.
	ErrEarlyRefresh = errors.New("access permission for token has not expired, may not refresh")
	// ErrExpiredRefresh reports a token whose refresh window has closed.
	// An entirely new token must be issued.
	ErrExpiredRefresh = errors.New("refresh permission for token has expired")
	// ErrMisusedRegistrationToken reports a registration token presented
	// for access or refresh.
	ErrMisusedRegistrationToken = errors.New("registration token used for another purpose")
	// ErrMisusedResetToken reports a reset token presented for another
	// purpose.
	ErrMisusedResetToken = errors.New("password reset token used for another purpose")
	// ErrInvalidRegistrationToken reports a token without the registration
	// tag presented for registration.
	ErrInvalidRegistrationToken = errors.New("invalid registration token used for verification")
	// ErrInvalidResetToken reports a token without the reset tag presented
	// for password reset.
	ErrInvalidResetToken = errors.New("invalid reset token used for verification")
	// ErrClaimCollision reports custom claims that collide with reserved
	// claims.
	ErrClaimCollision = errors.New("custom claims collide with reserved claims")
	// ErrLegacyScheme reports a stored hash using a non-current scheme
	// when no plaintext is available to upgrade it.
	ErrLegacyScheme = errors.New("password hash uses a non-current scheme")
)

// Subpackage sentinels re-exported for ergonomic errors.Is checks at the
// guard level.
var (
	// ErrInvalidTokenHeader reports a token that could not be decoded.
	ErrInvalidTokenHeader = codec.ErrInvalidTokenHeader
	// ErrTOTPMalformed reports a TOTP code with the wrong shape.
	ErrTOTPMalformed = totp.ErrMalformedCode
	// ErrTOTPInvalid reports a well-formed but incorrect TOTP code.
	ErrTOTPInvalid = totp.ErrInvalidCode
	// ErrTOTPReused reports a replayed TOTP code.
	ErrTOTPReused = totp.ErrReusedCode
)
