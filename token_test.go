package aegis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func frozenGuard(t *testing.T, at time.Time, mutate ...func(*Config)) (*Guard, *memoryStore) {
	t.Helper()
	g, store := newTestGuard(t, mutate...)
	g.clock = func() time.Time { return at }
	return g, store
}

func TestEncodeExtractRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, now)
	u := addUser(t, g, store, "u1", "alice", "pw", "admin", "operator")

	token, err := g.EncodeToken(context.Background(), u,
		WithCustomClaims(map[string]any{"tenant": "acme"}))
	require.NoError(t, err)

	claims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)

	id, _ := claimString(claims, "id")
	require.Equal(t, "u1", id)
	require.Equal(t, "admin,operator", claims["rls"])
	require.Equal(t, "acme", claims["tenant"])

	iat, _ := claimInt64(claims, "iat")
	exp, _ := claimInt64(claims, "exp")
	refreshExp, _ := claimInt64(claims, RefreshExpirationClaim)
	require.Equal(t, now.Unix(), iat)
	require.Equal(t, now.Add(DefaultAccessLifespan).Unix(), exp)
	require.Equal(t, now.Add(DefaultRefreshLifespan).Unix(), refreshExp)
	require.Less(t, iat, exp)
	require.LessOrEqual(t, exp, refreshExp)

	jti, ok := claimString(claims, "jti")
	require.True(t, ok)
	require.NotEmpty(t, jti)
}

func TestEncodeTokenRolesDisabled(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, now, func(c *Config) { c.RolesDisabled = true })
	u := addUser(t, g, store, "u1", "alice", "pw", "admin")

	token, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)
	claims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)
	require.Equal(t, "", claims["rls"])
}

func TestAccessExpiryNeverExceedsRefreshExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, now)
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeToken(context.Background(), u,
		WithAccessLifespan(2*time.Hour),
		WithRefreshLifespan(time.Minute))
	require.NoError(t, err)

	claims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)
	exp, _ := claimInt64(claims, "exp")
	refreshExp, _ := claimInt64(claims, RefreshExpirationClaim)
	require.Equal(t, now.Add(time.Minute).Unix(), exp)
	require.Equal(t, exp, refreshExp)
}

func TestEncodeTokenRejectsReservedCustomClaim(t *testing.T) {
	g, store := newTestGuard(t)
	u := addUser(t, g, store, "u1", "alice", "pw")

	for _, key := range []string{"exp", "iat", "jti", "id", "rls", RefreshExpirationClaim} {
		_, err := g.EncodeToken(context.Background(), u,
			WithCustomClaims(map[string]any{key: "boom"}))
		require.ErrorIs(t, err, ErrClaimCollision, "claim %q", key)
	}
}

func TestEncodeTokenClaimCollisionBeatsUserCheck(t *testing.T) {
	g, store := newTestGuard(t)
	u := addUser(t, g, store, "u1", "alice", "pw")
	u.valid = false
	invalid := validatedUser{u}

	// The collision is reported even though the user would also have been
	// rejected.
	_, err := g.EncodeToken(context.Background(), invalid,
		WithCustomClaims(map[string]any{"exp": 1}))
	require.ErrorIs(t, err, ErrClaimCollision)

	_, err = g.EncodeToken(context.Background(), invalid)
	require.ErrorIs(t, err, ErrInvalidUser)

	_, err = g.EncodeToken(context.Background(), invalid, WithBypassUserCheck())
	require.NoError(t, err)
}

func TestEncodeTokenHookObservesAndAborts(t *testing.T) {
	var seen map[string]any
	g, store := newTestGuard(t, func(c *Config) {
		c.EncodeTokenHook = func(claims map[string]any) error {
			seen = claims
			return nil
		}
	})
	u := addUser(t, g, store, "u1", "alice", "pw")

	_, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, "u1", seen["id"])

	g2, store2 := newTestGuard(t, func(c *Config) {
		c.EncodeTokenHook = func(map[string]any) error {
			return context.Canceled
		}
	})
	u2 := addUser(t, g2, store2, "u1", "alice", "pw")
	_, err = g2.EncodeToken(context.Background(), u2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEncodeEternalToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, now)
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeEternalToken(context.Background(), u)
	require.NoError(t, err)
	claims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)

	exp, _ := claimInt64(claims, "exp")
	refreshExp, _ := claimInt64(claims, RefreshExpirationClaim)
	require.Equal(t, now.Add(EternalLifespan).Unix(), exp)
	require.Equal(t, exp, refreshExp)

	// The horizon must land centuries out without wrapping the duration.
	require.Greater(t, EternalLifespan, time.Duration(0))
	require.Greater(t, exp, now.AddDate(250, 0, 0).Unix())
}

func TestRefreshWindows(t *testing.T) {
	issueAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, issueAt)
	u := addUser(t, g, store, "u1", "alice", "pw", "admin")

	token, err := g.EncodeToken(context.Background(), u,
		WithCustomClaims(map[string]any{"tenant": "acme"}))
	require.NoError(t, err)

	originalClaims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)
	originalJTI, _ := claimString(originalClaims, "jti")
	originalRefreshExp, _ := claimInt64(originalClaims, RefreshExpirationClaim)

	// Inside the access window a refresh is premature.
	g.clock = func() time.Time { return issueAt.Add(time.Minute) }
	_, err = g.RefreshToken(context.Background(), token)
	require.ErrorIs(t, err, ErrEarlyRefresh)

	// Past the access window but inside the refresh window it succeeds and
	// the token keeps its identity and overall deadline.
	refreshAt := issueAt.Add(DefaultAccessLifespan + time.Minute)
	g.clock = func() time.Time { return refreshAt }
	refreshed, err := g.RefreshToken(context.Background(), token)
	require.NoError(t, err)

	claims, err := g.ExtractToken(context.Background(), refreshed, TokenAccess)
	require.NoError(t, err)
	jti, _ := claimString(claims, "jti")
	refreshExp, _ := claimInt64(claims, RefreshExpirationClaim)
	iat, _ := claimInt64(claims, "iat")
	exp, _ := claimInt64(claims, "exp")
	require.Equal(t, originalJTI, jti)
	require.Equal(t, originalRefreshExp, refreshExp)
	require.Equal(t, refreshAt.Unix(), iat)
	require.Equal(t, refreshAt.Add(DefaultAccessLifespan).Unix(), exp)
	require.Equal(t, "acme", claims["tenant"], "custom claims carry forward")

	// Past the refresh window the token is dead.
	g.clock = func() time.Time { return issueAt.Add(DefaultRefreshLifespan + time.Minute) }
	_, err = g.RefreshToken(context.Background(), token)
	require.ErrorIs(t, err, ErrExpiredRefresh)
}

func TestRefreshRereadsRoles(t *testing.T) {
	issueAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, issueAt)
	u := addUser(t, g, store, "u1", "alice", "pw", "admin")

	token, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)

	u.roles = []string{"operator"}
	g.clock = func() time.Time { return issueAt.Add(DefaultAccessLifespan + time.Minute) }
	refreshed, err := g.RefreshToken(context.Background(), token)
	require.NoError(t, err)

	claims, err := g.ExtractToken(context.Background(), refreshed, TokenAccess)
	require.NoError(t, err)
	require.Equal(t, "operator", claims["rls"])
}

func TestRefreshFailsForVanishedOrInvalidUser(t *testing.T) {
	issueAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, issueAt)
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)
	g.clock = func() time.Time { return issueAt.Add(DefaultAccessLifespan + time.Minute) }

	delete(store.users, "u1")
	_, err = g.RefreshToken(context.Background(), token)
	require.ErrorIs(t, err, ErrMissingUser)

	u.valid = false
	store.users["u1"] = validatedUser{u}
	_, err = g.RefreshToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidUser)
}

func TestExtractExpiredAccessToken(t *testing.T) {
	issueAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, issueAt)
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)

	g.clock = func() time.Time { return issueAt.Add(DefaultAccessLifespan + time.Second) }
	_, err = g.ExtractToken(context.Background(), token, TokenAccess)
	require.ErrorIs(t, err, ErrExpiredAccess)
}

func TestExtractBlacklistedToken(t *testing.T) {
	revoked := make(map[string]bool)
	g, store := newTestGuard(t, func(c *Config) {
		c.IsBlacklisted = func(jti string) bool { return revoked[jti] }
	})
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)
	claims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)

	jti, _ := claimString(claims, "jti")
	revoked[jti] = true
	_, err = g.ExtractToken(context.Background(), token, TokenAccess)
	require.ErrorIs(t, err, ErrBlacklisted)
}

func TestRegistrationTokenLifecycle(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, now)
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeToken(context.Background(), u,
		AsRegistrationToken(), WithBypassUserCheck())
	require.NoError(t, err)

	_, err = g.ExtractToken(context.Background(), token, TokenRegister)
	require.NoError(t, err)

	// A registration token must not grant access or refresh.
	_, err = g.ExtractToken(context.Background(), token, TokenAccess)
	require.ErrorIs(t, err, ErrMisusedRegistrationToken)
	_, err = g.ExtractToken(context.Background(), token, TokenRefresh)
	require.ErrorIs(t, err, ErrMisusedRegistrationToken)
	_, err = g.ExtractToken(context.Background(), token, TokenReset)
	require.ErrorIs(t, err, ErrMisusedRegistrationToken)

	// And a plain token is not a registration token.
	plain, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)
	_, err = g.ExtractToken(context.Background(), plain, TokenRegister)
	require.ErrorIs(t, err, ErrInvalidRegistrationToken)
}

func TestResetTokenLifecycle(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, now)
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeToken(context.Background(), u, AsResetToken())
	require.NoError(t, err)

	_, err = g.ExtractToken(context.Background(), token, TokenReset)
	require.NoError(t, err)
	_, err = g.ExtractToken(context.Background(), token, TokenAccess)
	require.ErrorIs(t, err, ErrMisusedResetToken)
	_, err = g.ExtractToken(context.Background(), token, TokenRefresh)
	require.ErrorIs(t, err, ErrMisusedResetToken)

	plain, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)
	_, err = g.ExtractToken(context.Background(), plain, TokenReset)
	require.ErrorIs(t, err, ErrInvalidResetToken)

	// An expired reset token is reported as expired, not merely invalid.
	g.clock = func() time.Time { return now.Add(DefaultAccessLifespan + time.Minute) }
	_, err = g.ExtractToken(context.Background(), token, TokenReset)
	require.ErrorIs(t, err, ErrExpiredAccess)
}

func TestValidateClaimsMissingClaims(t *testing.T) {
	g, _ := newTestGuard(t)

	cases := []struct {
		name   string
		claims map[string]any
	}{
		{"jti", map[string]any{}},
		{"id", map[string]any{"jti": "x"}},
		{"exp", map[string]any{"jti": "x", "id": "u1"}},
		{RefreshExpirationClaim, map[string]any{"jti": "x", "id": "u1", "exp": int64(1)}},
	}
	for _, tc := range cases {
		err := g.validateClaims(tc.claims, TokenAccess)
		require.ErrorIs(t, err, ErrMissingClaim, "missing %s", tc.name)
		require.Contains(t, err.Error(), tc.name)
	}
}

// The fixed-moment scenario: a token issued at 18:39:55 UTC with a 15
// minute access window and a 30 day refresh window.
func TestTokenLifetimesAtFixedMoment(t *testing.T) {
	issueAt := time.Date(2017, 5, 21, 18, 39, 55, 0, time.UTC)
	g, store := frozenGuard(t, issueAt)
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)
	claims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)

	iat, _ := claimInt64(claims, "iat")
	exp, _ := claimInt64(claims, "exp")
	refreshExp, _ := claimInt64(claims, RefreshExpirationClaim)
	require.Equal(t, int64(1495391995), iat)
	require.Equal(t, int64(1495392895), exp)
	require.Equal(t, int64(1497983995), refreshExp)

	// One minute past the access expiry: access is refused, refresh works.
	g.clock = func() time.Time { return time.Unix(1495392895+60, 0) }
	_, err = g.ExtractToken(context.Background(), token, TokenAccess)
	require.ErrorIs(t, err, ErrExpiredAccess)
	_, err = g.RefreshToken(context.Background(), token)
	require.NoError(t, err)
}

func TestPASETOProviderEndToEnd(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store := frozenGuard(t, now, func(c *Config) {
		c.TokenProvider = ProviderPASETO
		c.EncodeKey = []byte("an example very very secret key.")
	})
	u := addUser(t, g, store, "u1", "alice", "pw", "admin")

	token, err := g.EncodeToken(context.Background(), u,
		WithCustomClaims(map[string]any{"tenant": "acme"}))
	require.NoError(t, err)

	claims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)
	id, _ := claimString(claims, "id")
	exp, _ := claimInt64(claims, "exp")
	require.Equal(t, "u1", id)
	require.Equal(t, "acme", claims["tenant"])
	require.Equal(t, now.Add(DefaultAccessLifespan).Unix(), exp)

	// The same lifecycle rules apply regardless of serialization.
	g.clock = func() time.Time { return now.Add(DefaultAccessLifespan + time.Minute) }
	_, err = g.ExtractToken(context.Background(), token, TokenAccess)
	require.ErrorIs(t, err, ErrExpiredAccess)
	refreshed, err := g.RefreshToken(context.Background(), token)
	require.NoError(t, err)
	_, err = g.ExtractToken(context.Background(), refreshed, TokenAccess)
	require.NoError(t, err)
}

func TestPASETOProviderKeyListOnly(t *testing.T) {
	g, store := newTestGuard(t, func(c *Config) {
		c.TokenProvider = ProviderPASETO
		c.EncodeKey = nil
		c.PASETOKeys = [][]byte{[]byte("an example very very secret key.")}
	})
	u := addUser(t, g, store, "u1", "alice", "pw")

	token, err := g.EncodeToken(context.Background(), u)
	require.NoError(t, err)
	claims, err := g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)
	id, _ := claimString(claims, "id")
	require.Equal(t, "u1", id)

	// The JWT provider still demands an encode key, as does a PASETO
	// configuration with no key material at all.
	cfg := DefaultConfig()
	cfg.TokenProvider = ProviderPASETO
	_, err = New(cfg, store)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestPackHeader(t *testing.T) {
	g, store := newTestGuard(t)
	u := addUser(t, g, store, "u1", "alice", "pw")

	header, err := g.PackHeader(context.Background(), u)
	require.NoError(t, err)
	value, ok := header["Authorization"]
	require.True(t, ok)
	require.Regexp(t, `^Bearer \S+$`, value)

	token := value[len("Bearer "):]
	_, err = g.ExtractToken(context.Background(), token, TokenAccess)
	require.NoError(t, err)
}
