package codec

import (
	"fmt"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// PASETO purposes.
const (
	PurposeLocal  = "local"
	PurposePublic = "public"
)

// PASETOConfig configures a PASETO codec.
type PASETOConfig struct {
	// Version selects the PASETO protocol version: 2, 3 or 4 (default 4).
	// Version 1 is deprecated and not supported.
	Version int
	// Purpose is "local" (encrypted, default) or "public" (signed, v4 only).
	Purpose string
	// Keys is the ordered key list. The first key encodes new tokens; all
	// keys are tried in order during Decode so that older tokens keep
	// working through a rotation. Local keys are 32 raw bytes; public
	// purpose keys are 64-byte Ed25519 private keys.
	Keys [][]byte
}

type pasetoKey struct {
	encode func(t paseto.Token) string
	parse  func(p paseto.Parser, token string) (*paseto.Token, error)
}

// PASETO encodes claim sets as PASETO envelopes. The key list is resolved
// into typed keys once at construction; Decode tries each key in order,
// first success wins, and the last failure is surfaced when none succeeds.
type PASETO struct {
	keys []pasetoKey
}

// NewPASETO validates cfg, resolves the key list, and returns a ready codec.
func NewPASETO(cfg PASETOConfig) (*PASETO, error) {
	version := cfg.Version
	if version == 0 {
		version = 4
	}
	purpose := cfg.Purpose
	if purpose == "" {
		purpose = PurposeLocal
	}
	if version == 1 {
		return nil, fmt.Errorf("%w: paseto version 1 is deprecated and not supported", ErrConfiguration)
	}
	if version < 2 || version > 4 {
		return nil, fmt.Errorf("%w: paseto version must be one of [2, 3, 4], got %d", ErrConfiguration, version)
	}
	if purpose != PurposeLocal && purpose != PurposePublic {
		return nil, fmt.Errorf("%w: paseto purpose must be %q or %q", ErrConfiguration, PurposeLocal, PurposePublic)
	}
	if purpose == PurposePublic && version != 4 {
		return nil, fmt.Errorf("%w: public purpose is only supported for paseto v4", ErrConfiguration)
	}
	if len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("%w: at least one paseto key is required", ErrConfiguration)
	}

	c := &PASETO{}
	for i, raw := range cfg.Keys {
		key, err := resolvePasetoKey(version, purpose, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: key %d: %v", ErrConfiguration, i, err)
		}
		c.keys = append(c.keys, key)
	}
	return c, nil
}

func resolvePasetoKey(version int, purpose string, raw []byte) (pasetoKey, error) {
	if purpose == PurposePublic {
		secret, err := paseto.NewV4AsymmetricSecretKeyFromBytes(raw)
		if err != nil {
			return pasetoKey{}, err
		}
		public := secret.Public()
		return pasetoKey{
			encode: func(t paseto.Token) string { return t.V4Sign(secret, nil) },
			parse: func(p paseto.Parser, token string) (*paseto.Token, error) {
				return p.ParseV4Public(public, token, nil)
			},
		}, nil
	}

	switch version {
	case 2:
		key, err := paseto.V2SymmetricKeyFromBytes(raw)
		if err != nil {
			return pasetoKey{}, err
		}
		return pasetoKey{
			encode: func(t paseto.Token) string { return t.V2Encrypt(key) },
			parse: func(p paseto.Parser, token string) (*paseto.Token, error) {
				return p.ParseV2Local(key, token)
			},
		}, nil
	case 3:
		key, err := paseto.V3SymmetricKeyFromBytes(raw)
		if err != nil {
			return pasetoKey{}, err
		}
		return pasetoKey{
			encode: func(t paseto.Token) string { return t.V3Encrypt(key, nil) },
			parse: func(p paseto.Parser, token string) (*paseto.Token, error) {
				return p.ParseV3Local(key, token, nil)
			},
		}, nil
	default:
		key, err := paseto.V4SymmetricKeyFromBytes(raw)
		if err != nil {
			return pasetoKey{}, err
		}
		return pasetoKey{
			encode: func(t paseto.Token) string { return t.V4Encrypt(key, nil) },
			parse: func(p paseto.Parser, token string) (*paseto.Token, error) {
				return p.ParseV4Local(key, token, nil)
			},
		}, nil
	}
}

// Encode serializes the claim set into a PASETO envelope under the first
// configured key. The exp claim travels as an RFC 3339 timestamp inside the
// envelope, as the PASETO spec prescribes; every other claim is carried
// verbatim.
func (c *PASETO) Encode(claims map[string]any) (string, error) {
	token := paseto.NewToken()
	for k, v := range claims {
		if k == "exp" {
			seconds, ok := claimToEpoch(v)
			if !ok {
				return "", fmt.Errorf("%w: exp claim is not a timestamp", ErrInvalidTokenHeader)
			}
			token.SetExpiration(time.Unix(seconds, 0).UTC())
			continue
		}
		if err := token.Set(k, v); err != nil {
			return "", fmt.Errorf("%w: claim %q is not serializable: %v", ErrInvalidTokenHeader, k, err)
		}
	}
	return c.keys[0].encode(token), nil
}

// Decode opens the envelope, trying each configured key in order. Expiry
// checking is disabled; the exp timestamp is normalized to integer epoch
// seconds (UTC, sub-second precision truncated) so both token formats feed
// the validator identically.
func (c *PASETO) Decode(token string) (map[string]any, error) {
	parser := paseto.NewParserWithoutExpiryCheck()

	var lastErr error
	for _, key := range c.keys {
		parsed, err := key.parse(parser, token)
		if err != nil {
			lastErr = err
			continue
		}
		claims := parsed.Claims()
		if exp, err := parsed.GetExpiration(); err == nil {
			claims["exp"] = exp.UTC().Unix()
		}
		return claims, nil
	}
	return nil, fmt.Errorf("%w: failed to decode PASETO token: %v", ErrInvalidTokenHeader, lastErr)
}

// claimToEpoch accepts the numeric types an exp claim may arrive in and
// converts to epoch seconds.
func claimToEpoch(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case time.Time:
		return t.Unix(), true
	default:
		return 0, false
	}
}
