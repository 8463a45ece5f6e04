// Package password implements a multi-scheme password hashing policy with
// upgrade detection. A CryptContext is configured with an ordered list of
// allowed schemes, a default scheme used for new hashes, and a set of
// deprecated schemes. Hashes produced by any allowed scheme verify; hashes
// produced by anything other than the current default are flagged as
// needing an upgrade so callers can transparently re-hash on login.
package password

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration reports an invalid scheme policy at construction time.
	ErrConfiguration = errors.New("password context misconfigured")
	// ErrUnknownScheme reports a hash whose scheme is not recognized or not allowed.
	ErrUnknownScheme = errors.New("unknown hash scheme")
)

// Config describes the hashing policy for a CryptContext.
type Config struct {
	// Schemes is the ordered list of allowed scheme names. Empty means
	// DefaultSchemes.
	Schemes []string
	// Default is the scheme used for new hashes. Empty means DefaultScheme.
	Default string
	// Deprecated lists schemes that still verify but always report
	// NeedsUpdate.
	Deprecated []string
}

// DefaultScheme is the scheme used for new hashes when none is configured.
const DefaultScheme = "pbkdf2_sha512"

// DefaultSchemes is the allowed scheme list used when none is configured.
func DefaultSchemes() []string {
	return []string{"pbkdf2_sha512", "pbkdf2_sha256", "bcrypt", "argon2id"}
}

// CryptContext applies a configured hashing policy. It is immutable after
// construction and safe for concurrent use.
type CryptContext struct {
	schemes    []scheme
	def        scheme
	deprecated map[string]bool
}

// NewCryptContext validates cfg and builds a CryptContext. Unknown scheme
// names, a default outside the allowed list, or a deprecated entry outside
// the allowed list all fail with ErrConfiguration.
func NewCryptContext(cfg Config) (*CryptContext, error) {
	names := cfg.Schemes
	if len(names) == 0 {
		names = DefaultSchemes()
	}
	def := cfg.Default
	if def == "" {
		def = DefaultScheme
	}

	ctx := &CryptContext{deprecated: make(map[string]bool)}
	allowed := make(map[string]bool)
	for _, name := range names {
		s, err := newScheme(name)
		if err != nil {
			return nil, err
		}
		ctx.schemes = append(ctx.schemes, s)
		allowed[name] = true
	}
	if !allowed[def] {
		return nil, fmt.Errorf(
			"%w: default scheme %q must be one of the allowed schemes %v",
			ErrConfiguration, def, names,
		)
	}
	for _, s := range ctx.schemes {
		if s.name() == def {
			ctx.def = s
		}
	}
	for _, name := range cfg.Deprecated {
		if !allowed[name] {
			return nil, fmt.Errorf(
				"%w: deprecated scheme %q is not in the allowed schemes %v",
				ErrConfiguration, name, names,
			)
		}
		ctx.deprecated[name] = true
	}
	if ctx.deprecated[def] {
		return nil, fmt.Errorf(
			"%w: default scheme %q may not be deprecated", ErrConfiguration, def,
		)
	}
	return ctx, nil
}

// Hash hashes plaintext with the configured default scheme.
func (c *CryptContext) Hash(plaintext string) (string, error) {
	return c.def.hash(plaintext)
}

// Identify returns the name of the scheme that produced the given hash, or
// ErrUnknownScheme when no allowed scheme recognizes it.
func (c *CryptContext) Identify(hashed string) (string, error) {
	for _, s := range c.schemes {
		if s.owns(hashed) {
			return s.name(), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized hash format", ErrUnknownScheme)
}

// Verify checks plaintext against a hash produced by any allowed scheme.
// Comparison inside each scheme is constant time.
func (c *CryptContext) Verify(plaintext, hashed string) (bool, error) {
	for _, s := range c.schemes {
		if s.owns(hashed) {
			return s.verify(plaintext, hashed)
		}
	}
	return false, fmt.Errorf("%w: unrecognized hash format", ErrUnknownScheme)
}

// NeedsUpdate reports whether the hash was produced by something other than
// the current default scheme, or by a deprecated scheme.
func (c *CryptContext) NeedsUpdate(hashed string) bool {
	name, err := c.Identify(hashed)
	if err != nil {
		return true
	}
	return name != c.def.name() || c.deprecated[name]
}

// DefaultName returns the name of the configured default scheme.
func (c *CryptContext) DefaultName() string {
	return c.def.name()
}

// SchemeNames returns the allowed scheme names in configured order.
func (c *CryptContext) SchemeNames() []string {
	names := make([]string, 0, len(c.schemes))
	for _, s := range c.schemes {
		names = append(names, s.name())
	}
	return names
}

// VerifyAndUpdate verifies plaintext against the hash and, when the hash
// scheme is outdated, re-hashes with the default scheme. The new hash is
// returned for the caller to persist; it is empty when the existing hash is
// already current or when verification failed.
func (c *CryptContext) VerifyAndUpdate(plaintext, hashed string) (bool, string, error) {
	ok, err := c.Verify(plaintext, hashed)
	if err != nil || !ok {
		return false, "", err
	}
	if !c.NeedsUpdate(hashed) {
		return true, "", nil
	}
	updated, err := c.Hash(plaintext)
	if err != nil {
		return true, "", err
	}
	return true, updated, nil
}

func newScheme(name string) (scheme, error) {
	switch strings.ToLower(name) {
	case "pbkdf2_sha512":
		return pbkdf2Scheme{variant: "sha512"}, nil
	case "pbkdf2_sha256":
		return pbkdf2Scheme{variant: "sha256"}, nil
	case "bcrypt":
		return bcryptScheme{}, nil
	case "argon2id":
		return argon2Scheme{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrConfiguration, name)
	}
}
