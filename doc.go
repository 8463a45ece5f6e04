// Package aegis provides a framework-agnostic authentication and
// authorization core: password verification against pluggable hash
// schemes, optional TOTP second factors with replay protection, and
// token issuance, refresh and validation over interchangeable JWT and
// PASETO serializations.
//
// The entry point is the Guard, constructed from a Config and a
// UserStore. Tokens carry the user's identity, role names and two
// expiries: an access expiry after which the token must be refreshed,
// and a refresh expiry after which it is dead for good. Refreshing
// preserves the token's jti and refresh expiry, so a token's total
// lifetime and its blacklist handle are fixed at first issue.
//
// All optional behavior (user validity checks, TOTP enrollment,
// password hash migration, email lookup) is expressed through small
// capability interfaces that user and store implementations may choose
// to satisfy.
package aegis
