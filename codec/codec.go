// Package codec serializes finished claim sets into signed or encrypted
// bearer tokens and back. Two implementations share the Codec contract: JWT
// (compact signed tokens, claims legible without the key) and PASETO
// (version-tagged envelopes, opaque when locally encrypted).
//
// Both codecs deliberately skip expiry checking during Decode; expiry and
// every other claim rule are enforced uniformly by the caller so that both
// formats share a single validation policy.
package codec

import "errors"

var (
	// ErrConfiguration reports an invalid codec configuration. It is fatal
	// at construction time; a constructed codec never returns it.
	ErrConfiguration = errors.New("codec misconfigured")
	// ErrInvalidTokenHeader reports a token that could not be decoded:
	// structural damage, a bad signature, failed decryption, or an
	// unserializable payload.
	ErrInvalidTokenHeader = errors.New("invalid token header")
)

// Codec is the contract shared by the JWT and PASETO token formats.
//
// Encode is a pure transform of a finished claim set into text. Decode
// reverses it, verifying signatures or decrypting as the format requires,
// and normalizes the exp claim to integer epoch seconds. Decode never
// checks expiry.
type Codec interface {
	Encode(claims map[string]any) (string, error)
	Decode(token string) (map[string]any, error)
}
