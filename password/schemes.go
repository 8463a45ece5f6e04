package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

type scheme interface {
	name() string
	// owns reports whether the encoded hash was produced by this scheme.
	owns(encoded string) bool
	hash(plaintext string) (string, error)
	verify(plaintext, encoded string) (bool, error)
}

const (
	pbkdf2Rounds     = 29000
	pbkdf2SaltLength = 16
	bcryptCost       = 12

	argon2Memory      uint32 = 64 * 1024
	argon2Time        uint32 = 3
	argon2Parallelism uint8  = 2
	argon2SaltLength  uint32 = 16
	argon2KeyLength   uint32 = 32
)

/*
====================================
PBKDF2 (sha256 / sha512)
====================================
*/

type pbkdf2Scheme struct {
	variant string // "sha256" or "sha512"
}

func (s pbkdf2Scheme) name() string { return "pbkdf2_" + s.variant }

func (s pbkdf2Scheme) prefix() string { return "$pbkdf2-" + s.variant + "$" }

func (s pbkdf2Scheme) owns(encoded string) bool {
	return strings.HasPrefix(encoded, s.prefix())
}

func (s pbkdf2Scheme) digest() (func() hash.Hash, int) {
	if s.variant == "sha256" {
		return sha256.New, sha256.Size
	}
	return sha512.New, sha512.Size
}

func (s pbkdf2Scheme) hash(plaintext string) (string, error) {
	salt := make([]byte, pbkdf2SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	digest, size := s.digest()
	key := pbkdf2.Key([]byte(plaintext), salt, pbkdf2Rounds, size, digest)

	return fmt.Sprintf(
		"%s%d$%s$%s",
		s.prefix(),
		pbkdf2Rounds,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

func (s pbkdf2Scheme) verify(plaintext, encoded string) (bool, error) {
	rest := strings.TrimPrefix(encoded, s.prefix())
	parts := strings.Split(rest, "$")
	if len(parts) != 3 {
		return false, fmt.Errorf("%w: malformed %s hash", ErrUnknownScheme, s.name())
	}
	var rounds int
	if _, err := fmt.Sscanf(parts[0], "%d", &rounds); err != nil || rounds <= 0 {
		return false, fmt.Errorf("%w: malformed %s rounds", ErrUnknownScheme, s.name())
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("%w: malformed %s salt", ErrUnknownScheme, s.name())
	}
	want, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("%w: malformed %s digest", ErrUnknownScheme, s.name())
	}

	digest, _ := s.digest()
	got := pbkdf2.Key([]byte(plaintext), salt, rounds, len(want), digest)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

/*
====================================
BCRYPT
====================================
*/

type bcryptScheme struct{}

func (bcryptScheme) name() string { return "bcrypt" }

func (bcryptScheme) owns(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func (bcryptScheme) hash(plaintext string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (bcryptScheme) verify(plaintext, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case err == bcrypt.ErrMismatchedHashAndPassword:
		return false, nil
	default:
		return false, err
	}
}

/*
====================================
ARGON2ID
====================================
*/

type argon2Scheme struct{}

func (argon2Scheme) name() string { return "argon2id" }

func (argon2Scheme) owns(encoded string) bool {
	return strings.HasPrefix(encoded, "$argon2id$")
}

func (argon2Scheme) hash(plaintext string) (string, error) {
	salt := make([]byte, argon2SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey(
		[]byte(plaintext), salt,
		argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength,
	)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory, argon2Time, argon2Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

func (s argon2Scheme) verify(plaintext, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	if len(parts) != 6 {
		return false, fmt.Errorf("%w: malformed argon2id hash", ErrUnknownScheme)
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("%w: malformed argon2id version", ErrUnknownScheme)
	}
	var memory, timeCost uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &parallelism); err != nil {
		return false, fmt.Errorf("%w: malformed argon2id parameters", ErrUnknownScheme)
	}
	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: malformed argon2id salt", ErrUnknownScheme)
	}
	want, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("%w: malformed argon2id digest", ErrUnknownScheme)
	}

	got := argon2.IDKey(
		[]byte(plaintext), salt,
		timeCost, memory, parallelism, uint32(len(want)),
	)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
