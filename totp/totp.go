// Package totp implements time-based one-time password generation and
// verification with replay protection.
//
// A Factory is configured once with code parameters (digits, period, skew,
// HMAC algorithm) and a secret source used to protect per-user secrets at
// rest. Per-user secrets are opaque JSON blobs produced by NewSecret and
// persisted by the caller; when a secret source is configured the enrolled
// key inside the blob is AES-GCM encrypted under one of the source secrets,
// so multiple wallet entries can be active at once during rotation.
//
// Verification is stateless. Replay protection relies entirely on the
// caller persisting the counter reported by a successful Verify and feeding
// it back as lastCounter on the next call; across multiple processes that
// persistence must be serialized by the caller's store.
package totp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrConfiguration reports an invalid factory configuration.
	ErrConfiguration = errors.New("totp factory misconfigured")
	// ErrInvalidSecret reports a stored secret blob that cannot be opened.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrMalformedCode reports a submitted code with the wrong length or
	// non-numeric characters.
	ErrMalformedCode = errors.New("malformed totp code")
	// ErrInvalidCode reports a well-formed code that does not match.
	ErrInvalidCode = errors.New("invalid totp code")
	// ErrReusedCode reports a code whose counter was already accepted.
	ErrReusedCode = errors.New("totp code already used")
)

// SecretSource selects how the factory obtains the secrets that protect
// enrolled keys at rest.
type SecretSource string

const (
	// SourceNone stores enrolled keys unencrypted. Only suitable for tests.
	SourceNone SecretSource = ""
	// SourceString uses a single secret supplied directly in the config.
	SourceString SecretSource = "string"
	// SourceFile reads secrets from a JSON file of tag -> secret pairs. A
	// file holding a single bare secret is also accepted.
	SourceFile SecretSource = "file"
	// SourceWallet uses a supplied map of tag -> secret pairs so several
	// secrets can be active during rotation.
	SourceWallet SecretSource = "wallet"
)

const enrolledKeyBytes = 20

// Config parameterizes a Factory.
type Config struct {
	Issuer    string
	Digits    int    // default 6
	Period    int    // seconds, default 30
	Skew      int    // accepted steps either side of now, default 1
	Algorithm string // SHA1 (default), SHA256 or SHA512

	Source SecretSource
	Secret string            // SourceString
	Path   string            // SourceFile
	Wallet map[string]string // SourceWallet
}

// Match reports a successful verification. Counter is the accepted time
// step and must be persisted by the caller for replay protection.
// CacheSeconds hints how long the persisted counter stays relevant.
type Match struct {
	Counter      int64
	CacheSeconds int64
}

// Factory generates and verifies TOTP codes. It is immutable after
// construction and safe for concurrent use.
type Factory struct {
	config     Config
	wallet     map[string][]byte
	defaultTag string
}

// NewFactory validates cfg, loads the secret source, and returns a ready
// Factory.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Skew == 0 {
		cfg.Skew = 1
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if cfg.Digits < 6 || cfg.Digits > 10 {
		return nil, fmt.Errorf("%w: digits must be between 6 and 10", ErrConfiguration)
	}

	f := &Factory{config: cfg}
	if err := f.loadWallet(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Factory) loadWallet() error {
	cfg := f.config
	switch cfg.Source {
	case SourceNone:
		return nil
	case SourceString:
		if cfg.Secret == "" {
			return fmt.Errorf("%w: string source requires a secret", ErrConfiguration)
		}
		f.wallet = map[string][]byte{"1": []byte(cfg.Secret)}
		f.defaultTag = "1"
		return nil
	case SourceFile:
		if cfg.Path == "" {
			return fmt.Errorf("%w: file source requires a path", ErrConfiguration)
		}
		raw, err := os.ReadFile(cfg.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		var tagged map[string]string
		if err := json.Unmarshal(raw, &tagged); err != nil {
			// Not JSON: the whole file is one bare secret.
			trimmed := strings.TrimSpace(string(raw))
			if trimmed == "" {
				return fmt.Errorf("%w: secrets file %q is empty", ErrConfiguration, cfg.Path)
			}
			tagged = map[string]string{"1": trimmed}
		}
		return f.setWallet(tagged)
	case SourceWallet:
		if len(cfg.Wallet) == 0 {
			return fmt.Errorf("%w: wallet source requires at least one secret", ErrConfiguration)
		}
		return f.setWallet(cfg.Wallet)
	default:
		return fmt.Errorf(
			"%w: secret source must be one of [file, string, wallet], got %q",
			ErrConfiguration, cfg.Source,
		)
	}
}

func (f *Factory) setWallet(tagged map[string]string) error {
	f.wallet = make(map[string][]byte, len(tagged))
	for tag, secret := range tagged {
		if tag == "" || secret == "" {
			return fmt.Errorf("%w: wallet entries must have a tag and a secret", ErrConfiguration)
		}
		f.wallet[tag] = []byte(secret)
		// Newest tag wins for new enrollments; decryption tries the tag
		// recorded in the blob, so older entries keep working.
		if tag > f.defaultTag {
			f.defaultTag = tag
		}
	}
	return nil
}

// storedSecret is the JSON blob persisted per user. Key is base32 when
// unencrypted, base64 AES-GCM ciphertext when Enc names a wallet tag.
type storedSecret struct {
	Version   int    `json:"v"`
	Key       string `json:"key"`
	Enc       string `json:"enc,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	Digits    int    `json:"digits"`
	Period    int    `json:"period"`
	Algorithm string `json:"alg"`
}

// NewSecret generates a new enrollment secret and returns it as an opaque
// JSON blob for the caller to persist on the user.
func (f *Factory) NewSecret() (string, error) {
	raw := make([]byte, enrolledKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)

	stored := storedSecret{
		Version:   1,
		Key:       enc.EncodeToString(raw),
		Digits:    f.config.Digits,
		Period:    f.config.Period,
		Algorithm: strings.ToUpper(f.config.Algorithm),
	}
	if f.defaultTag != "" {
		sealed, nonce, err := seal(f.wallet[f.defaultTag], raw)
		if err != nil {
			return "", err
		}
		stored.Key = base64.StdEncoding.EncodeToString(sealed)
		stored.Nonce = base64.StdEncoding.EncodeToString(nonce)
		stored.Enc = f.defaultTag
	}

	blob, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// ProvisionURI renders the otpauth:// enrollment URI for a stored secret.
func (f *Factory) ProvisionURI(stored, account string) (string, error) {
	parsed, key, err := f.open(stored)
	if err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	label := url.PathEscape(f.config.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", enc.EncodeToString(key))
	v.Set("issuer", f.config.Issuer)
	v.Set("period", strconv.Itoa(parsed.Period))
	v.Set("digits", strconv.Itoa(parsed.Digits))
	v.Set("algorithm", parsed.Algorithm)

	return "otpauth://totp/" + label + "?" + v.Encode(), nil
}

// Verify validates a submitted code against a stored secret. lastCounter is
// the most recently accepted counter for the user, or a negative value when
// none has been recorded. On success the accepted counter and a cache
// duration hint are returned for the caller to persist.
func (f *Factory) Verify(code, stored string, lastCounter int64, now time.Time) (*Match, error) {
	parsed, key, err := f.open(stored)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != parsed.Digits || !isNumeric(trimmed) {
		return nil, fmt.Errorf(
			"%w: expected %d digits", ErrMalformedCode, parsed.Digits,
		)
	}

	baseCounter := now.Unix() / int64(parsed.Period)
	matched := int64(-1)
	for step := -f.config.Skew; step <= f.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, parsed.Digits, parsed.Algorithm)
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			matched = counter
			break
		}
	}
	if matched < 0 {
		return nil, ErrInvalidCode
	}
	if matched <= lastCounter {
		return nil, fmt.Errorf("%w: counter %d already accepted", ErrReusedCode, matched)
	}

	return &Match{
		Counter:      matched,
		CacheSeconds: int64(parsed.Period) * int64(f.config.Skew+1),
	}, nil
}

func (f *Factory) open(stored string) (*storedSecret, []byte, error) {
	var parsed storedSecret
	if err := json.Unmarshal([]byte(stored), &parsed); err != nil {
		return nil, nil, fmt.Errorf("%w: not a valid secret blob", ErrInvalidSecret)
	}
	if parsed.Digits == 0 {
		parsed.Digits = f.config.Digits
	}
	if parsed.Period == 0 {
		parsed.Period = f.config.Period
	}
	if parsed.Algorithm == "" {
		parsed.Algorithm = strings.ToUpper(f.config.Algorithm)
	}

	if parsed.Enc == "" {
		key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parsed.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad key encoding", ErrInvalidSecret)
		}
		return &parsed, key, nil
	}

	walletKey, ok := f.wallet[parsed.Enc]
	if !ok {
		return nil, nil, fmt.Errorf(
			"%w: secret encrypted under unknown tag %q", ErrInvalidSecret, parsed.Enc,
		)
	}
	sealed, err := base64.StdEncoding.DecodeString(parsed.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad ciphertext encoding", ErrInvalidSecret)
	}
	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad nonce encoding", ErrInvalidSecret)
	}
	key, err := unseal(walletKey, sealed, nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decryption failed", ErrInvalidSecret)
	}
	return &parsed, key, nil
}

func seal(walletSecret, plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := gcmFor(walletSecret)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func unseal(walletSecret, ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := gcmFor(walletSecret)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func gcmFor(walletSecret []byte) (cipher.AEAD, error) {
	derived := sha256.Sum256(walletSecret)
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported totp algorithm %q", algorithm)
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
