package aegis

import "context"

// User is the minimal shape the guard needs from an authenticated subject.
// The guard never persists users; it references them by Identity inside
// tokens and reads the rest on demand.
type User interface {
	// Identity returns the unique id packed into tokens as the id claim.
	Identity() string
	// RoleNames returns the role names joined into the rls claim. Ignored
	// when roles are disabled in the configuration.
	RoleNames() []string
	// HashedPassword returns the stored password hash.
	HashedPassword() string
}

// UserStore resolves users from the caller's storage. Both lookups return
// (nil, nil) when no user matches; the guard maps that to the appropriate
// error kind for the operation at hand.
type UserStore interface {
	Lookup(ctx context.Context, username string) (User, error)
	Identify(ctx context.Context, id string) (User, error)
}

// EmailLookup is an optional UserStore capability used by the reset mail
// flow to resolve a user from an email address.
type EmailLookup interface {
	LookupByEmail(ctx context.Context, email string) (User, error)
}

// UserValidator is an optional User capability. When implemented, IsValid
// is consulted before tokens are issued or refreshed; a false result fails
// the operation with ErrInvalidUser.
type UserValidator interface {
	IsValid() bool
}

// TOTPUser is an optional User capability carrying the user's enrolled
// second-factor state: the opaque secret blob produced by the guard's TOTP
// factory, or empty when the user has no second factor configured.
type TOTPUser interface {
	TOTPConfiguration() string
	// TOTPLastCounter returns the last accepted verification counter, or a
	// negative value when none has been recorded. Used for replay
	// protection when no verify cache is implemented.
	TOTPLastCounter() int64
}

// TOTPVerifyCache is an optional User capability for externalizing the
// replay-protection counter, e.g. into Redis via store.VerifyCounterCache.
// When implemented it takes precedence over TOTPLastCounter. Correct replay
// protection across processes depends on the backing store serializing the
// update, not on anything the guard does.
type TOTPVerifyCache interface {
	GetCacheVerify(ctx context.Context) (int64, error)
	CacheVerify(ctx context.Context, counter, seconds int64) error
}

// PasswordUpdater is an optional User capability invoked when hash
// auto-update re-hashes a verified password under the current default
// scheme. The caller remains responsible for persisting the user.
type PasswordUpdater interface {
	SetHashedPassword(hash string)
}

// ClaimsHook observes a finished claim set immediately before it is
// serialized, e.g. for audit logging. Hooks are side-effect only; any
// error is propagated unwrapped and aborts the encode.
type ClaimsHook func(claims map[string]any) error

// Message is a rendered notification handed to a Mailer.
type Message struct {
	To      string
	From    string
	ReplyTo string
	Subject string
	HTML    string
}

// Mailer delivers notification messages. Transport is entirely the
// caller's concern; the guard only renders bodies and generates the token
// they carry.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Notification summarizes a sent token email.
type Notification struct {
	Email     string
	UserID    string
	Token     string
	Subject   string
	ActionURI string
	Message   string
}
