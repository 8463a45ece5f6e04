package aegis

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

const defaultConfirmationTemplate = `<!doctype html>
<html>
  <body>
    <p>Hello,</p>
    <p>Please confirm your registration by visiting the link below.</p>
    <p><a href="{{.ActionURI}}?token={{.Token}}">Confirm registration</a></p>
    <p>If the link does not work, copy this token into the confirmation page:</p>
    <pre>{{.Token}}</pre>
  </body>
</html>`

const defaultResetTemplate = `<!doctype html>
<html>
  <body>
    <p>Hello,</p>
    <p>A password reset was requested for your account. Visit the link
    below to choose a new password.</p>
    <p><a href="{{.ActionURI}}?token={{.Token}}">Reset password</a></p>
    <p>If you did not request this, you can ignore this message.</p>
  </body>
</html>`

// SendRegistrationEmail issues a registration token for a user that cannot
// log in yet and mails it to the given address. The user check is bypassed
// since unconfirmed accounts are typically created in a disabled state.
func (g *Guard) SendRegistrationEmail(ctx context.Context, email string, user User, opts ...EncodeOption) (*Notification, error) {
	opts = append(opts, WithBypassUserCheck(), AsRegistrationToken())
	tmpl := g.config.ConfirmationTemplate
	if tmpl == "" {
		tmpl = defaultConfirmationTemplate
	}
	return g.sendTokenEmail(ctx, email, user, tmpl,
		g.config.ConfirmationSender,
		g.config.ConfirmationSubject,
		g.config.ConfirmationURI,
		opts,
	)
}

// SendResetEmail resolves a user by email address and mails them a
// password reset token. The user store must implement EmailLookup. The
// token's validity is bounded by the reset lifespan, not the access
// lifespan.
func (g *Guard) SendResetEmail(ctx context.Context, email string, opts ...EncodeOption) (*Notification, error) {
	lookup, ok := g.store.(EmailLookup)
	if !ok {
		return nil, fmt.Errorf(
			"%w: user store does not support lookup by email", ErrConfiguration,
		)
	}
	user, err := lookup.LookupByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrMissingUser
	}
	if err := g.checkUser(user); err != nil {
		return nil, err
	}

	opts = append([]EncodeOption{
		WithAccessLifespan(g.config.ResetLifespan),
	}, opts...)
	opts = append(opts, AsResetToken())

	tmpl := g.config.ResetTemplate
	if tmpl == "" {
		tmpl = defaultResetTemplate
	}
	return g.sendTokenEmail(ctx, email, user, tmpl,
		g.config.ResetSender,
		g.config.ResetSubject,
		g.config.ResetURI,
		opts,
	)
}

func (g *Guard) sendTokenEmail(
	ctx context.Context,
	email string,
	user User,
	templateSource, sender, subject, actionURI string,
	opts []EncodeOption,
) (*Notification, error) {
	if g.config.Mailer == nil {
		return nil, fmt.Errorf("%w: no mailer configured", ErrConfiguration)
	}

	token, err := g.EncodeToken(ctx, user, opts...)
	if err != nil {
		return nil, err
	}

	notice := &Notification{
		Email:     email,
		UserID:    user.Identity(),
		Token:     token,
		Subject:   subject,
		ActionURI: actionURI,
	}
	tmpl, err := template.New("notification").Parse(templateSource)
	if err != nil {
		return nil, fmt.Errorf("%w: bad notification template: %w", ErrConfiguration, err)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, notice); err != nil {
		return nil, fmt.Errorf("%w: notification template failed: %w", ErrConfiguration, err)
	}
	notice.Message = body.String()

	g.log.Debug().
		Str("user_id", notice.UserID).
		Str("subject", subject).
		Msg("sending token email")
	if err := g.config.Mailer.Send(ctx, Message{
		To:      email,
		From:    sender,
		Subject: subject,
		HTML:    notice.Message,
	}); err != nil {
		return nil, err
	}
	return notice, nil
}

// GetUserFromRegistrationToken validates a registration token and resolves
// the user it was issued for.
func (g *Guard) GetUserFromRegistrationToken(ctx context.Context, token string) (User, error) {
	claims, err := g.ExtractToken(ctx, token, TokenRegister)
	if err != nil {
		return nil, err
	}
	return g.identifyFromClaims(ctx, claims)
}

// ValidateResetToken validates a password reset token and resolves the
// user whose password may now change.
func (g *Guard) ValidateResetToken(ctx context.Context, token string) (User, error) {
	claims, err := g.ExtractToken(ctx, token, TokenReset)
	if err != nil {
		return nil, err
	}
	return g.identifyFromClaims(ctx, claims)
}

func (g *Guard) identifyFromClaims(ctx context.Context, claims map[string]any) (User, error) {
	id, ok := claimString(claims, "id")
	if !ok {
		return nil, fmt.Errorf("%w: id", ErrMissingClaim)
	}
	user, err := g.store.Identify(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrMissingUser
	}
	return user, nil
}
