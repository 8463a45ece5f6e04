package aegis

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ReadToken pulls a serialized token out of an incoming request, trying
// each configured location in order. Absence at one location falls through
// to the next; a malformed value aborts immediately so a garbled header is
// never silently ignored.
func (g *Guard) ReadToken(r *http.Request) (string, error) {
	for _, place := range g.config.TokenPlaces {
		var (
			token string
			err   error
		)
		switch place {
		case TokenPlaceHeader:
			token, err = g.readTokenFromHeader(r)
		case TokenPlaceCookie:
			token, err = g.readTokenFromCookie(r)
		default:
			g.log.Warn().
				Str("place", place).
				Msg("unknown token location, ignoring")
			continue
		}
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrMissingToken) {
			return "", err
		}
	}
	return "", fmt.Errorf(
		"%w: could not find token in any of: %s",
		ErrMissingToken, strings.Join(g.config.TokenPlaces, ", "),
	)
}

func (g *Guard) readTokenFromHeader(r *http.Request) (string, error) {
	value := r.Header.Get(g.config.HeaderName)
	if value == "" {
		return "", fmt.Errorf("%w: %s header is missing", ErrMissingToken, g.config.HeaderName)
	}
	match := g.headerMatch.FindStringSubmatch(value)
	if match == nil {
		return "", fmt.Errorf(
			"%w: %s header structure must be %q",
			ErrInvalidTokenHeader, g.config.HeaderName, g.config.HeaderType+" <token>",
		)
	}
	return match[1], nil
}

func (g *Guard) readTokenFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(g.config.CookieName)
	if err != nil || cookie.Value == "" {
		return "", fmt.Errorf("%w: %s cookie is missing", ErrMissingToken, g.config.CookieName)
	}
	return cookie.Value, nil
}
