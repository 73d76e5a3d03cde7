// Package auth verifies bearer tokens issued by the hosted auth provider
// and exposes the verified identity to HTTP handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned for any credential that fails verification.
// The concrete cause is logged, never surfaced to the client.
var ErrUnauthorized = errors.New("could not validate credentials")

// Identity is the verified subset of token claims the backend cares about.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Options configure token verification.
type Options struct {
	// JWKSURL enables asymmetric verification against the provider's key
	// set. Secret enables HS256 verification. At least one must be set;
	// JWKS wins when both are.
	JWKSURL           string
	Secret            string
	Issuer            string
	Audience          string
	AuthorizedParties []string
	RefreshInterval   time.Duration
	ClockSkew         time.Duration
}

// Validator verifies bearer tokens and extracts identities.
type Validator struct {
	opts   Options
	jwks   *keyfunc.JWKS
	logger *zap.Logger
}

// NewValidator initialises key material and returns a validator. With a
// JWKS URL configured the key set is fetched eagerly so startup fails on
// an unreachable provider.
func NewValidator(ctx context.Context, opts Options, logger *zap.Logger) (*Validator, error) {
	if opts.JWKSURL == "" && opts.Secret == "" {
		return nil, errors.New("auth: jwks url or secret is required")
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = time.Hour
	}
	if opts.ClockSkew == 0 {
		opts.ClockSkew = time.Minute
	}

	v := &Validator{opts: opts, logger: logger}
	if opts.JWKSURL != "" {
		jwks, err := keyfunc.Get(opts.JWKSURL, keyfunc.Options{
			Ctx:               ctx,
			RefreshInterval:   opts.RefreshInterval,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.Error("jwks refresh failed", zap.Error(err))
			},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		v.jwks = jwks
	}
	return v, nil
}

// Verify checks a raw bearer token and returns the identity it carries.
func (v *Validator) Verify(tokenString string) (Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithLeeway(v.opts.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if v.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.opts.Audience))
	}

	var keyFn jwt.Keyfunc
	if v.jwks != nil {
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"RS256", "ES256"}))
		keyFn = v.jwks.Keyfunc
	} else {
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"HS256"}))
		secret := []byte(v.opts.Secret)
		keyFn = func(*jwt.Token) (any, error) { return secret, nil }
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, keyFn, parserOpts...); err != nil {
		v.logger.Debug("token rejected", zap.Error(err))
		return Identity{}, ErrUnauthorized
	}

	if len(v.opts.AuthorizedParties) > 0 {
		azp, _ := claims["azp"].(string)
		if !contains(v.opts.AuthorizedParties, azp) {
			v.logger.Debug("token rejected", zap.String("azp", azp))
			return Identity{}, ErrUnauthorized
		}
	}

	ident := identityFromClaims(claims)
	if ident.Subject == "" {
		return Identity{}, ErrUnauthorized
	}
	return ident, nil
}

// identityFromClaims pulls subject, email, and display-name hints out of
// the verified claim set.
func identityFromClaims(claims jwt.MapClaims) Identity {
	ident := Identity{}
	if sub, err := claims.GetSubject(); err == nil {
		ident.Subject = sub
	}
	ident.Email, _ = claims["email"].(string)

	for _, key := range []string{"full_name", "name", "preferred_username"} {
		if name, ok := claims[key].(string); ok && name != "" {
			ident.Name = name
			break
		}
	}
	if ident.Name == "" {
		if meta, ok := claims["user_metadata"].(map[string]any); ok {
			for _, key := range []string{"full_name", "name"} {
				if name, ok := meta[key].(string); ok && name != "" {
					ident.Name = name
					break
				}
			}
		}
	}
	return ident
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
