// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

// Package authn provides token validators that bind connection tokens to
// stable caller identities.
package authn

import (
	"context"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/pkg/errors"
	svcerr "github.com/werg/chanhub/pkg/errors/service"
)

var (
	errValidateToken = errors.New("failed to validate token")
	errNoSubject     = errors.New("token has no subject")
)

var _ hub.TokenValidator = (*jwtValidator)(nil)

type jwtValidator struct {
	secret []byte
}

// NewJWTValidator returns a validator that accepts HS256 signed tokens and
// resolves the caller from the subject claim.
func NewJWTValidator(secret []byte) hub.TokenValidator {
	return &jwtValidator{secret: secret}
}

func (v *jwtValidator) Validate(ctx context.Context, token string) (string, error) {
	tkn, err := jwt.Parse(
		[]byte(token),
		jwt.WithValidate(true),
		jwt.WithKey(jwa.HS256, v.secret),
	)
	if err != nil {
		return "", errors.Wrap(svcerr.ErrAuthentication, errors.Wrap(errValidateToken, err))
	}
	if tkn.Subject() == "" {
		return "", errors.Wrap(svcerr.ErrAuthentication, errNoSubject)
	}

	return tkn.Subject(), nil
}
