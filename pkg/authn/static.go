// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package authn

import (
	"context"

	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/pkg/errors"
	svcerr "github.com/werg/chanhub/pkg/errors/service"
)

var errUnknownToken = errors.New("unknown token")

var _ hub.TokenValidator = (*staticValidator)(nil)

// staticValidator resolves callers from a fixed token table. Intended for
// development setups and tests where no token issuer is running.
type staticValidator struct {
	tokens map[string]string
}

// NewStaticValidator returns a validator backed by a fixed token to caller
// mapping.
func NewStaticValidator(tokens map[string]string) hub.TokenValidator {
	tbl := make(map[string]string, len(tokens))
	for token, caller := range tokens {
		tbl[token] = caller
	}

	return &staticValidator{tokens: tbl}
}

func (v *staticValidator) Validate(ctx context.Context, token string) (string, error) {
	caller, ok := v.tokens[token]
	if !ok {
		return "", errors.Wrap(svcerr.ErrAuthentication, errUnknownToken)
	}

	return caller, nil
}
