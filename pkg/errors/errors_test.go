// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/werg/chanhub/pkg/errors"
)

var (
	err0 = errors.New("0")
	err1 = errors.New("1")
	err2 = errors.New("2")
)

func TestWrap(t *testing.T) {
	cases := []struct {
		desc    string
		wrapper error
		wrapped error
		msg     string
	}{
		{
			desc:    "wrap error with error",
			wrapper: err1,
			wrapped: err0,
			msg:     "1 : 0",
		},
		{
			desc:    "wrap nil with error",
			wrapper: err1,
			wrapped: nil,
			msg:     "1",
		},
		{
			desc:    "wrap error with nil",
			wrapper: nil,
			wrapped: err0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := errors.Wrap(tc.wrapper, tc.wrapped)
			if tc.wrapper == nil {
				assert.Nil(t, err)
				return
			}
			assert.Equal(t, tc.msg, err.Error())
		})
	}
}

func TestContains(t *testing.T) {
	cases := []struct {
		desc      string
		container error
		contained error
		contains  bool
	}{
		{
			desc:      "nil contains nil",
			container: nil,
			contained: nil,
			contains:  true,
		},
		{
			desc:      "nil contains error",
			container: nil,
			contained: err0,
			contains:  false,
		},
		{
			desc:      "wrapper contains wrapped",
			container: errors.Wrap(err1, err0),
			contained: err0,
			contains:  true,
		},
		{
			desc:      "wrapper contains itself",
			container: errors.Wrap(err1, err0),
			contained: err1,
			contains:  true,
		},
		{
			desc:      "nested wrap contains innermost",
			container: errors.Wrap(err2, errors.Wrap(err1, err0)),
			contained: err0,
			contains:  true,
		},
		{
			desc:      "wrapper does not contain unrelated",
			container: errors.Wrap(err1, err0),
			contained: err2,
			contains:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.contains, errors.Contains(tc.container, tc.contained), fmt.Sprintf("%s: %v / %v", tc.desc, tc.container, tc.contained))
		})
	}
}

func TestUnwrap(t *testing.T) {
	wrapper, wrapped := errors.Unwrap(errors.Wrap(err1, err0))
	assert.Equal(t, err1.Error(), wrapper.Error())
	assert.Equal(t, err0.Error(), wrapped.Error())

	wrapper, wrapped = errors.Unwrap(err0)
	assert.Nil(t, wrapper)
	assert.Equal(t, err0.Error(), wrapped.Error())
}
