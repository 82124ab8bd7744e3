// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package apiutil

import "github.com/werg/chanhub/pkg/errors"

// Errors defined in this file are used by the LoggingErrorEncoder decorator
// to distinguish and log API request validation errors and avoid that service
// errors are logged twice.
var (
	// ErrValidation indicates that an error was returned by the API.
	ErrValidation = errors.New("something went wrong with the request")

	// ErrBearerToken indicates missing or invalid bearer user token.
	ErrBearerToken = errors.New("missing or invalid bearer user token")

	// ErrMissingChannel indicates a missing channel name parameter.
	ErrMissingChannel = errors.New("missing channel name")

	// ErrMissingRef indicates a missing correlation ref on an action that requires one.
	ErrMissingRef = errors.New("ref required")

	// ErrMissingAgentID indicates a missing agent identifier.
	ErrMissingAgentID = errors.New("missing agent id")

	// ErrMissingInstanceID indicates a missing agent instance identifier.
	ErrMissingInstanceID = errors.New("missing agent instance id")

	// ErrInvalidMessageFormat indicates an inbound message that could not be parsed.
	ErrInvalidMessageFormat = errors.New("invalid message format")

	// ErrUnknownAction indicates an inbound message with an unrecognized action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrLimitSize indicates that an invalid limit.
	ErrLimitSize = errors.New("invalid limit size")

	// ErrInvalidQueryParams indicates invalid query parameters.
	ErrInvalidQueryParams = errors.New("invalid query parameters")
)
