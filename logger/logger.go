// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

// Package logger contains slog logger setup used by all chanhub services.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/werg/chanhub/pkg/errors"
)

// ErrInvalidLogLevel indicates an unrecognized log level string.
var ErrInvalidLogLevel = errors.New("unrecognized log level")

// New returns a JSON slog logger writing to w with the given level.
func New(w io.Writer, levelText string) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelText)); err != nil {
		return nil, errors.Wrap(ErrInvalidLogLevel, err)
	}

	logHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	return slog.New(logHandler), nil
}

// ExitWithError exits the process with the given code after all deferred
// cleanups have run. Meant to be used as a deferred call in main.
func ExitWithError(code *int) {
	os.Exit(*code)
}
