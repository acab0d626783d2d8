// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil bridges oops errors and structured logging.
package errutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level with its oops code and context, if any.
// Extra args are appended as slog key/value pairs.
func LogError(logger *slog.Logger, msg string, err error, args ...any) {
	logAt(logger, slog.LevelError, msg, err, args)
}

// LogWarn is LogError for failures the caller recovers from, such as a
// cascade step falling through or a plugin being skipped.
func LogWarn(logger *slog.Logger, msg string, err error, args ...any) {
	logAt(logger, slog.LevelWarn, msg, err, args)
}

// Attrs returns the slog key/value pairs describing err. Combined
// errors list the codes of their members.
func Attrs(err error) []any {
	if _, combined := members(err); combined {
		return []any{"error", err.Error(), "codes", Codes(err)}
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

func logAt(logger *slog.Logger, level slog.Level, msg string, err error, args []any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), level, msg, append(Attrs(err), args...)...)
}

// Codes returns the oops code of every member of a combined error, in
// order. A single oops error yields its own code. Members without a code
// are skipped.
func Codes(err error) []string {
	errs, _ := members(err)
	var codes []string
	for _, m := range errs {
		var oopsErr oops.OopsError
		if !errors.As(m, &oopsErr) {
			continue
		}
		if code := oopsErr.Code(); code != nil && code != "" {
			codes = append(codes, fmt.Sprint(code))
		}
	}
	return codes
}

func members(err error) ([]error, bool) {
	switch e := err.(type) {
	case nil:
		return nil, false
	case interface{ WrappedErrors() []error }:
		return e.WrappedErrors(), true
	case interface{ Unwrap() []error }:
		return e.Unwrap(), true
	default:
		return []error{err}, false
	}
}
