// Copyright 2024 The Searchcore Authors
// This file is part of Searchcore.
//
// Searchcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Searchcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Searchcore. If not, see <http://www.gnu.org/licenses/>.

// Package slogx wraps log/slog behind a small Logger interface, so
// long-lived structs (index.Index, the merger, the extractor pool) take a
// logger as a constructor argument and pass it down explicitly rather than
// reaching for a global singleton.
package slogx

import (
	"log/slog"
	"os"
)

// Logger is the narrow logging surface this repo's components depend on.
// It is satisfied by *slog.Logger directly (With returns a Logger because
// *slog.Logger.With already returns *slog.Logger).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) *slog.Logger
}

// New returns a Logger writing leveled, structured text to os.Stderr,
// matching the teacher's "wrap errors with %w, attach fields at
// the log line" style rather than a global package-level logger.
func New(level slog.Level) Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Nop returns a Logger that discards everything, for tests and tools that
// don't want log output on stderr.
func Nop() Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
