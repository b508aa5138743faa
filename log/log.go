// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log re-exports github.com/luxfi/log the way the teacher's own
// log package wraps it, so the rest of the module has one import path to
// depend on regardless of which concrete logging library backs it.
package log

import (
	"github.com/luxfi/log"
)

// Logger is the structured, leveled logger used throughout the core.
type Logger = log.Logger

// NewNoOpLogger returns a logger that discards everything, used in tests
// and in components that have not been wired to a real sink yet.
func NewNoOpLogger() Logger {
	return log.NewNoOpLogger()
}
