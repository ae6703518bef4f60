// Package errors declares the sentinel error values that make up the
// engine's error taxonomy: control-plane mistakes and site-level signals.
// Validation failures at end() are not sentinels here; they are
// types.AbortReason values counted by AbortTracker. None of these ever
// escape the process; the
// Coordinator recovers every one of them locally, typically by aborting
// the offending transaction.
package errors

import "errors"

var (
	// ErrUnknownTransaction is returned when a command names a TranID that
	// is not in the transaction table.
	ErrUnknownTransaction = errors.New("transaction does not exist")

	// ErrDuplicateTransaction is returned by begin when the TranID is
	// already in the transaction table, whatever its status.
	ErrDuplicateTransaction = errors.New("transaction already exists")

	// ErrInvalidSite is returned when a fail/recover command names a site
	// outside [1, SiteNum].
	ErrInvalidSite = errors.New("invalid site id")

	// ErrCannotBuffer is returned by Site.Write when the site is down or
	// does not store the variable.
	ErrCannotBuffer = errors.New("write failed: site unavailable or variable not stored here")

	// ErrNoVisibleVersion is an internal Site.Read signal: no committed
	// version exists at or before the reader's start time (or a replicated
	// variable has no post-fail commit yet).
	ErrNoVisibleVersion = errors.New("no visible version")

	// ErrNotHere is an internal Site.Read signal: the site does not store
	// the requested variable.
	ErrNotHere = errors.New("variable not stored at this site")

	// ErrStaleButKnownValue is an internal Site.Read signal: the visible
	// version predates the site's last failure and the site is currently
	// down, so the value is known but not yet safe to serve.
	ErrStaleButKnownValue = errors.New("stale but known value")
)
