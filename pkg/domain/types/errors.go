package types

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures so that callers can decide whether to retry,
// abort, or report. Attach with goerr.T(tag), test with goerr.HasTag.
var (
	// ErrTagConfig marks configuration and input validation failures: a
	// malformed release URL, a missing key file. Never retried.
	ErrTagConfig = goerr.NewTag("config")

	// ErrTagTransient marks network failures that are worth retrying with
	// bounded attempts: timeouts, connection resets, temporary node errors.
	ErrTagTransient = goerr.NewTag("transient")

	// ErrTagIdentity marks a published descriptor whose version or release
	// page URL does not match the edition under verification. Indicates a
	// wrong-target or stale-publication bug, not a network problem.
	ErrTagIdentity = goerr.NewTag("identity")

	// ErrTagUnavailable marks content that could not be retrieved from the
	// network during verification.
	ErrTagUnavailable = goerr.NewTag("unavailable")

	// ErrTagVerifyFailed marks a verification that completed with a failing
	// report, whatever the reason: schema violation, identity mismatch, or
	// unavailable content. Drives the dedicated exit code.
	ErrTagVerifyFailed = goerr.NewTag("verify_failed")

	// ErrTagConflict marks an attempt to publish a changed descriptor to an
	// edition number that was already published. Requires an explicit
	// operator decision; never silently overwritten.
	ErrTagConflict = goerr.NewTag("conflict")
)
