// Package services defines the business logic for recipients, aging reports,
// and statement dispatch jobs. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrRecipientNotFound indicates that the requested recipient does not
	// exist.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrEmptyName is returned when a recipient is created or renamed with a
	// blank name.
	ErrEmptyName = errors.New("name is empty")

	// ErrInvalidTerms is returned when a terms value cannot be normalized to
	// a known code.
	ErrInvalidTerms = errors.New("unknown payment terms")

	// ErrInvalidSchedule is returned when a schedule type or day is outside
	// the allowed range.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrNotAGroup is returned when a membership operation targets a
	// recipient that is not a group container.
	ErrNotAGroup = errors.New("recipient is not a group")

	// ErrJobAlreadyActive indicates that a queued or running job already
	// occupies the dispatch queue.
	ErrJobAlreadyActive = errors.New("a dispatch job is already active")

	// ErrNothingDue is returned when an enqueue request finds no recipient
	// due for a statement.
	ErrNothingDue = errors.New("no recipients due for dispatch")

	// ErrJobNotFound indicates that the requested job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoInvoiceFile is returned when no invoice source file is available
	// to build statements from.
	ErrNoInvoiceFile = errors.New("no invoice file registered")

	// ErrReportNotFound indicates that no aging report has been generated
	// yet, or the requested run does not exist.
	ErrReportNotFound = errors.New("report not found")

	// ErrMissingEmail is returned when a send is requested for a recipient
	// without a destination address.
	ErrMissingEmail = errors.New("recipient has no email address")

	// ErrAliasNotFound indicates that the requested alias does not exist.
	ErrAliasNotFound = errors.New("alias not found")

	// ErrInvoiceFileNotFound indicates that the referenced invoice file is
	// not registered.
	ErrInvoiceFileNotFound = errors.New("invoice file not found")

	// ErrNoOutstanding is returned by send-now when the recipient matched
	// invoice rows but none carry a balance.
	ErrNoOutstanding = errors.New("no outstanding invoices to include")

	// ErrNoMatchingRows is returned by send-now when no invoice rows
	// resolve to the recipient.
	ErrNoMatchingRows = errors.New("no invoice rows matched this recipient")

	// ErrGroupEmpty is returned by send-now when a group has no members.
	ErrGroupEmpty = errors.New("group has no members")
)

// Skip reasons recorded on job items and statement runs. These are stable
// strings: operators filter run history on them.
const (
	SkipNoOutstanding  = "No outstanding invoices to include"
	SkipNoMatchingRows = "No invoice rows matched this recipient"
	SkipGroupEmpty     = "Group has no members"
	SkipMissingEmail   = "Recipient has no email address"
	SkipAlreadySent    = "Already sent in a previous attempt"
)
