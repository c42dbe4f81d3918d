package kv

import (
	"errors"
	"fmt"
)

// Error is a failure reported by the store, identified by its numeric code.
type Error struct {
	Code int
}

var _ error = Error{}

const (
	CodeTransactionTooOld        = 1007
	CodeFutureVersion            = 1009
	CodeNotCommitted             = 1020
	CodeCommitUnknownResult      = 1021
	CodeTransactionCancelled     = 1025
	CodeAccessedUnreadable       = 1036
	CodeProcessBehind            = 1037
	CodeKeyOutsideLegalRange     = 2004
	CodeInvertedRange            = 2005
	CodeInvalidOptionValue       = 2006
	CodeReadVersionAlreadySet    = 2010
	CodeUsedDuringCommit         = 2017
	CodeNoCommitVersion          = 2021
	CodeTransactionTooLarge      = 2101
	CodeRangeLimitsInvalid       = 2210
	CodeKeyTooLarge              = 2102
	CodeValueTooLarge            = 2103
	CodeTenantNotFound           = 2131
	CodeTenantAlreadyExists      = 2132
	CodeTenantNotEmpty           = 2133
	CodeUnknownError             = 4000
	CodeInternalError            = 4100
	CodeClientInvalidOperation   = 2000
	CodeInvalidMutationType      = 2019
	CodeVersionstampNotSupported = 2022
)

var descriptions = map[int]string{
	CodeTransactionTooOld:        "Transaction is too old to perform reads or be committed",
	CodeFutureVersion:            "Request for future version",
	CodeNotCommitted:             "Transaction not committed due to conflict with another transaction",
	CodeCommitUnknownResult:      "Transaction may or may not have committed",
	CodeTransactionCancelled:     "Operation aborted because the transaction was cancelled",
	CodeAccessedUnreadable:       "Read or wrote an unreadable key",
	CodeProcessBehind:            "Storage process does not have recent mutations",
	CodeKeyOutsideLegalRange:     "Key outside legal range",
	CodeInvertedRange:            "Range begin key larger than end key",
	CodeInvalidOptionValue:       "Option set with an invalid value",
	CodeReadVersionAlreadySet:    "Transaction already has a read version set",
	CodeUsedDuringCommit:         "Operation issued while a commit was outstanding",
	CodeNoCommitVersion:          "Transaction is read-only and therefore does not have a commit version",
	CodeTransactionTooLarge:      "Transaction exceeds byte limit",
	CodeRangeLimitsInvalid:       "Range request limits are invalid",
	CodeKeyTooLarge:              "Key length exceeds limit",
	CodeValueTooLarge:            "Value length exceeds limit",
	CodeTenantNotFound:           "Tenant does not exist",
	CodeTenantAlreadyExists:      "A tenant with the given name already exists",
	CodeTenantNotEmpty:           "Cannot delete a non-empty tenant",
	CodeUnknownError:             "An unknown error occurred",
	CodeInternalError:            "An internal error occurred",
	CodeClientInvalidOperation:   "Invalid API call",
	CodeInvalidMutationType:      "Unrecognized atomic mutation type",
	CodeVersionstampNotSupported: "Versionstamp operation not supported",
}

func (e Error) Error() string {
	if desc, ok := descriptions[e.Code]; ok {
		return fmt.Sprintf("%s (%d)", desc, e.Code)
	}
	return fmt.Sprintf("store error %d", e.Code)
}

// Retryable reports whether the standard retry loop should retry after this error.
func (e Error) Retryable() bool {
	switch e.Code {
	case CodeTransactionTooOld,
		CodeFutureVersion,
		CodeNotCommitted,
		CodeCommitUnknownResult,
		CodeProcessBehind:
		return true
	}
	return false
}

// ErrTransactionClosed is returned by every operation on a closed transaction.
var ErrTransactionClosed = errors.New("transaction closed")

// AsError extracts a store error from err.
func AsError(err error) (Error, bool) {
	var e Error
	if errors.As(err, &e) {
		return e, true
	}
	return e, false
}
