// Package errors provides structured error handling with machine codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Application errors
	CodeApplicationEmptyReference  Code = "APPLICATION_EMPTY_REFERENCE"
	CodeApplicationEmptyPrisonerID Code = "APPLICATION_EMPTY_PRISONER_ID"
	CodeApplicationEmptyPrisonCode Code = "APPLICATION_EMPTY_PRISON_CODE"
	CodeApplicationEmptyCreator    Code = "APPLICATION_EMPTY_CREATOR"

	// Visit errors
	CodeVisitEmptyReference    Code = "VISIT_EMPTY_REFERENCE"
	CodeVisitEmptyOutcome      Code = "VISIT_EMPTY_OUTCOME"
	CodeVisitEmptyActor        Code = "VISIT_EMPTY_ACTOR"
	CodeVisitInvalidStatus     Code = "VISIT_INVALID_STATUS"
	CodeVisitInvalidNoteType   Code = "VISIT_INVALID_NOTE_TYPE"
	CodeVisitInvalidEventType  Code = "VISIT_INVALID_EVENT_TYPE"
	CodeVisitInvalidAttribute  Code = "VISIT_INVALID_EVENT_ATTRIBUTE"
	CodeVisitReferenceAssigned Code = "VISIT_REFERENCE_ALREADY_ASSIGNED"

	// Lifecycle errors
	CodeInvalidState Code = "INVALID_STATE"

	// Rule configuration errors
	CodeConfiguration          Code = "CONFIGURATION"
	CodeRuleUnknownType        Code = "RULE_UNKNOWN_TYPE"
	CodeRuleMissingParameter   Code = "RULE_MISSING_PARAMETER"
	CodeRuleInvalidParameter   Code = "RULE_INVALID_PARAMETER"
	CodeRuleEmptyPrisonCode    Code = "RULE_EMPTY_PRISON_CODE"
	CodeRuleStoreNotConfigured Code = "RULE_STORE_NOT_CONFIGURED"

	// Storage errors
	CodeNotFound  Code = "NOT_FOUND"
	CodeConflict  Code = "CONFLICT"
	CodeRetryable Code = "RETRYABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeApplicationEmptyReference,
		CodeApplicationEmptyPrisonerID,
		CodeApplicationEmptyPrisonCode,
		CodeApplicationEmptyCreator,
		CodeVisitEmptyReference,
		CodeVisitEmptyOutcome,
		CodeVisitEmptyActor,
		CodeVisitInvalidStatus,
		CodeVisitInvalidNoteType,
		CodeVisitInvalidEventType,
		CodeVisitInvalidAttribute:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInvalidState,
		CodeVisitReferenceAssigned,
		CodeConfiguration,
		CodeRuleUnknownType,
		CodeRuleMissingParameter,
		CodeRuleInvalidParameter,
		CodeRuleEmptyPrisonCode,
		CodeRuleStoreNotConfigured:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeConflict:
		return codes.AlreadyExists

	// Unavailable - transient contention, caller may retry
	case CodeRetryable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
