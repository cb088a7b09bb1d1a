package importer

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the stable classification of an import failure. Every error that
// escapes the import service is an *OutcomeError carrying one of these.
type Kind string

const (
	KindCodeSystemNotFound   Kind = "code-system-not-found"
	KindAmbiguousCodeSystem  Kind = "ambiguous-code-system"
	KindUnknownCode          Kind = "unknown-code"
	KindUnknownProperty      Kind = "unknown-property"
	KindStorageFailure       Kind = "storage-failure"
	KindAuthorizationFailure Kind = "authorization-failure"
	KindInvalidInput         Kind = "invalid-input"
)

// OutcomeError is the structured outcome surfaced to callers. Diagnostics is
// the stable, human-readable message; Kind drives the transport mapping
// (HTTP status and OperationOutcome issue code).
type OutcomeError struct {
	Kind        Kind
	Diagnostics string

	cause error
}

func (e *OutcomeError) Error() string {
	return e.Diagnostics
}

func (e *OutcomeError) Unwrap() error {
	return e.cause
}

func newOutcome(kind Kind, diagnostics string) *OutcomeError {
	return &OutcomeError{Kind: kind, Diagnostics: diagnostics}
}

func codeSystemNotFound(url string) *OutcomeError {
	return newOutcome(KindCodeSystemNotFound, "CodeSystem not found: "+url)
}

func ambiguousCodeSystem(url string) *OutcomeError {
	return newOutcome(KindAmbiguousCodeSystem, "Multiple CodeSystems found: "+url)
}

func unknownCode(systemURL, code string) *OutcomeError {
	return newOutcome(KindUnknownCode, fmt.Sprintf("Unknown code: %s|%s", systemURL, code))
}

func unknownProperty(code string) *OutcomeError {
	return newOutcome(KindUnknownProperty, "Unknown property: "+code)
}

func storageFailure(err error, msg string) *OutcomeError {
	return &OutcomeError{
		Kind:        KindStorageFailure,
		Diagnostics: msg,
		cause:       err,
	}
}

func authorizationFailure() *OutcomeError {
	return newOutcome(KindAuthorizationFailure, "Import requires elevated privilege")
}

func invalidInput(msg string) *OutcomeError {
	return newOutcome(KindInvalidInput, msg)
}

// AsOutcome extracts the structured outcome from any error the import
// service returns. Errors without one are classified as storage failures.
func AsOutcome(err error) *OutcomeError {
	var outcome *OutcomeError

	if errors.As(err, &outcome) {
		return outcome
	}

	return storageFailure(err, "Database error")
}
