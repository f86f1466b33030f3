package tally

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so callers can branch on it without
// parsing the free-text detail.
type Kind string

const (
	KindMissingKeyMaterial       Kind = "MissingKeyMaterial"
	KindMissingSigningCredential Kind = "MissingSigningCredential"
	KindInvalidContractAddress   Kind = "InvalidContractAddress"
	KindContractNotFound         Kind = "ContractNotFound"
	KindLedgerReadFailure        Kind = "LedgerReadFailure"
	KindMalformedCiphertext      Kind = "MalformedCiphertext"
	KindNoVotes                  Kind = "NoVotes"
	KindDecryptionFailure        Kind = "DecryptionFailure"
	KindLedgerWriteFailure       Kind = "LedgerWriteFailure"
	KindBoundaryTimeout          Kind = "BoundaryTimeout"
	KindBoundaryProtocolError    Kind = "BoundaryProtocolError"
	KindEncodingError            Kind = "EncodingError"
	KindTallyOverflow            Kind = "TallyOverflow"
	KindAlreadyFinalized         Kind = "AlreadyFinalized"
	KindFinalizationInProgress   Kind = "FinalizationInProgress"
	KindInternal                 Kind = "Internal"
)

// ErrNoVotes is returned when there is nothing to decrypt. It is a
// distinguished outcome rather than a failure.
var ErrNoVotes = &Error{Kind: KindNoVotes, Err: errors.New("no votes")}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNoVotes)
// holds for every NoVotes error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Detail returns the human readable part of the error, without the kind.
func (e *Error) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Errorf builds a classified error with a formatted detail. Wrapped errors
// (%w) are preserved.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err under kind. If err is already classified it is
// returned unchanged.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of err, KindInternal for unclassified errors and
// the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailOf returns the free-text detail of err.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}
