package pipeline

import "fmt"

// Kind classifies every way a verification request can fail. Handlers map
// kinds to HTTP statuses; nothing else about a failure crosses the boundary.
type Kind int

const (
	// KindInput covers malformed or missing fields, vk hash mismatches and
	// identifier mismatches. Client-correctable; never retried server-side.
	KindInput Kind = iota + 1
	// KindEnvironment means the proof engine or key material is unavailable.
	// Operator-correctable and fatal to the request.
	KindEnvironment
	// KindVerification means the engine ran and rejected the proof. A normal
	// outcome, not an error condition worth alerting on.
	KindVerification
	// KindSigning means the attestation signer failed; no partially formed
	// attestation is ever returned alongside it.
	KindSigning
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input_error"
	case KindEnvironment:
		return "environment_error"
	case KindVerification:
		return "verification_failure"
	case KindSigning:
		return "signing_failure"
	default:
		return "unknown"
	}
}

// Error is the single structured failure type the pipeline surfaces.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func inputError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

func environmentError(msg string, err error) *Error {
	return &Error{Kind: KindEnvironment, Message: msg, Err: err}
}

func verificationFailure(msg string) *Error {
	return &Error{Kind: KindVerification, Message: msg}
}

func signingFailure(msg string, err error) *Error {
	return &Error{Kind: KindSigning, Message: msg, Err: err}
}
