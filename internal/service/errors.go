package service

import (
	"errors"
	"fmt"
)

// Error kinds, match with errors.Is
var (
	ErrConfiguration = errors.New("configuration error")
	ErrInvite        = errors.New("invite error")
	ErrUpstream      = errors.New("upstream error")
	ErrProvisioning  = errors.New("provisioning error")
)

var (
	ErrProviderDisabled     = fmt.Errorf("%w: provider not enabled", ErrConfiguration)
	ErrUnsupportedProvider  = fmt.Errorf("%w: unsupported provider", ErrConfiguration)
	ErrInvalidInvite        = fmt.Errorf("%w: invalid or expired invite code", ErrInvite)
	ErrInviteRequired       = fmt.Errorf("%w: valid invite code is required", ErrInvite)
	ErrMissingCode          = errors.New("no authorization code received")
	ErrMalformedIdentity    = errors.New("malformed identity")
	ErrUnverifiedEmail      = errors.New("email address is not verified")
	ErrUserCreationDisabled = fmt.Errorf("%w: user does not exist and auto-creation is disabled", ErrProvisioning)
	ErrUsernameTaken        = fmt.Errorf("%w: username already taken", ErrProvisioning)
	ErrAccountNotFound      = errors.New("account not found")
)

// UpstreamError carries the status and body of a rejected provider or Wizarr call.
// The body is for operators only and must never reach the client.
type UpstreamError struct {
	Service string
	Status  int
	Body    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed with status %d", e.Service, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// ProviderError is an error reported by the provider on the callback itself (e.g. access_denied).
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

func (e *ProviderError) Unwrap() error {
	return ErrUpstream
}

func malformedIdentity(provider string, field string) error {
	return fmt.Errorf("%w: %s did not return %s", ErrMalformedIdentity, provider, field)
}

func unverifiedEmail(provider string) error {
	return fmt.Errorf("%w: %s", ErrUnverifiedEmail, provider)
}

type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeNonFatal
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeNonFatal:
		return "non_fatal"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is returned by best-effort calls so non fatal failures stay visibly non fatal.
type Result struct {
	Outcome Outcome
	Err     error
}

func Succeeded() Result {
	return Result{Outcome: OutcomeSucceeded}
}

func NonFatal(err error) Result {
	return Result{Outcome: OutcomeNonFatal, Err: err}
}

func Fatal(err error) Result {
	return Result{Outcome: OutcomeFatal, Err: err}
}

func (r Result) Ok() bool {
	return r.Outcome == OutcomeSucceeded
}
