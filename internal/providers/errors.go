package providers

import (
	"errors"
	"strconv"
)

var (
	// ErrUnknownProvider is returned when a provider id cannot be parsed
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUnregisteredProvider is returned when a provider has no registered client
	ErrUnregisteredProvider = errors.New("no client registered for provider")
)

// ErrorKind classifies a provider failure. Every kind maps to a distinct
// user-facing outcome in the orchestrator.
type ErrorKind int

const (
	// KindInvalidCredential covers 401/403-class responses (bad or revoked key).
	KindInvalidCredential ErrorKind = iota
	// KindRateLimited covers 429 responses from the backend itself.
	KindRateLimited
	// KindUpstream covers any other >=400 status, transport failures and timeouts.
	KindUpstream
	// KindMalformedResponse covers 2xx responses whose body does not parse into
	// the expected shape.
	KindMalformedResponse
)

// Error is a provider failure with a message safe to show to the end user.
// The message never embeds the request body, response body, headers or key
// material.
type Error struct {
	Provider   Provider
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// AsError unwraps err into a *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// statusError maps an HTTP status to the uniform error taxonomy. Provider
// clients call this for every non-2xx response so the classification stays
// identical across backends.
func statusError(p Provider, status int) *Error {
	switch {
	case status == 401 || status == 403:
		return &Error{
			Provider:   p,
			Kind:       KindInvalidCredential,
			StatusCode: status,
			Message: "Invalid " + p.DisplayName() + " API key. Check your key with /chat setkey " +
				p.ID() + " <key>",
		}
	case status == 429:
		return &Error{
			Provider:   p,
			Kind:       KindRateLimited,
			StatusCode: status,
			Message:    p.DisplayName() + " rate limit exceeded. Please wait and try again.",
		}
	default:
		return &Error{
			Provider:   p,
			Kind:       KindUpstream,
			StatusCode: status,
			Message:    p.DisplayName() + " returned error " + strconv.Itoa(status),
		}
	}
}

// transportError covers request construction and network/timeout failures.
func transportError(p Provider) *Error {
	return &Error{
		Provider: p,
		Kind:     KindUpstream,
		Message:  p.DisplayName() + " request failed. Please try again.",
	}
}

// malformedError covers 2xx bodies that do not match the expected shape.
func malformedError(p Provider) *Error {
	return &Error{
		Provider: p,
		Kind:     KindMalformedResponse,
		Message:  p.DisplayName() + " returned an unexpected response.",
	}
}
