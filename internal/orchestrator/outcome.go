package orchestrator

import "askai/internal/providers"

// Status classifies the result of a caller-facing operation.
type Status int

const (
	// StatusSuccess means the operation completed; Response is set for chat
	// submissions.
	StatusSuccess Status = iota
	// StatusRejected means the request was refused before any storage or
	// network access (validation or local throttling).
	StatusRejected
	// StatusFailed means the request was admitted but could not complete.
	// Message is already sanitized for display.
	StatusFailed
)

// Outcome is the single result every operation produces. No path leaves the
// caller without one.
type Outcome struct {
	Status   Status
	Message  string
	Response *providers.ChatResponse
}

func success(msg string) Outcome {
	return Outcome{Status: StatusSuccess, Message: msg}
}

func completed(resp *providers.ChatResponse) Outcome {
	return Outcome{Status: StatusSuccess, Message: resp.Text, Response: resp}
}

func rejected(msg string) Outcome {
	return Outcome{Status: StatusRejected, Message: msg}
}

func failed(msg string) Outcome {
	return Outcome{Status: StatusFailed, Message: msg}
}

// StatusView is the read-only settings summary for the status operation.
type StatusView struct {
	ActiveProvider providers.Provider
	// Models maps each provider to its effective model (override or default).
	Models map[providers.Provider]string
	// HasKey reports per provider whether the identity has a credential.
	HasKey map[providers.Provider]bool
	// SharedKeys reports per provider whether the server-wide record has a
	// credential. Nil unless shared-key mode is on.
	SharedKeys map[providers.Provider]bool
}

// Executor marshals outcome delivery back onto the caller's home execution
// context. Hosts with a single-threaded main loop supply their scheduler;
// everything else uses Inline.
type Executor interface {
	Run(fn func())
}

// Inline runs delivery on the worker goroutine itself.
type Inline struct{}

func (Inline) Run(fn func()) { fn() }
