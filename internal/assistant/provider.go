package assistant

import "context"

// EmitFunc receives each text delta in order. A non-nil return means the
// consumer is gone and the provider must stop reading upstream.
type EmitFunc func(text string) error

// Provider streams one completion. Stream returns after the upstream stream
// ends, fails, or emit returns an error; any open connection is released
// before it returns.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req CompletionRequest, emit EmitFunc) error
}
