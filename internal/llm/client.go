package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the author of a message sent to the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history in the shape the gateway
// understands. Implementations translate it to their provider's wire format.
type Message struct {
	Role    Role
	Content string
}

// Client is the model gateway. Generate sends the system instruction and
// conversation history to the remote model and returns the reply text.
// When jsonMode is set the provider is asked to emit a JSON document.
// All failures come back as errors; reply text never carries error content.
type Client interface {
	Generate(ctx context.Context, system string, history []Message, jsonMode bool) (string, error)
}

// GatewayError describes a failed remote call: a non-success status from
// the provider, or a transport failure after retries were exhausted.
type GatewayError struct {
	Status int    // HTTP status, 0 for transport-level failures
	Body   string // response body, if any
	Err    error  // underlying transport error, if any
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model gateway: %v", e.Err)
	}
	return fmt.Sprintf("model gateway: status %d: %s", e.Status, e.Body)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err wraps a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
