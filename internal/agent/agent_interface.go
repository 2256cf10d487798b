package agent

import (
	"context"
	"iter"

	"github.com/dietnavigator/nutrition-chat/internal/event"
)

// Runtime defines the remote agent runtime operations used by the chat front-end.
// It is implemented by the REST and gRPC clients.
type Runtime interface {
	// CreateSession opens a conversation for userID and returns its identifier.
	// An empty identifier with a nil error means the runtime returned none.
	CreateSession(ctx context.Context, userID string) (string, error)

	// StreamQuery sends one message and yields decoded events in arrival order.
	StreamQuery(ctx context.Context, q Query) iter.Seq2[event.Event, error]

	// Close releases resources
	Close()
}

// Ensure the clients implement Runtime.
var (
	_ Runtime = (*GrpcClient)(nil)
	_ Runtime = (*RESTClient)(nil)
)
