package ports

import (
	"context"

	"github.com/mvetter/stewardflow/internal/domain"
)

// Disposer tears down a subscription. Calling it more than once is safe.
type Disposer func()

// EventStream is the capability to open one persistent push channel scoped
// to a session. Implementations may be a true push transport or a polling
// emulation; the progress state machine does not care which.
//
// onEvent receives each successfully parsed event. onError receives payload
// parse failures (the channel stays open) and transport failures (the
// channel closes). The stream closes itself after delivering a terminal
// event type; it never reconnects on its own.
type EventStream interface {
	Subscribe(ctx context.Context, id domain.SessionID, onEvent func(domain.StreamEvent), onError func(error)) (Disposer, error)
}
