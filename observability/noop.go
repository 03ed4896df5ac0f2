package observability

import "context"

// NoOpObserver discards all events. Resolvers, sinks and rpc services fall
// back to it when no observer is configured, and NewMultiObserver drops it
// from fan-out lists.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
