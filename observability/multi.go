package observability

import "context"

// MultiObserver fans out events to several observers, for example the
// configured slog observer plus a recorder attached by the engine or a test.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver combines observers. Nil entries and NoOpObserver values
// are dropped; with nothing left the result is a NoOpObserver, and a single
// remaining observer is returned as is.
func NewMultiObserver(observers ...Observer) Observer {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		switch obs.(type) {
		case nil, NoOpObserver, *NoOpObserver:
			continue
		}
		filtered = append(filtered, obs)
	}

	switch len(filtered) {
	case 0:
		return NoOpObserver{}
	case 1:
		return filtered[0]
	default:
		return &MultiObserver{observers: filtered}
	}
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
