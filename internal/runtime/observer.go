package runtime

import (
	"context"
	"time"
)

// Event describes one completed dispatch. URL is redacted.
type Event struct {
	Operation  string
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Err        error
	At         time.Time
}

// Observer receives an event after every dispatch.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

// Observers fans an event out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	var list []Observer
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(ctx context.Context, e Event) {
		for _, o := range list {
			o.Observe(ctx, e)
		}
	})
}
