package chat

import (
	"context"

	"support_chat/internal/notify"
)

// Watcher is the change-notification side of the realtime store.
type Watcher interface {
	On(topic string, fn notify.Listener) func()
}

// watch registers on topics and only then loads the first snapshot, so a
// write that lands while it is being read still wakes the subscriber.
// After delivering the snapshot it calls load again after every
// notification until ctx is done or the returned cancel is called.
// Notifications that arrive while load runs collapse into one more load.
// deliver always runs on the watch goroutine.
func watch[T any](ctx context.Context, w Watcher, topics []string, load func(context.Context) (T, error), deliver func(T), reloadFailed func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	wake := make(chan struct{}, 1)

	offs := make([]func(), 0, len(topics))
	for _, topic := range topics {
		offs = append(offs, w.On(topic, func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		}))
	}
	off := func() {
		for _, off := range offs {
			off()
		}
	}

	initial, err := load(ctx)
	if err != nil {
		off()
		cancel()
		return nil, err
	}

	go func() {
		defer off()
		deliver(initial)
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				if ctx.Err() != nil {
					return
				}
				v, err := load(ctx)
				if err != nil {
					if ctx.Err() == nil {
						reloadFailed(err)
					}
					continue
				}
				if ctx.Err() == nil {
					deliver(v)
				}
			}
		}
	}()

	return cancel, nil
}
