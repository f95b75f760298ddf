package state

import (
	"context"
)

const watchBufferSize = 16

// watchers fans out snapshots to subscribers. It is not safe for concurrent use,
// callers hold the workspace lock.
type watchers[T any] struct {
	nextID int
	chs    map[int]chan T
}

func (w *watchers[T]) add(initial T) (int, chan T) {
	if w.chs == nil {
		w.chs = map[int]chan T{}
	}

	ch := make(chan T, watchBufferSize)
	ch <- initial
	id := w.nextID
	w.nextID++
	w.chs[id] = ch

	return id, ch
}

func (w *watchers[T]) remove(id int) {
	ch, ok := w.chs[id]
	if !ok {
		return
	}
	delete(w.chs, id)
	close(ch)
}

// notify never blocks, a subscriber that is not keeping up loses its oldest
// pending snapshot, the last one received is always the current one.
func (w *watchers[T]) notify(v T) {
	for _, ch := range w.chs {
		select {
		case ch <- v:
			continue
		default:
		}

		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// subscribe registers a watcher and removes it when the context is done.
func subscribe[T any](ctx context.Context, ws *workspace, w *watchers[T], current func() T) <-chan T {
	ws.mu.Lock()
	id, ch := w.add(current())
	ws.mu.Unlock()

	go func() {
		<-ctx.Done()
		ws.mu.Lock()
		w.remove(id)
		ws.mu.Unlock()
	}()

	return ch
}
