package fedAuth

import "context"

// Watch returns a channel that receives the current session immediately and
// then every subsequent change. The channel holds one value; a slow reader
// only ever sees the latest snapshot. It is closed when ctx is done or the
// facade is closed.
func (f *Facade) Watch(ctx context.Context) <-chan Session {
	ch := make(chan Session, 1)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch
	}
	id := f.nextWatcher
	f.nextWatcher++
	f.watchers[id] = ch
	ch <- f.state.clone()
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
			return
		}
		f.mu.Lock()
		if w, ok := f.watchers[id]; ok {
			delete(f.watchers, id)
			close(w)
		}
		f.mu.Unlock()
	}()

	return ch
}

// update applies mutate to the session and, when the snapshot changed,
// notifies watchers. It reports whether anything changed.
func (f *Facade) update(mutate func(*Session)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.state.clone()
	mutate(&next)
	if next.equal(f.state) {
		return false
	}
	f.state = next
	f.metricInc(MetricSessionChanged)

	for _, ch := range f.watchers {
		offer(ch, next.clone())
	}
	return true
}

// offer replaces any unread value in ch with s. Callers hold f.mu, so no
// other writer can refill the slot between the drain and the send.
func offer(ch chan Session, s Session) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- s
}

func (f *Facade) closeWatchers() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for id, ch := range f.watchers {
		delete(f.watchers, id)
		close(ch)
	}
}
