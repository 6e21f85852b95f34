package view

import (
	"context"
	"sync"

	"github.com/cawio/snake/protocol"
)

// Reconciler keeps the View of the newest snapshot and pushes every new View
// to its subscribers
type Reconciler struct {
	localID string

	mu      sync.Mutex
	current View
	lastErr *protocol.ErrorData
	subs    map[int]func(View)
	errSubs map[int]func(protocol.ErrorData)
	nextSub int
}

// NewReconciler creates a Reconciler for the client with localID
func NewReconciler(localID string) *Reconciler {
	return &Reconciler{
		localID: localID,
		current: Project(protocol.StateUpdateData{}, localID),
		subs:    make(map[int]func(View)),
		errSubs: make(map[int]func(protocol.ErrorData)),
	}
}

// Apply feeds one inbound message. A state-update replaces the View and
// notifies subscribers; an error is remembered for LastError and handed to
// OnError funcs. Anything else is ignored.
func (r *Reconciler) Apply(m protocol.Message) {
	switch data := m.Data.(type) {
	case protocol.StateUpdateData:
		v := Project(data, r.localID)
		r.mu.Lock()
		r.current = v
		subs := make([]func(View), 0, len(r.subs))
		for _, fn := range r.subs {
			subs = append(subs, fn)
		}
		r.mu.Unlock()
		for _, fn := range subs {
			fn(v)
		}
	case protocol.ErrorData:
		r.mu.Lock()
		r.lastErr = &data
		subs := make([]func(protocol.ErrorData), 0, len(r.errSubs))
		for _, fn := range r.errSubs {
			subs = append(subs, fn)
		}
		r.mu.Unlock()
		for _, fn := range subs {
			fn(data)
		}
	}
}

// Follow applies every message from msgs until it is closed or ctx ends
func (r *Reconciler) Follow(ctx context.Context, msgs <-chan protocol.Message) {
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			r.Apply(m)
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe registers fn for every future View. The returned func removes it.
func (r *Reconciler) Subscribe(fn func(View)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// OnError registers fn for every future error reply. The returned func
// removes it.
func (r *Reconciler) OnError(fn func(protocol.ErrorData)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.errSubs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.errSubs, id)
	}
}

// Current returns the newest View
func (r *Reconciler) Current() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// LastError returns the most recent error reply from the server
func (r *Reconciler) LastError() (protocol.ErrorData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr == nil {
		return protocol.ErrorData{}, false
	}
	return *r.lastErr, true
}
