package chat

import (
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/metrics"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

// Merge sources, also used as metric labels.
const (
	SourceSnapshot   = "snapshot"
	SourceOptimistic = "optimistic"
	SourceBroadcast  = "broadcast"
	SourceConfirm    = "confirm"
)

// View receives the full ordered message list after a mutation.
type View func([]models.ChatMessage)

type entry struct {
	msg models.ChatMessage
	seq uint64
}

// Reconciler keeps one room's ordered, deduplicated message list.
//
// Messages are ordered by CreatedAt, ties broken by the order in which they
// were first seen. Two messages with the same id are the same message. A
// persisted message whose ClientRef matches an optimistic entry takes that
// entry's place.
//
// Views are delivered synchronously and in mutation order, so a [View] must
// not call back into the reconciler.
type Reconciler struct {
	emit     sync.Mutex
	mu       sync.Mutex
	entries  []entry
	seq      uint64
	views    map[int]View
	nextView int
	logger   *log.Logger
}

func NewReconciler(logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Reconciler{views: make(map[int]View), logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
func (r *Reconciler) Subscribe(fn View) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextView
	r.nextView++
	r.views[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.views, id)
			r.mu.Unlock()
		})
	}
}

// Messages returns a copy of the current view.
func (r *Reconciler) Messages() []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view()
}

// Len reports the number of messages in the view.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Merge adds msgs from source and emits the view.
func (r *Reconciler) Merge(source string, msgs ...models.ChatMessage) {
	r.mutate(func() bool {
		changed := false
		for _, msg := range msgs {
			if r.merge(msg) {
				metrics.RecordMerge(source)
				changed = true
			}
		}
		if changed {
			slices.SortStableFunc(r.entries, compareEntries)
		}
		return changed
	})
}

func (r *Reconciler) merge(msg models.ChatMessage) bool {
	if msg.ID.IsZero() {
		r.logger.Warn("dropping message without id", "room", msg.Room)
		return false
	}

	pending := -1
	if msg.ID.IsPersisted() && msg.ClientRef != "" {
		pending = r.optimisticIndex(msg.ClientRef)
	}

	if r.index(msg.ID) >= 0 {
		// already known; an optimistic twin is now redundant
		if pending >= 0 {
			r.entries = slices.Delete(r.entries, pending, pending+1)
			return true
		}
		return false
	}

	if pending >= 0 {
		msg.Optimistic = false
		r.entries[pending].msg = msg
		return true
	}

	r.seq++
	r.entries = append(r.entries, entry{msg: msg, seq: r.seq})
	return true
}

// BeginEdit marks a message as being edited. It reports whether id was found.
func (r *Reconciler) BeginEdit(id models.MessageID) bool {
	return r.update(id, func(m *models.ChatMessage) { m.PendingEdit = true })
}

// CancelEdit clears the pending-edit mark.
func (r *Reconciler) CancelEdit(id models.MessageID) bool {
	return r.update(id, func(m *models.ChatMessage) { m.PendingEdit = false })
}

// Edit replaces the content of id in place and clears its pending-edit mark.
//
// Authorship must already have been checked by the caller.
func (r *Reconciler) Edit(id models.MessageID, content string) bool {
	return r.update(id, func(m *models.ChatMessage) {
		m.Content = content
		m.PendingEdit = false
	})
}

// Delete removes id from the view. It reports whether id was found.
func (r *Reconciler) Delete(id models.MessageID) bool {
	found := false
	r.mutate(func() bool {
		i := r.index(id)
		if i < 0 {
			return false
		}
		r.entries = slices.Delete(r.entries, i, i+1)
		metrics.RecordMerge("delete")
		found = true
		return true
	})
	return found
}

// Reset drops every message.
func (r *Reconciler) Reset() {
	r.mutate(func() bool {
		if len(r.entries) == 0 {
			return false
		}
		r.entries = nil
		return true
	})
}

func (r *Reconciler) update(id models.MessageID, fn func(*models.ChatMessage)) bool {
	found := false
	r.mutate(func() bool {
		i := r.index(id)
		if i < 0 {
			return false
		}
		fn(&r.entries[i].msg)
		metrics.RecordMerge("edit")
		found = true
		return true
	})
	return found
}

// mutate runs fn under the lock and emits the view when fn reports a change.
func (r *Reconciler) mutate(fn func() bool) {
	r.emit.Lock()
	defer r.emit.Unlock()

	r.mu.Lock()
	if !fn() {
		r.mu.Unlock()
		return
	}
	view := r.view()
	views := make([]View, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	r.mu.Unlock()

	for _, v := range views {
		v(view)
	}
}

func (r *Reconciler) view() []models.ChatMessage {
	out := make([]models.ChatMessage, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.msg
	}
	return out
}

func (r *Reconciler) index(id models.MessageID) int {
	return slices.IndexFunc(r.entries, func(e entry) bool { return e.msg.ID == id })
}

func (r *Reconciler) optimisticIndex(ref string) int {
	return slices.IndexFunc(r.entries, func(e entry) bool {
		return e.msg.Optimistic && e.msg.ClientRef == ref
	})
}

func compareEntries(a, b entry) int {
	if c := a.msg.CreatedAt.Compare(b.msg.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}
