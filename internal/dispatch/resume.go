package dispatch

import (
	"strings"
	"sync"
)

// resumeTable matches suspended tool calls with their subchat results.
//
// Registration (the Pending outcome returning to the loop) and resolution
// (the engine's Resumption arriving) race: a fast subchat group can finish
// before the handler goroutine registers the reply. The table accepts the
// two sides in either order and releases the reply exactly once, when both
// are present.
type resumeTable struct {
	mu      sync.Mutex
	entries map[string]*resumeEntry
}

type resumeEntry struct {
	reply    ReplyFunc
	result   string
	resolved bool
}

func newResumeTable() *resumeTable {
	return &resumeTable{entries: make(map[string]*resumeEntry)}
}

// Register records the reply path for a suspended call. If the call already
// resolved, the reply fires immediately and the entry is released.
func (t *resumeTable) Register(callID string, reply ReplyFunc) {
	t.mu.Lock()
	e, ok := t.entries[callID]
	if !ok {
		t.entries[callID] = &resumeEntry{reply: reply}
		t.mu.Unlock()
		return
	}
	if !e.resolved {
		e.reply = reply
		t.mu.Unlock()
		return
	}
	delete(t.entries, callID)
	t.mu.Unlock()

	reply(e.result, nil)
}

// Resolve records the subchat results for a call. If the reply is already
// registered, it fires immediately and the entry is released. Results are
// joined in spawn order.
func (t *resumeTable) Resolve(callID string, results []string) {
	result := strings.Join(results, "\n\n")

	t.mu.Lock()
	e, ok := t.entries[callID]
	if !ok {
		t.entries[callID] = &resumeEntry{result: result, resolved: true}
		t.mu.Unlock()
		return
	}
	if e.reply == nil {
		e.result = result
		e.resolved = true
		t.mu.Unlock()
		return
	}
	delete(t.entries, callID)
	t.mu.Unlock()

	e.reply(result, nil)
}
