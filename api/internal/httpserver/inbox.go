package httpserver

import (
	"sync"
	"time"

	"truewater/api/internal/orchestrator"
)

type Notice struct {
	Seq     int64     `json:"seq"`
	Kind    string    `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Inbox keeps the most recent notifications for polling clients.
type Inbox struct {
	mu    sync.Mutex
	max   int
	seq   int64
	items []Notice
}

func NewInbox(max int) *Inbox {
	if max <= 0 {
		max = 50
	}
	return &Inbox{max: max}
}

func (b *Inbox) Notify(n orchestrator.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.items = append(b.items, Notice{
		Seq:     b.seq,
		Kind:    string(n.Kind),
		Title:   n.Title,
		Message: n.Message,
		At:      time.Now().UTC(),
	})
	if len(b.items) > b.max {
		b.items = append([]Notice(nil), b.items[len(b.items)-b.max:]...)
	}
}

// Since returns notices with Seq > seq, oldest first.
func (b *Inbox) Since(seq int64) []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notice, 0, len(b.items))
	for _, n := range b.items {
		if n.Seq > seq {
			out = append(out, n)
		}
	}
	return out
}
