package scrollback

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/crystal-mush/mushchat/pkg/events"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// Namer resolves a sender's display name at archive time.
type Namer interface {
	Name(ref gamedb.DBRef) string
}

// Writer is a global event bus subscriber that archives channel messages.
// Only the channel-wide copy of each message is stored.
type Writer struct {
	store  *Store
	names  Namer
	mu     sync.Mutex
	closed bool
}

// NewWriter creates a writer and registers it as a global subscriber on bus.
func NewWriter(store *Store, names Namer, bus *events.Bus) *Writer {
	w := &Writer{store: store, names: names}
	bus.SubscribeGlobal(w)
	log.Printf("scrollback: writer registered on event bus")
	return w
}

// Receive implements events.Subscriber.
func (w *Writer) Receive(ev events.Event) {
	if ev.Type != events.EvChannel || ev.Channel == "" || !ev.Broadcast() {
		return
	}

	senderName := ""
	if ev.Source >= 0 && !ev.Spoof && w.names != nil {
		senderName = w.names.Name(ev.Source)
	}

	if err := w.store.Insert(ev.Channel, ev.Source, senderName, ev.Text); err != nil {
		log.Printf("scrollback: insert error: %v", err)
	}
}

// Closed implements events.Subscriber.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close marks the writer as closed so the bus stops delivering events.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// StartRetentionCleanup purges old messages every interval until ctx ends.
func StartRetentionCleanup(ctx context.Context, store *Store, retention, interval time.Duration) {
	if store == nil || retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			purged, err := store.Purge(retention)
			if err != nil {
				log.Printf("scrollback: cleanup error: %v", err)
				continue
			}
			if purged > 0 {
				log.Printf("scrollback: purged %d old channel entries", purged)
			}
		}
	}()
}
