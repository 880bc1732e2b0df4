package scrollback

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/crystal-mush/mushchat/pkg/events"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scrollback.db"), 5)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func setClock(t *testing.T, at time.Time) {
	t.Helper()
	old := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = old })
}

func TestInsertRecent(t *testing.T) {
	s := openTestStore(t)
	for _, text := range []string{"one", "two", "three"} {
		if err := s.Insert("Public", 10, "Alice", text); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := s.Insert("Staff", 1, "Wizard", "elsewhere"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent("public", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Text != "two" || got[1].Text != "three" {
		t.Fatalf("Recent = %+v", got)
	}
	if got[0].Sender != 10 || got[0].SenderName != "Alice" {
		t.Errorf("sender = %s %q", got[0].Sender, got[0].SenderName)
	}

	if got, _ := s.Recent("Public", 0); got != nil {
		t.Errorf("Recent(0) = %+v", got)
	}
}

func TestRename(t *testing.T) {
	s := openTestStore(t)
	s.Insert("Public", 10, "Alice", "hi")
	if err := s.Rename("Public", "Lobby"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got, _ := s.Recent("Lobby", 5); len(got) != 1 {
		t.Errorf("renamed history = %+v", got)
	}
	if got, _ := s.Recent("Public", 5); len(got) != 0 {
		t.Errorf("old name still has %d entries", len(got))
	}
}

func TestPurge(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	setClock(t, base.Add(-48*time.Hour))
	s.Insert("Public", 10, "Alice", "old")
	setClock(t, base)
	s.Insert("Public", 10, "Alice", "new")

	n, err := s.Purge(24 * time.Hour)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	got, _ := s.Recent("Public", 5)
	if len(got) != 1 || got[0].Text != "new" {
		t.Errorf("after purge = %+v", got)
	}
}

type names map[gamedb.DBRef]string

func (n names) Name(ref gamedb.DBRef) string { return n[ref] }

func TestWriterStoresBroadcastsOnly(t *testing.T) {
	s := openTestStore(t)
	bus := events.NewBus()
	w := NewWriter(s, names{10: "Alice"}, bus)

	// Per-recipient copies are not archived.
	bus.EmitGlobal(events.Event{Type: events.EvChannel, Player: 11, Source: 10, Channel: "Public", Text: "copy"})
	bus.EmitGlobal(events.Event{Type: events.EvText, Player: gamedb.Nothing, Text: "notice"})
	bus.EmitGlobal(events.Event{Type: events.EvChannel, Player: gamedb.Nothing, Source: 10, Channel: "Public", Text: "hello"})
	bus.EmitGlobal(events.Event{Type: events.EvChannel, Player: gamedb.Nothing, Source: gamedb.Nothing, Channel: "Public", Text: "boo", Spoof: true})

	got, err := s.Recent("Public", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("archived %d entries: %+v", len(got), got)
	}
	if got[0].Text != "hello" || got[0].SenderName != "Alice" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].SenderName != "" || got[1].Sender != gamedb.Nothing {
		t.Errorf("spoofed = %+v", got[1])
	}

	w.Close()
	bus.EmitGlobal(events.Event{Type: events.EvChannel, Player: gamedb.Nothing, Source: 10, Channel: "Public", Text: "late"})
	if got, _ := s.Recent("Public", 10); len(got) != 2 {
		t.Errorf("closed writer stored a message")
	}
}
