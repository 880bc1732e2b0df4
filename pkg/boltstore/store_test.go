package boltstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecords() []gamedb.ChannelRecord {
	pub := gamedb.ChannelRecord{
		Name:        "Public",
		Description: "General chat",
		Flags:       gamedb.ChanPlayer,
		Creator:     1,
		Proxy:       gamedb.Nothing,
		Cost:        1000,
		NumMessages: 42,
		Buffer:      3,
		Members: []gamedb.MemberRecord{
			{Who: 10, Flags: gamedb.MemberQuiet, Title: "the Quiet"},
			{Who: 11},
		},
	}
	pub.Locks[gamedb.LockSpeak] = "!#12"
	// Sorts after Public by collation but before it by byte order.
	zed := gamedb.ChannelRecord{
		Name:    "\x1b[1mZed\x1b[0m",
		Flags:   gamedb.ChanPlayer | gamedb.ChanObject,
		Creator: 1,
		Proxy:   30,
	}
	return []gamedb.ChannelRecord{pub, zed}
}

func TestOpenSetsVersion(t *testing.T) {
	s := openTestStore(t)
	if s.Version() != storeVersion {
		t.Errorf("version = %d, want %d", s.Version(), storeVersion)
	}
	if s.HasChannels() {
		t.Error("fresh store reports channels")
	}
}

func TestPutChannelsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := testRecords()
	if err := s.PutChannels(want, "Mon Oct 19 12:00:00 2026"); err != nil {
		t.Fatalf("PutChannels: %v", err)
	}
	got, saved, err := s.Channels()
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if saved != "Mon Oct 19 12:00:00 2026" {
		t.Errorf("saved time = %q", saved)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPutChannelsReplaces(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutChannels(testRecords(), "first"); err != nil {
		t.Fatal(err)
	}
	only := testRecords()[:1]
	if err := s.PutChannels(only, "second"); err != nil {
		t.Fatal(err)
	}
	got, saved, err := s.Channels()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "Public" || saved != "second" {
		t.Errorf("got %d channels saved %q", len(got), saved)
	}
}

func TestChatDump(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.ChatDump(); !errors.Is(err, ErrNoDump) {
		t.Errorf("expected ErrNoDump, got %v", err)
	}
	text := []byte("+F0\nsavedtime \"x\"\nchannels 0\n***END OF DUMP***\n")
	if err := s.PutChatDump(text, "x"); err != nil {
		t.Fatalf("PutChatDump: %v", err)
	}
	got, saved, err := s.ChatDump()
	if err != nil {
		t.Fatalf("ChatDump: %v", err)
	}
	if string(got) != string(text) || saved != "x" {
		t.Errorf("dump = %q saved %q", got, saved)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.bolt")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutChannels(testRecords(), "then"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if !s.HasChannels() {
		t.Error("channels lost on reopen")
	}
}

func TestBackup(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutChannels(testRecords(), "then"); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "backup.bolt")
	if err := s.Backup(path); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open backup: %v", err)
	}
	defer b.Close()
	got, _, err := b.Channels()
	if err != nil || len(got) != 2 {
		t.Errorf("backup has %d channels, err %v", len(got), err)
	}
}
