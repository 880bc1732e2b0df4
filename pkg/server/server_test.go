package server

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/events"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// sink is a per-player bus subscriber that keeps the text it receives.
type sink struct {
	mu    sync.Mutex
	lines []string
}

func (s *sink) Receive(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, ev.Text)
}

func (s *sink) Closed() bool { return false }

func (s *sink) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.lines
	s.lines = nil
	return out
}

// The message counter is not kept in the text format.
var ignoreCount = cmpopts.IgnoreFields(gamedb.ChannelRecord{}, "NumMessages")

const (
	wizard = gamedb.DBRef(1)
	alice  = gamedb.DBRef(10)
	bob    = gamedb.DBRef(11)
)

func testWorld() *gamedb.Database {
	db := gamedb.NewDatabase()
	db.Add(gamedb.Object{DBRef: wizard, Name: "Wizard", Type: gamedb.TypePlayer, Powers: gamedb.PowDirector, Connected: true})
	db.Add(gamedb.Object{DBRef: alice, Name: "Alice", Type: gamedb.TypePlayer, Pennies: 5000, Connected: true})
	db.Add(gamedb.Object{DBRef: bob, Name: "Bob", Type: gamedb.TypePlayer, Pennies: 5000, Connected: true})
	return db
}

func newTestServer(t *testing.T, conf *ChatConf) *Server {
	t.Helper()
	if conf == nil {
		conf = DefaultChatConf()
	}
	conf.ChannelCost = 0
	s, err := New(conf, testWorld())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func (s *Server) mustRun(t *testing.T, actor gamedb.DBRef, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if !s.Run(actor, line) {
			t.Fatalf("Run(%q) was not handled", line)
		}
	}
}

func TestNewRejectsBadConf(t *testing.T) {
	conf := DefaultChatConf()
	conf.DirectorOverride = "maybe"
	if _, err := New(conf, testWorld()); err == nil {
		t.Fatal("New accepted director_override=maybe")
	}
}

func TestSpeakReachesSubscribers(t *testing.T) {
	s := newTestServer(t, nil)
	toAlice, toBob := &sink{}, &sink{}
	s.Bus.Subscribe(alice, toAlice)
	s.Bus.Subscribe(bob, toBob)

	s.mustRun(t, alice, "@channel/add Public", "@channel/on Public")
	s.mustRun(t, bob, "@channel/on Public")
	toAlice.take()
	toBob.take()

	s.mustRun(t, bob, "+pub hello")
	want := []string{`[Public] Bob says, "hello"`}
	if diff := cmp.Diff(want, toAlice.take()); diff != "" {
		t.Errorf("alice (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, toBob.take()); diff != "" {
		t.Errorf("bob (-want +got):\n%s", diff)
	}
}

func TestConnectDisconnect(t *testing.T) {
	s := newTestServer(t, nil)
	toAlice := &sink{}
	s.Bus.Subscribe(alice, toAlice)

	s.mustRun(t, alice, "@channel/add Public", "@channel/on Public")
	s.mustRun(t, bob, "@channel/on Public", "@channel/gag Public")
	toAlice.take()

	s.Disconnect(bob)
	if diff := cmp.Diff([]string{"[Public] Bob has disconnected."}, toAlice.take()); diff != "" {
		t.Errorf("disconnect (-want +got):\n%s", diff)
	}
	if s.World.Connected(bob) {
		t.Error("bob still connected")
	}

	s.Connect(bob)
	if diff := cmp.Diff([]string{"[Public] Bob has connected."}, toAlice.take()); diff != "" {
		t.Errorf("connect (-want +got):\n%s", diff)
	}
	_, ch := s.Registry.Resolve("Public", bob, chat.ModeAny)
	if m, ok := ch.Lookup(bob); !ok || m.Gagged() {
		t.Errorf("bob after connect: %+v, %v", m, ok)
	}
}

func TestDestroy(t *testing.T) {
	s := newTestServer(t, nil)
	s.mustRun(t, alice, "@channel/add Public", "@channel/on Public")
	s.mustRun(t, bob, "@channel/on Public")

	s.Destroy(alice, wizard)
	_, ch := s.Registry.Resolve("Public", wizard, chat.ModeAny)
	if ch == nil {
		t.Fatal("Public is gone")
	}
	if ch.Creator() != wizard {
		t.Errorf("creator = %s, want %s", ch.Creator(), wizard)
	}
	if _, ok := ch.Lookup(alice); ok {
		t.Error("alice is still a member")
	}
	if s.World.Type(alice) != gamedb.TypeGarbage {
		t.Error("alice was not destroyed")
	}
}

func TestChatDBRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	s.mustRun(t, alice, "@channel/add Public", "@channel/on Public", "@channel/add Quiet")
	path := filepath.Join(t.TempDir(), "chatdb")
	if err := s.SaveChatDB(path); err != nil {
		t.Fatalf("SaveChatDB: %v", err)
	}

	fresh := newTestServer(t, nil)
	if err := fresh.LoadChatDB(path, ""); err != nil {
		t.Fatalf("LoadChatDB: %v", err)
	}
	if diff := cmp.Diff(s.Registry.Snapshot(), fresh.Registry.Snapshot(), ignoreCount); diff != "" {
		t.Errorf("snapshot (-saved +loaded):\n%s", diff)
	}
	if err := fresh.LoadChatDB(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Error("LoadChatDB of a missing file succeeded")
	}
}

func TestCheckpoint(t *testing.T) {
	dir := t.TempDir()
	conf := DefaultChatConf()
	conf.BoltPath = filepath.Join(dir, "chat.bolt")

	s, err := New(conf, testWorld())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.mustRun(t, alice, "@channel/add Public", "@channel/on Public")
	want := s.Registry.Snapshot()
	if err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	restored := newTestServer(t, conf)
	if err := restored.RestoreCheckpoint(); err != nil {
		t.Fatalf("RestoreCheckpoint: %v", err)
	}
	if diff := cmp.Diff(want, restored.Registry.Snapshot(), ignoreCount); diff != "" {
		t.Errorf("restored (-want +got):\n%s", diff)
	}

	dump := filepath.Join(dir, "export.chatdb")
	if err := restored.ExportDump(dump); err != nil {
		t.Fatalf("ExportDump: %v", err)
	}
	if fi, err := os.Stat(dump); err != nil || fi.Size() == 0 {
		t.Fatalf("export: %v", err)
	}
	fromDump := newTestServer(t, nil)
	if err := fromDump.LoadChatDB(dump, ""); err != nil {
		t.Fatalf("LoadChatDB(export): %v", err)
	}
	if fromDump.Registry.Len() != 1 {
		t.Errorf("export held %d channels, want 1", fromDump.Registry.Len())
	}
}

func TestNoStore(t *testing.T) {
	s := newTestServer(t, nil)
	for name, err := range map[string]error{
		"Checkpoint":        s.Checkpoint(),
		"RestoreCheckpoint": s.RestoreCheckpoint(),
		"ExportDump":        s.ExportDump(filepath.Join(t.TempDir(), "x")),
	} {
		if !errors.Is(err, ErrNoStore) {
			t.Errorf("%s = %v, want ErrNoStore", name, err)
		}
	}
}

func TestScrollbackFollowsRename(t *testing.T) {
	conf := DefaultChatConf()
	conf.ScrollbackDB = filepath.Join(t.TempDir(), "scrollback.db")
	s := newTestServer(t, conf)

	s.mustRun(t, alice, "@channel/add Public", "@channel/on Public", "+pub hello")
	got, err := s.Scrollback.Recent("Public", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) == 0 || got[len(got)-1].Text != `[Public] Alice says, "hello"` {
		t.Fatalf("archived %+v", got)
	}
	if got[len(got)-1].SenderName != "Alice" {
		t.Errorf("sender = %q", got[len(got)-1].SenderName)
	}

	s.mustRun(t, alice, "@channel/rename Public=Lounge")
	if old, _ := s.Scrollback.Recent("Public", 10); len(old) != 0 {
		t.Errorf("Public still holds %d entries", len(old))
	}
	moved, err := s.Scrollback.Recent("Lounge", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(moved) < len(got) {
		t.Errorf("Lounge holds %d entries, want at least %d", len(moved), len(got))
	}
}

func TestMetricsCountBroadcasts(t *testing.T) {
	s := newTestServer(t, nil)
	s.mustRun(t, alice, "@channel/add Public", "@channel/on Public")
	s.mustRun(t, bob, "@channel/on Public")

	spoken := testutil.ToFloat64(s.Metrics.messagesTotal.WithLabelValues("speaker"))
	delivered := testutil.ToFloat64(s.Metrics.deliveriesTotal)
	s.mustRun(t, bob, "+pub hello")
	if got := testutil.ToFloat64(s.Metrics.messagesTotal.WithLabelValues("speaker")) - spoken; got != 1 {
		t.Errorf("messages += %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.Metrics.deliveriesTotal) - delivered; got != 2 {
		t.Errorf("deliveries += %v, want 2", got)
	}

	s.Metrics.Update()
	if got := testutil.ToFloat64(s.Metrics.channelsTotal); got != 1 {
		t.Errorf("channels = %v", got)
	}
	if got := testutil.ToFloat64(s.Metrics.channelMembers); got != 2 {
		t.Errorf("members = %v", got)
	}
}
