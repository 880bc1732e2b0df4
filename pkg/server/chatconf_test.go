package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadChatConfYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chat.yaml", `
max_channels: 50
channel_cost: 0
channel_flags: "player object"
label_format: "<%s>"
director_override: deny
chat_db: data/chatdb
bolt_path: /var/mush/chat.bolt
`)
	cc, err := LoadChatConf(path)
	if err != nil {
		t.Fatalf("LoadChatConf: %v", err)
	}

	want := DefaultChatConf()
	want.MaxChannels = 50
	want.ChannelCost = 0
	want.ChannelFlags = "player object"
	want.LabelFormat = "<%s>"
	want.DirectorOverride = "deny"
	want.ChatDB = filepath.Join(dir, "data/chatdb")
	want.BoltPath = "/var/mush/chat.bolt"
	if diff := cmp.Diff(want, cc); diff != "" {
		t.Errorf("conf (-want +got):\n%s", diff)
	}
}

func TestLoadChatConfLegacy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "storage.conf", "chatdb chat.db\nscrollback_db scrollback.sqlite\n")
	path := writeFile(t, dir, "mush.conf", `# chat settings
max_player_channels	3
chan_cost 250
chat_strip_quote no
include storage.conf
include missing.conf
some_future_option 7
max_channels lots
`)
	cc, err := LoadChatConf(path)
	if err != nil {
		t.Fatalf("LoadChatConf: %v", err)
	}
	if cc.MaxPlayerChannels != 3 || cc.ChannelCost != 250 || cc.ChatStripQuote {
		t.Errorf("limits = %d %d %v", cc.MaxPlayerChannels, cc.ChannelCost, cc.ChatStripQuote)
	}
	if cc.MaxChannels != 200 {
		t.Errorf("unparseable max_channels gave %d", cc.MaxChannels)
	}
	if cc.ChatDB != filepath.Join(dir, "chat.db") || cc.ScrollbackDB != filepath.Join(dir, "scrollback.sqlite") {
		t.Errorf("paths = %q %q", cc.ChatDB, cc.ScrollbackDB)
	}
}

func TestLoadChatConfCircularInclude(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "loop.conf", "include loop.conf\nmax_channels 9\n")
	cc, err := LoadChatConf(path)
	if err != nil {
		t.Fatalf("LoadChatConf: %v", err)
	}
	if cc.MaxChannels != 9 {
		t.Errorf("max_channels = %d", cc.MaxChannels)
	}
}

func TestLoadChatConfErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadChatConf(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("missing file loaded")
	}
	bad := writeFile(t, dir, "bad.yaml", "max_channels: [1, 2]\n")
	if _, err := LoadChatConf(bad); err == nil {
		t.Error("malformed yaml loaded")
	}
	invalid := writeFile(t, dir, "invalid.conf", "label_format [%d]\n")
	if _, err := LoadChatConf(invalid); err == nil {
		t.Error("label_format without %s loaded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*ChatConf)
		ok   bool
	}{
		{"defaults", func(*ChatConf) {}, true},
		{"deny", func(c *ChatConf) { c.DirectorOverride = "deny" }, true},
		{"override", func(c *ChatConf) { c.DirectorOverride = "allow" }, false},
		{"no verb", func(c *ChatConf) { c.LabelFormat = "chan" }, false},
		{"two verbs", func(c *ChatConf) { c.LabelFormat = "%s:%s" }, false},
		{"stray percent", func(c *ChatConf) { c.LabelFormat = "100%% %s" }, false},
		{"no channels", func(c *ChatConf) { c.MaxChannels = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := DefaultChatConf()
			tt.edit(cc)
			if err := cc.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestToOptions(t *testing.T) {
	if diff := cmp.Diff(chat.DefaultOptions(), DefaultChatConf().ToOptions()); diff != "" {
		t.Errorf("default options (-want +got):\n%s", diff)
	}

	cc := DefaultChatConf()
	cc.ChannelFlags = "player object quiet"
	cc.DirectorOverride = "deny"
	cc.ChatStripQuote = false
	opts := cc.ToOptions()
	if want := gamedb.ChanPlayer | gamedb.ChanObject | gamedb.ChanQuiet; opts.DefaultFlags != want {
		t.Errorf("DefaultFlags = %#x, want %#x", opts.DefaultFlags, want)
	}
	if opts.Override != chat.OverrideDeny || opts.StripQuote {
		t.Errorf("Override = %v, StripQuote = %v", opts.Override, opts.StripQuote)
	}

	cc.ChannelFlags = ""
	if got := cc.ToOptions().DefaultFlags; got != gamedb.ChanDefaultFlags {
		t.Errorf("empty channel_flags gave %#x", got)
	}
}

func TestWatchConf(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chat.yaml", "max_channels: 10\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int, 16)
	apply := func(cc *ChatConf) {
		select {
		case got <- cc.MaxChannels:
		default:
		}
	}
	if err := WatchConf(ctx, path, apply); err != nil {
		t.Fatalf("WatchConf: %v", err)
	}
	writeFile(t, dir, "other.yaml", "max_channels: 99\n")
	writeFile(t, dir, "chat.yaml", "max_channels: 20\n")

	// A truncating write may be seen half done; wait for the final value.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case n := <-got:
			if n == 99 {
				t.Fatal("reloaded from other.yaml")
			}
			if n == 20 {
				return
			}
		case <-timeout:
			t.Fatal("no reload after write")
		}
	}
}
