package flatfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

func sampleChannels() []gamedb.ChannelRecord {
	pub := gamedb.ChannelRecord{
		Name:        "Public",
		Description: `Say "hi" \ be nice`,
		Flags:       gamedb.ChanPlayer | gamedb.ChanObject,
		Creator:     1,
		Proxy:       gamedb.Nothing,
		Cost:        1000,
		Buffer:      5,
		Members: []gamedb.MemberRecord{
			{Who: 10, Flags: gamedb.MemberQuiet},
			{Who: 11, Flags: gamedb.MemberGag | gamedb.MemberHide, Title: "the Bold"},
		},
	}
	pub.Locks[gamedb.LockModify] = "=#1"
	pub.Locks[gamedb.LockSpeak] = "!#12"

	staff := gamedb.ChannelRecord{
		Name:    "\x1b[1mStaff\x1b[0m",
		Flags:   gamedb.ChanPlayer | gamedb.ChanAdmin | gamedb.ChanCobj,
		Creator: 1,
		Proxy:   30,
	}
	staff.Locks[gamedb.LockJoin] = "flag^Admin|#1"
	return []gamedb.ChannelRecord{pub, staff}
}

func TestChatDBRoundTrip(t *testing.T) {
	want := sampleChannels()
	var buf bytes.Buffer
	if err := WriteChatDB(&buf, want, "Mon Oct 19 12:00:00 2026"); err != nil {
		t.Fatalf("WriteChatDB: %v", err)
	}

	db, err := ReadChatDB(&buf, ReadOptions{MaxChannels: 10, WorldTimestamp: "Mon Oct 19 12:00:00 2026"})
	if err != nil {
		t.Fatalf("ReadChatDB: %v", err)
	}
	if db.Format != FormatNative {
		t.Errorf("format = %s", db.Format)
	}
	if db.Warnings != 0 {
		t.Errorf("warnings = %d", db.Warnings)
	}
	if diff := cmp.Diff(want, db.Channels); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteChatDBLayout(t *testing.T) {
	var buf bytes.Buffer
	ch := gamedb.ChannelRecord{Name: "Public", Creator: 1, Proxy: gamedb.Nothing, Flags: 1,
		Members: []gamedb.MemberRecord{{Who: 10}}}
	if err := WriteChatDB(&buf, []gamedb.ChannelRecord{ch}, "now"); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		`+F0`,
		`savedtime "now"`,
		`channels 1`,
		` name "Public"`,
		`  description ""`,
		`  flags 1`,
		`  creator #1`,
		`  cobj #-1`,
		`  cost 0`,
		`  lock "join"`,
		`  key "#TRUE"`,
		`  lock "speak"`,
		`  key "#TRUE"`,
		`  lock "modify"`,
		`  key "#TRUE"`,
		`  lock "see"`,
		`  key "#TRUE"`,
		`  lock "hide"`,
		`  key "#TRUE"`,
		`  users 1`,
		`   dbref #10`,
		`    flags 0`,
		`    title ""`,
		`***END OF DUMP***`,
		``,
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

const pennDump = `+V2
savedtime "Sun Oct 18 09:00:00 2026"
channels 1
 name "Games"
  description "Play"
  flags 2049
  creator #5
  cost 100
  lock "join"
  key "*UNLOCKED*"
  lock "speak"
  key "=#5"
  lock "modify"
  key "#5"
  lock "see"
  key "*UNLOCKED*"
  lock "hide"
  key "*UNLOCKED*"
  lock "bogus"
  key "#1"
  widgets 7
  users 3
   dbref #10
    flags 1
    title "Champ"
   dbref #garbage
    flags 2
    title "lost"
   dbref #12
    flags 0
    title ""
***END OF DUMP***
`

func TestReadPennChatDB(t *testing.T) {
	db, err := ReadChatDB(strings.NewReader(pennDump), ReadOptions{WorldTimestamp: "different"})
	if err != nil {
		t.Fatalf("ReadChatDB: %v", err)
	}
	if db.Format != FormatPenn {
		t.Errorf("format = %s", db.Format)
	}
	// timestamp mismatch, unknown lock, unknown field, bad member ref
	if db.Warnings != 4 {
		t.Errorf("warnings = %d, want 4", db.Warnings)
	}
	want := gamedb.ChannelRecord{
		Name:        "Games",
		Description: "Play",
		Flags:       gamedb.ChanPlayer | gamedb.ChanInteract,
		Creator:     5,
		Proxy:       gamedb.Nothing,
		Cost:        100,
		Members: []gamedb.MemberRecord{
			{Who: 10, Flags: 1, Title: "Champ"},
			{Who: 12},
		},
	}
	want.Locks[gamedb.LockSpeak] = "=#5"
	want.Locks[gamedb.LockModify] = "#5"
	if diff := cmp.Diff([]gamedb.ChannelRecord{want}, db.Channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
}

const legacyDump = `2
"Public"
"General chat"
1
3
500
key "#TRUE"
key "#TRUE"
key "=#3"
key "#TRUE"
key "#TRUE"
2
10
0
"Hi"
-4
0
""
Quiet
"Hush"
9
3
0
key "#TRUE"
key "#TRUE"
key "#3"
key "#TRUE"
key "#TRUE"
0
***END OF DUMP***
`

func TestReadLegacyChatDB(t *testing.T) {
	db, err := ReadChatDB(strings.NewReader(legacyDump), ReadOptions{MaxChannels: 5})
	if err != nil {
		t.Fatalf("ReadChatDB: %v", err)
	}
	if db.Format != FormatLegacy {
		t.Errorf("format = %s", db.Format)
	}
	if len(db.Channels) != 2 {
		t.Fatalf("channels = %d", len(db.Channels))
	}
	pub := db.Channels[0]
	if pub.Name != "Public" || pub.Cost != 500 || pub.Creator != 3 {
		t.Errorf("public = %+v", pub)
	}
	if diff := cmp.Diff([]gamedb.MemberRecord{{Who: 10, Title: "Hi"}}, pub.Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
	if pub.Locks[gamedb.LockModify] != "=#3" {
		t.Errorf("modify lock = %q", pub.Locks[gamedb.LockModify])
	}
	if db.Channels[1].Name != "Quiet" || db.Channels[1].Flags != 9 {
		t.Errorf("quiet = %+v", db.Channels[1])
	}
}

func TestReadChatDBFatal(t *testing.T) {
	tests := []struct {
		name string
		data string
		max  int
	}{
		{"empty", "", 0},
		{"bad header", "+Q0\n", 0},
		{"unparseable count", "+F0\nsavedtime \"x\"\nchannels lots\n", 0},
		{"over limit", "+F0\nsavedtime \"x\"\nchannels 3\n", 2},
		{"legacy over limit", "300\n", 200},
		{"truncated", "+F0\nsavedtime \"x\"\nchannels 1\n name \"A\"\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := ReadChatDB(strings.NewReader(tt.data), ReadOptions{MaxChannels: tt.max})
			if !errors.Is(err, ErrFatalLoad) {
				t.Errorf("expected ErrFatalLoad, got %v", err)
			}
			if db != nil {
				t.Errorf("partial result returned: %+v", db)
			}
		})
	}
}

func TestReadChatDBMissingEnd(t *testing.T) {
	data := "+F0\nsavedtime \"x\"\nchannels 0\n"
	db, err := ReadChatDB(strings.NewReader(data), ReadOptions{})
	if err != nil {
		t.Fatalf("missing end marker should not be fatal: %v", err)
	}
	if db.Warnings != 1 {
		t.Errorf("warnings = %d, want 1", db.Warnings)
	}
}

func TestSaveChatDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatdb")
	if err := SaveChatDB(path, sampleChannels(), "then"); err != nil {
		t.Fatalf("SaveChatDB: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	db, err := LoadChatDB(path, ReadOptions{})
	if err != nil {
		t.Fatalf("LoadChatDB: %v", err)
	}
	if db.SavedTime != "then" || len(db.Channels) != 2 {
		t.Errorf("loaded %q with %d channels", db.SavedTime, len(db.Channels))
	}
}

func TestRemapPennFlags(t *testing.T) {
	if got := RemapPennFlags(0x801); got != gamedb.ChanPlayer|gamedb.ChanInteract {
		t.Errorf("RemapPennFlags(0x801) = %#x", got)
	}
	if got := RemapPennFlags(0x41); got != 0x41 {
		t.Errorf("RemapPennFlags(0x41) = %#x", got)
	}
}
