package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
	"github.com/crystal-mush/mushchat/pkg/server"
)

func TestLoadWorld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	text := `objects:
  - dbref: 1
    name: Wizard
    powers: [director, priv_who]
    connected: true
  - dbref: 30
    name: Widget
    type: thing
    owner: 1
`
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := loadWorld(path)
	if err != nil {
		t.Fatalf("loadWorld: %v", err)
	}
	if !db.Director(1) || !db.HasPower(1, gamedb.PowPrivWho) || !db.Connected(1) {
		t.Error("wizard lost powers or connection")
	}
	if db.Type(30) != gamedb.TypeThing || db.Owner(30) != 1 {
		t.Errorf("widget = %s owned by %s", db.Type(30), db.Owner(30))
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("objects:\n  - dbref: 2\n    powers: [flying]\n"), 0o644)
	if _, err := loadWorld(bad); err == nil {
		t.Error("unknown power accepted")
	}
}

func TestAddPlaceholders(t *testing.T) {
	db := gamedb.NewDatabase()
	db.Add(gamedb.Object{DBRef: 1, Name: "Wizard", Type: gamedb.TypePlayer})
	records := []gamedb.ChannelRecord{
		{Name: "Public", Flags: gamedb.ChanPlayer, Creator: 1, Proxy: 40,
			Members: []gamedb.MemberRecord{{Who: 1}, {Who: 10}}},
		{Name: "Bots", Flags: gamedb.ChanObject, Creator: 10, Proxy: gamedb.Nothing,
			Members: []gamedb.MemberRecord{{Who: 31}}},
	}
	if n := addPlaceholders(db, records); n != 3 {
		t.Errorf("added %d placeholders, want 3", n)
	}
	if db.Name(1) != "Wizard" {
		t.Error("existing object replaced")
	}
	if db.Type(10) != gamedb.TypePlayer || db.Type(31) != gamedb.TypeThing || db.Type(40) != gamedb.TypeThing {
		t.Errorf("types = %s %s %s", db.Type(10), db.Type(31), db.Type(40))
	}
	if db.Owner(40) != 1 {
		t.Errorf("proxy owner = %s", db.Owner(40))
	}
}

func TestConsole(t *testing.T) {
	world := gamedb.NewDatabase()
	world.Add(gamedb.Object{DBRef: 1, Name: "Wizard", Type: gamedb.TypePlayer, Powers: gamedb.PowDirector, Connected: true})
	conf := server.DefaultChatConf()
	conf.ChannelCost = 0
	srv, err := server.New(conf, world)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	var out bytes.Buffer
	runConsole(srv, 1, strings.NewReader("@channel/add Public\n\nlook\n"), &out)
	want := "CHAT: Channel <Public> created.\nHuh?  (Type \"help\" for help.)\n"
	if out.String() != want {
		t.Errorf("console output = %q, want %q", out.String(), want)
	}
	if _, err := findChannel(srv, "pub"); err != nil {
		t.Errorf("findChannel: %v", err)
	}
	if _, err := findChannel(srv, "nope"); err == nil {
		t.Error("findChannel matched nope")
	}
}
