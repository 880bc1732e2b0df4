package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// worldFile is the YAML description of the objects a chat database refers to.
//
//	objects:
//	  - dbref: 1
//	    name: Wizard
//	    powers: [director]
//	    connected: true
//	  - dbref: 30
//	    name: Widget
//	    type: thing
//	    owner: 1
type worldFile struct {
	Objects []worldObject `yaml:"objects"`
}

type worldObject struct {
	DBRef     int               `yaml:"dbref"`
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"` // player (default), thing, room, exit
	Owner     int               `yaml:"owner"`
	Pennies   int               `yaml:"pennies"`
	Powers    []string          `yaml:"powers"`
	Connected bool              `yaml:"connected"`
	Hidden    bool              `yaml:"hidden"`
	Dark      bool              `yaml:"dark"`
	Attrs     map[string]string `yaml:"attrs"`
}

var typeNames = map[string]gamedb.ObjectType{
	"":       gamedb.TypePlayer,
	"player": gamedb.TypePlayer,
	"thing":  gamedb.TypeThing,
	"room":   gamedb.TypeRoom,
	"exit":   gamedb.TypeExit,
}

// loadWorld reads a world file into a fresh database.
func loadWorld(path string) (*gamedb.Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var wf worldFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}

	db := gamedb.NewDatabase()
	for i, wo := range wf.Objects {
		typ, ok := typeNames[strings.ToLower(wo.Type)]
		if !ok {
			return nil, fmt.Errorf("%s: object %d: unknown type %q", path, i, wo.Type)
		}
		var powers gamedb.Power
		for _, name := range wo.Powers {
			p, ok := gamedb.PowerByName(name)
			if !ok {
				return nil, fmt.Errorf("%s: object #%d: unknown power %q", path, wo.DBRef, name)
			}
			powers |= p
		}
		name := wo.Name
		if name == "" {
			name = fmt.Sprintf("Object%d", wo.DBRef)
		}
		db.Add(gamedb.Object{
			DBRef:     gamedb.DBRef(wo.DBRef),
			Name:      name,
			Type:      typ,
			Owner:     gamedb.DBRef(wo.Owner),
			Pennies:   wo.Pennies,
			Powers:    powers,
			Connected: wo.Connected,
			Hidden:    wo.Hidden,
			Dark:      wo.Dark,
			Attrs:     wo.Attrs,
		})
	}
	return db, nil
}

// addPlaceholders invents an object for every reference in records that db
// does not hold, so that inspecting a chat database without its world keeps
// every member. Members become players unless their channel only admits
// objects; proxies become things owned by the channel's creator.
func addPlaceholders(db *gamedb.Database, records []gamedb.ChannelRecord) int {
	added := 0
	add := func(ref gamedb.DBRef, typ gamedb.ObjectType, owner gamedb.DBRef) {
		if ref < 0 || db.Valid(ref) {
			return
		}
		prefix := "Player"
		if typ == gamedb.TypeThing {
			prefix = "Thing"
		}
		db.Add(gamedb.Object{
			DBRef: ref,
			Name:  fmt.Sprintf("%s%d", prefix, int(ref)),
			Type:  typ,
			Owner: owner,
		})
		added++
	}

	for _, rec := range records {
		add(rec.Creator, gamedb.TypePlayer, gamedb.Nothing)
		add(rec.Proxy, gamedb.TypeThing, rec.Creator)
		memberType := gamedb.TypePlayer
		if rec.Flags&gamedb.ChanPlayer == 0 && rec.Flags&gamedb.ChanObject != 0 {
			memberType = gamedb.TypeThing
		}
		for _, m := range rec.Members {
			add(m.Who, memberType, rec.Creator)
		}
	}
	return added
}
