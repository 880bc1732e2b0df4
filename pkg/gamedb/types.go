package gamedb

import (
	"strconv"
	"strings"
)

// DBRef is the stable integer reference for any world object.
type DBRef int

const (
	Nothing   DBRef = -1
	Ambiguous DBRef = -2
)

// String renders the reference in #n form.
func (r DBRef) String() string {
	return "#" + strconv.Itoa(int(r))
}

// ParseDBRef parses "#12" or "12". Leading/trailing space is ignored.
func ParseDBRef(s string) (DBRef, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	if s == "" {
		return Nothing, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Nothing, false
	}
	return DBRef(n), true
}

// ObjectType represents the type of a world object.
type ObjectType int

const (
	TypeRoom    ObjectType = 0
	TypeThing   ObjectType = 1
	TypeExit    ObjectType = 2
	TypePlayer  ObjectType = 3
	TypeGarbage ObjectType = 5
)

func (t ObjectType) String() string {
	switch t {
	case TypeRoom:
		return "ROOM"
	case TypeThing:
		return "THING"
	case TypeExit:
		return "EXIT"
	case TypePlayer:
		return "PLAYER"
	case TypeGarbage:
		return "GARBAGE"
	default:
		return "UNKNOWN"
	}
}

// Power is a bitset of privileges relevant to the chat system.
type Power uint32

const (
	PowDirector Power = 1 << iota // director-equivalent (top administrator)
	PowAdmin                      // admin-equivalent
	PowChat                       // override admin-only channel restrictions
	PowSeeAll                     // see every channel and decompile any
	PowCanHide                    // may hide on any channel
	PowPrivWho                    // sees hidden channel members
	PowGuest                      // restricted guest character
	PowNospoof                    // wants speaker tags on recall output
)

var powerNames = []struct {
	Name string
	Pow  Power
}{
	{"Director", PowDirector},
	{"Admin", PowAdmin},
	{"Chat", PowChat},
	{"See_All", PowSeeAll},
	{"Can_Hide", PowCanHide},
	{"Priv_Who", PowPrivWho},
	{"Guest", PowGuest},
	{"Nospoof", PowNospoof},
}

// PowerByName looks up a power by case-insensitive name.
func PowerByName(name string) (Power, bool) {
	for _, p := range powerNames {
		if strings.EqualFold(p.Name, name) {
			return p.Pow, true
		}
	}
	return 0, false
}

func (p Power) String() string {
	var parts []string
	for _, pn := range powerNames {
		if p&pn.Pow != 0 {
			parts = append(parts, pn.Name)
		}
	}
	return strings.Join(parts, " ")
}

// Object is a world object as seen by the chat system.
type Object struct {
	DBRef     DBRef
	Name      string
	Type      ObjectType
	Owner     DBRef
	Pennies   int
	Powers    Power
	Connected bool
	Hidden    bool // hidden from the WHO list
	Dark      bool
	Attrs     map[string]string
}
