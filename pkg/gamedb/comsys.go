package gamedb

// ChannelRecord is the persisted form of a chat channel.
// Policies are stored as canonical lock text; "" means always true.
type ChannelRecord struct {
	Name        string
	Description string
	Flags       int
	Creator     DBRef
	Proxy       DBRef
	Cost        int
	NumMessages int
	Buffer      int // recall capacity in lines, 0 when absent
	Locks       [NumLocks]string
	Members     []MemberRecord
}

// MemberRecord is the persisted form of one roster entry.
type MemberRecord struct {
	Who   DBRef
	Flags int
	Title string
}

// LockKind selects one of a channel's five policies.
type LockKind int

const (
	LockJoin LockKind = iota
	LockSpeak
	LockModify
	LockSee
	LockHide
	NumLocks
)

var lockLabels = [NumLocks]string{"join", "speak", "modify", "see", "hide"}

// String returns the label used in the chat database and on @clock.
func (k LockKind) String() string {
	if k < 0 || k >= NumLocks {
		return "unknown"
	}
	return lockLabels[k]
}

// LockKindByName maps a lock label (or the @clock switch "mod") to its kind.
func LockKindByName(name string) (LockKind, bool) {
	switch name {
	case "join":
		return LockJoin, true
	case "speak":
		return LockSpeak, true
	case "modify", "mod":
		return LockModify, true
	case "see":
		return LockSee, true
	case "hide":
		return LockHide, true
	}
	return 0, false
}

// Channel type flags.
const (
	ChanPlayer   = 0x1    // players may join
	ChanObject   = 0x2    // objects may join
	ChanDisabled = 0x4    // channel is turned off
	ChanQuiet    = 0x8    // no connect/disconnect broadcasts
	ChanAdmin    = 0x10   // admins only
	ChanDirector = 0x20   // directors only
	ChanCanHide  = 0x40   // members may hide
	ChanOpen     = 0x80   // non-members may speak
	ChanNoTitles = 0x100  // suppress speaker titles
	ChanNoNames  = 0x200  // suppress speaker names
	ChanNoCemit  = 0x400  // disallow @cemit
	ChanCobj     = 0x800  // channel has a proxy object
	ChanInteract = 0x1000 // filter output through interaction rules

	ChanDefaultFlags = ChanPlayer
)

// Member flags.
const (
	MemberQuiet = 0x1 // do not hear connection messages
	MemberHide  = 0x2 // do not appear on the who list
	MemberGag   = 0x4 // do not hear any messages
)
