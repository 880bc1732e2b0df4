// Package comsys is the user-facing command layer of the chat system. It
// parses @channel, @chat, @cemit, @clock and @cobj command lines, calls
// into the chat registry and reports the outcome to the invoking player.
package comsys

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// ChatToken starts the "+channel message" shortcut.
const ChatToken = '+'

// World is the object lookup the commands need on top of chat.World.
type World interface {
	chat.World
	LookupPlayer(name string) gamedb.DBRef
	Match(name string) gamedb.DBRef
	Controls(actor, target gamedb.DBRef) bool
}

// Notifier sends a line of text to one player.
type Notifier interface {
	Notify(to gamedb.DBRef, text string)
}

// Handler is the signature for command implementations.
type Handler func(cs *Commands, actor gamedb.DBRef, args string, switches []string)

// Commands dispatches chat command lines.
type Commands struct {
	reg   *chat.Registry
	world World
	out   Notifier
	table map[string]Handler

	// OnRename, if set, is called after a channel is renamed.
	OnRename func(oldName, newName string)
}

// New creates the command layer for reg.
func New(reg *chat.Registry, world World, out Notifier) *Commands {
	cs := &Commands{reg: reg, world: world, out: out, table: make(map[string]Handler)}

	register := func(name string, h Handler) {
		cs.table[strings.ToLower(name)] = h
	}
	register("@channel", cmdChannel)
	register("@chat", cmdChat)
	register("@cemit", cmdCemit)
	register("@nscemit", cmdNsCemit)
	register("@clock", cmdClock)
	register("@cobj", cmdCobj)
	return cs
}

// Run executes one command line for actor. It reports false when the line
// is not a chat command, so the caller can try other handlers.
func (cs *Commands) Run(actor gamedb.DBRef, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if line[0] == ChatToken {
		return cs.chatShortcut(actor, line[1:])
	}

	var name, args string
	if i := strings.IndexByte(line, ' '); i >= 0 {
		name = line[:i]
		args = strings.TrimSpace(line[i+1:])
	} else {
		name = line
	}

	// "@channel/who" -> "@channel", ["who"]
	var switches []string
	if i := strings.IndexByte(name, '/'); i >= 0 {
		parts := strings.Split(name, "/")
		name = parts[0]
		for _, sw := range parts[1:] {
			switches = append(switches, strings.ToLower(sw))
		}
	}

	h := cs.lookup(strings.ToLower(name))
	if h == nil {
		return false
	}
	h(cs, actor, args, switches)
	return true
}

// lookup finds a command by exact name or unique prefix.
func (cs *Commands) lookup(name string) Handler {
	if h, ok := cs.table[name]; ok {
		return h
	}
	if len(name) < 2 || name[0] != '@' {
		return nil
	}
	var found Handler
	n := 0
	for full, h := range cs.table {
		if strings.HasPrefix(full, name) {
			found = h
			n++
		}
	}
	if n != 1 {
		return nil
	}
	return found
}

func (cs *Commands) send(to gamedb.DBRef, text string) {
	cs.out.Notify(to, text)
}

func (cs *Commands) sendf(to gamedb.DBRef, format string, args ...any) {
	cs.out.Notify(to, fmt.Sprintf(format, args...))
}

// findChannel resolves name among every channel actor can see and reports
// a failed or ambiguous match to actor.
func (cs *Commands) findChannel(actor gamedb.DBRef, name string) *chat.Channel {
	kind, ch := cs.reg.Resolve(name, actor, chat.ModeAny)
	switch kind {
	case chat.MatchNone:
		cs.send(actor, "CHAT: I don't recognize that channel.")
		return nil
	case chat.MatchAmbiguous:
		cs.send(actor, "CHAT: I don't know which channel you mean.")
		cs.partialMatches(actor, name, chat.ModeAny)
		return nil
	}
	return ch
}

func (cs *Commands) partialMatches(actor gamedb.DBRef, name string, mode chat.Mode) {
	if name == "" {
		return
	}
	var b strings.Builder
	b.WriteString("CHAT: Partial matches are:")
	for _, n := range cs.reg.PartialMatches(name, actor, mode) {
		b.WriteByte(' ')
		b.WriteString(n)
	}
	cs.send(actor, b.String())
}

func (cs *Commands) guest(p gamedb.DBRef) bool {
	return cs.world.HasPower(p, gamedb.PowGuest)
}

// splitEq splits "left=right" and trims both halves.
func splitEq(args string) (string, string) {
	left, right, _ := strings.Cut(args, "=")
	return strings.TrimSpace(left), strings.TrimSpace(right)
}

// yesno reads y/yes/on as true and n/no/off as false. Anything else,
// including nothing, counts as yes.
func yesno(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "n"), strings.HasPrefix(s, "of"):
		return false
	}
	return true
}

func hasSwitch(switches []string, name string) bool {
	for _, sw := range switches {
		if sw == name {
			return true
		}
	}
	return false
}

// cmdChannel handles "@channel[/switch] name[=arg]".
func cmdChannel(cs *Commands, actor gamedb.DBRef, args string, switches []string) {
	name, arg := splitEq(args)
	sw := ""
	if len(switches) > 0 {
		sw = switches[0]
	}
	switch sw {
	case "":
		cs.channelAction(actor, name, "", arg)
	case "list":
		cs.list(actor, name)
	case "what":
		cs.what(actor, name)
	case "add":
		cs.add(actor, name, arg)
	case "delete":
		cs.remove(actor, name)
	case "name", "rename":
		cs.rename(actor, name, arg)
	case "privs", "priv":
		cs.privs(actor, name, arg)
	case "recall":
		cs.recall(actor, name, arg, hasSwitch(switches, "quiet"))
	case "decompile":
		cs.decompile(actor, name, hasSwitch(switches, "brief"))
	case "describe", "desc":
		cs.describe(actor, name, arg)
	case "title":
		cs.title(actor, name, arg)
	case "chown":
		cs.chown(actor, name, arg)
	case "wipe":
		cs.wipe(actor, name)
	case "mute":
		cs.userFlag(actor, name, arg, gamedb.MemberQuiet)
	case "unmute":
		cs.userFlag(actor, name, "n", gamedb.MemberQuiet)
	case "hide":
		cs.userFlag(actor, name, arg, gamedb.MemberHide)
	case "unhide":
		cs.userFlag(actor, name, "n", gamedb.MemberHide)
	case "gag":
		cs.userFlag(actor, name, arg, gamedb.MemberGag)
	case "ungag":
		cs.userFlag(actor, name, "n", gamedb.MemberGag)
	case "buffer":
		cs.buffer(actor, name, arg)
	default:
		cs.channelAction(actor, name, arg, sw)
	}
}
