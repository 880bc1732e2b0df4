package comsys

import (
	"errors"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// cmdChat handles "@chat name=message".
func cmdChat(cs *Commands, actor gamedb.DBRef, args string, _ []string) {
	name, msg, _ := strings.Cut(args, "=")
	name = strings.TrimSpace(name)
	if strings.TrimSpace(msg) == "" {
		cs.send(actor, "Don't you have anything to say?")
		return
	}
	// Prefer channels actor is on, then any channel actor can see.
	kind, ch := cs.reg.Resolve(name, actor, chat.ModeMember)
	switch kind {
	case chat.MatchAmbiguous:
		cs.send(actor, "CHAT: I don't know which channel you mean.")
		cs.partialMatches(actor, name, chat.ModeMember)
		return
	case chat.MatchNone:
		kind, ch = cs.reg.Resolve(name, actor, chat.ModeAny)
		switch kind {
		case chat.MatchNone:
			cs.send(actor, "CHAT: No such channel.")
			return
		case chat.MatchAmbiguous:
			cs.send(actor, "CHAT: I don't know which channel you mean.")
			cs.partialMatches(actor, name, chat.ModeAny)
			return
		}
	}
	cs.speak(actor, ch, strings.TrimLeft(msg, " "))
}

// chatShortcut handles "+name message". Lines naming no channel actor is
// on are left for other commands.
func (cs *Commands) chatShortcut(actor gamedb.DBRef, line string) bool {
	name, msg, _ := strings.Cut(line, " ")
	if name == "" {
		return false
	}
	kind, ch := cs.reg.Resolve(name, actor, chat.ModeMember)
	switch kind {
	case chat.MatchNone:
		return false
	case chat.MatchAmbiguous:
		cs.send(actor, "CHAT: I don't know which channel you mean.")
		cs.partialMatches(actor, name, chat.ModeMember)
		return true
	}
	cs.speak(actor, ch, strings.TrimLeft(msg, " "))
	return true
}

func (cs *Commands) speak(actor gamedb.DBRef, ch *chat.Channel, msg string) {
	_, err := cs.reg.Speak(ch, actor, msg)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrWrongType):
		cs.sendf(actor, "Sorry, you're not the right type to be on channel <%s>.", ch.Name())
	case errors.Is(err, chat.ErrPermission):
		if cs.reg.CanSee(ch, actor) {
			cs.sendf(actor, "Sorry, you're not allowed to speak on channel <%s>.", ch.Name())
		} else {
			cs.send(actor, "No such channel.")
		}
	case errors.Is(err, chat.ErrNotMember):
		cs.send(actor, "You must be on that channel to speak on it.")
	case errors.Is(err, chat.ErrEmptyMessage):
		cs.send(actor, "What do you want to say to that channel?")
	default:
		cs.send(actor, err.Error())
	}
}

// cmdCemit handles "@cemit[/noisy][/spoof] name=message". The
// message goes out without the channel label unless /noisy is given.
func cmdCemit(cs *Commands, actor gamedb.DBRef, args string, switches []string) {
	cs.cemit(actor, args, switches, hasSwitch(switches, "spoof"))
}

// cmdNsCemit is @cemit with the emitter left off the recall buffer.
func cmdNsCemit(cs *Commands, actor gamedb.DBRef, args string, switches []string) {
	cs.cemit(actor, args, switches, true)
}

func (cs *Commands) cemit(actor gamedb.DBRef, args string, switches []string, spoof bool) {
	name, msg, _ := strings.Cut(args, "=")
	name = strings.TrimSpace(name)
	msg = strings.TrimLeft(msg, " ")
	if name == "" {
		cs.send(actor, "That is not a valid channel.")
		return
	}
	kind, ch := cs.reg.Resolve(name, actor, chat.ModeAny)
	switch kind {
	case chat.MatchNone:
		cs.send(actor, "I don't recognize that channel.")
		return
	case chat.MatchAmbiguous:
		cs.send(actor, "I don't know which channel you mean.")
		cs.partialMatches(actor, name, chat.ModeAny)
		return
	}
	if !cs.reg.CanSee(ch, actor) {
		cs.send(actor, "CHAT: I don't recognize that channel.")
		return
	}
	silent := !hasSwitch(switches, "noisy")
	_, err := cs.reg.Cemit(ch, actor, msg, silent, spoof)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrWrongType):
		cs.sendf(actor, "Sorry, you're not the right type to be on channel <%s>.", ch.Name())
	case errors.Is(err, chat.ErrNoCemit), errors.Is(err, chat.ErrPermission):
		cs.sendf(actor, "Sorry, you're not allowed to @cemit on channel <%s>.", ch.Name())
	case errors.Is(err, chat.ErrNotMember):
		cs.send(actor, "You must be on that channel to speak on it.")
	case errors.Is(err, chat.ErrEmptyMessage):
		cs.send(actor, "What do you want to emit?")
	default:
		cs.send(actor, err.Error())
	}
}
