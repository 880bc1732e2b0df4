package comsys

import (
	"errors"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// channelAction handles on, off, who and wipe, either for actor or for a
// target actor controls.
func (cs *Commands) channelAction(actor gamedb.DBRef, name, target, com string) {
	if name == "" {
		cs.send(actor, "You need to specify a channel.")
		return
	}
	if com == "" {
		cs.send(actor, "What do you want to do with that channel?")
		return
	}
	com = strings.ToLower(com)
	if target == "" {
		switch com {
		case "on", "join":
			cs.joinSelf(actor, name)
			return
		case "off", "leave":
			cs.leaveSelf(actor, name)
			return
		}
	}

	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !cs.reg.CanSee(ch, actor) {
		if ch.IsMember(actor) {
			cs.sendf(actor, "CHAT: You can't do that with channel <%s>.", ch.Name())
		} else {
			cs.send(actor, "CHAT: I don't recognize that channel.")
		}
		return
	}
	switch com {
	case "who":
		cs.who(actor, ch)
		return
	case "wipe":
		cs.wipeChannel(actor, ch)
		return
	}

	if target == "" {
		cs.send(actor, "I don't understand what you want to do.")
		return
	}
	victim := cs.world.LookupPlayer(target)
	if victim == gamedb.Nothing && ch.Has(gamedb.ChanObject) {
		victim = cs.world.Match(target)
		if cs.world.Type(victim) != gamedb.TypeThing {
			victim = gamedb.Nothing
		}
	}
	if victim < 0 || !cs.world.Valid(victim) {
		cs.send(actor, "Invalid target.")
		return
	}

	switch com {
	case "on", "join":
		cs.joinOther(actor, ch, victim)
	case "off", "leave":
		cs.leaveOther(actor, ch, victim)
	default:
		cs.send(actor, "I don't understand what you want to do.")
	}
}

// mayJoin applies the join check for p, letting a director actor override
// a failed policy with a warning when the registry allows it.
func (cs *Commands) mayJoin(actor gamedb.DBRef, ch *chat.Channel, p gamedb.DBRef, warning string) bool {
	if cs.reg.CanJoin(ch, p) == chat.JoinAllowed {
		return true
	}
	if cs.world.Director(actor) && cs.reg.Options().Override == chat.OverrideWarn {
		cs.send(actor, warning)
		return true
	}
	cs.send(actor, "Permission to join denied.")
	return false
}

func (cs *Commands) joinOther(actor gamedb.DBRef, ch *chat.Channel, victim gamedb.DBRef) {
	if !cs.reg.OkType(ch, victim) {
		cs.sendf(actor, "Sorry, wrong type of thing for channel <%s>.", ch.Name())
		return
	}
	if cs.guest(actor) {
		cs.send(actor, "Guests are not allowed to join channels.")
		return
	}
	if !cs.world.Controls(actor, victim) {
		cs.send(actor, "Invalid target.")
		return
	}
	if ch.IsMember(victim) {
		cs.sendf(actor, "%s is already on channel <%s>.", cs.world.Name(victim), ch.Name())
		return
	}
	if !cs.mayJoin(actor, ch, victim, "CHAT: Warning: Target does not meet channel join permissions (joining anyway)") {
		return
	}
	if !cs.reg.Join(ch, victim, 0) {
		cs.sendf(actor, "%s is already on channel <%s>.", cs.world.Name(victim), ch.Name())
		return
	}
	cs.sendf(victim, "CHAT: %s joins you to channel <%s>.", cs.world.Name(actor), ch.Name())
	cs.sendf(actor, "CHAT: You join %s to channel <%s>.", cs.world.Name(victim), ch.Name())
	cs.reg.AnnounceJoin(ch, victim)
}

func (cs *Commands) leaveOther(actor gamedb.DBRef, ch *chat.Channel, victim gamedb.DBRef) {
	if !cs.world.Controls(actor, victim) && !cs.reg.CanModify(ch, actor) {
		cs.send(actor, "Invalid target.")
		return
	}
	if cs.guest(actor) {
		cs.send(actor, "Guests may not leave channels.")
		return
	}
	m, ok := cs.reg.LeaveEntry(ch, victim)
	if !ok {
		cs.sendf(actor, "%s is not on channel <%s>.", cs.world.Name(victim), ch.Name())
		return
	}
	cs.reg.AnnounceLeave(ch, m)
	cs.sendf(victim, "CHAT: %s removes you from channel <%s>.", cs.world.Name(actor), ch.Name())
	cs.sendf(actor, "CHAT: You remove %s from channel <%s>.", cs.world.Name(victim), ch.Name())
}

func (cs *Commands) joinSelf(actor gamedb.DBRef, name string) {
	if cs.guest(actor) {
		cs.send(actor, "Guests are not allowed to join channels.")
		return
	}
	kind, ch := cs.reg.Resolve(name, actor, chat.ModeNonMember)
	switch kind {
	case chat.MatchNone:
		if k, on := cs.reg.Resolve(name, actor, chat.ModeMember); k != chat.MatchNone {
			cs.sendf(actor, "CHAT: You are already on channel <%s>", on.Name())
		} else {
			cs.send(actor, "CHAT: I don't recognize that channel.")
		}
		return
	case chat.MatchAmbiguous:
		cs.send(actor, "CHAT: I don't know which channel you mean.")
		cs.partialMatches(actor, name, chat.ModeNonMember)
		return
	}
	if !cs.reg.CanSee(ch, actor) {
		cs.send(actor, "CHAT: I don't recognize that channel.")
		return
	}
	if !cs.reg.OkType(ch, actor) {
		cs.sendf(actor, "Sorry, wrong type of thing for channel <%s>.", ch.Name())
		return
	}
	if !cs.mayJoin(actor, ch, actor, "CHAT: Warning: You don't meet channel join permissions (joining anyway)") {
		return
	}
	if !cs.reg.Join(ch, actor, 0) {
		cs.sendf(actor, "%s is already on channel <%s>.", cs.world.Name(actor), ch.Name())
		return
	}
	cs.sendf(actor, "CHAT: You join channel %s.", cs.reg.Label(ch))
	cs.reg.AnnounceJoin(ch, actor)
}

func (cs *Commands) leaveSelf(actor gamedb.DBRef, name string) {
	if cs.guest(actor) {
		cs.send(actor, "Guests are not allowed to leave channels.")
		return
	}
	kind, ch := cs.reg.Resolve(name, actor, chat.ModeMember)
	switch kind {
	case chat.MatchNone:
		if k, off := cs.reg.Resolve(name, actor, chat.ModeNonMember); k != chat.MatchNone && cs.reg.CanSee(off, actor) {
			cs.sendf(actor, "CHAT: You are not on channel <%s>", off.Name())
		} else {
			cs.send(actor, "CHAT: I don't recognize that channel.")
		}
		return
	case chat.MatchAmbiguous:
		cs.send(actor, "CHAT: I don't know which channel you mean.")
		cs.partialMatches(actor, name, chat.ModeMember)
		return
	}
	m, ok := cs.reg.LeaveEntry(ch, actor)
	if !ok {
		cs.sendf(actor, "CHAT: You are not on channel <%s>", ch.Name())
		return
	}
	cs.reg.AnnounceLeave(ch, m)
	cs.sendf(actor, "CHAT: You leave channel <%s>.", ch.Name())
}

// userFlag handles the mute, hide and gag switches. With no channel name
// the setting applies to every channel actor is on.
func (cs *Commands) userFlag(actor gamedb.DBRef, name, yn string, flag int) {
	on := yesno(yn)
	if name == "" {
		chans := cs.reg.ChannelsOf(actor)
		if len(chans) == 0 {
			cs.send(actor, "You are not on any channels.")
			return
		}
		cs.send(actor, allChannelsText(flag, on))
		for _, ch := range chans {
			if flag == gamedb.MemberHide && on && !cs.mayHide(actor, ch) {
				continue
			}
			ch.SetUserFlag(actor, flag, on)
		}
		return
	}

	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !ch.IsMember(actor) {
		cs.sendf(actor, "You are not on channel <%s>.", ch.Name())
		return
	}
	if flag == gamedb.MemberHide && on && !cs.mayHide(actor, ch) {
		cs.sendf(actor, "You are not permitted to hide on channel <%s>.", ch.Name())
		return
	}
	ch.SetUserFlag(actor, flag, on)
	cs.sendf(actor, userFlagText(flag, on), ch.Name())
}

func (cs *Commands) mayHide(actor gamedb.DBRef, ch *chat.Channel) bool {
	return cs.reg.CanHide(ch, actor) || cs.world.Director(actor)
}

func allChannelsText(flag int, on bool) string {
	switch flag {
	case gamedb.MemberQuiet:
		if on {
			return "All channels have been muted."
		}
		return "All channels have been unmuted."
	case gamedb.MemberHide:
		if on {
			return "You hide on all the channels you can."
		}
		return "You unhide on all channels."
	}
	if on {
		return "All channels have been gagged."
	}
	return "All channels have been ungagged."
}

func userFlagText(flag int, on bool) string {
	switch flag {
	case gamedb.MemberQuiet:
		if on {
			return "You will no longer hear connection messages on channel <%s>."
		}
		return "You will now hear connection messages on channel <%s>."
	case gamedb.MemberHide:
		if on {
			return "You no longer appear on channel <%s>'s who list."
		}
		return "You now appear on channel <%s>'s who list."
	}
	if on {
		return "You will no longer hear messages on channel <%s>."
	}
	return "You will now hear messages on channel <%s>."
}

// title handles "@channel/title name=title".
func (cs *Commands) title(actor gamedb.DBRef, name, title string) {
	if name == "" {
		cs.send(actor, "You must specify a channel.")
		return
	}
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	err := ch.SetTitle(actor, title)
	switch {
	case errors.Is(err, chat.ErrTitleTooLong):
		cs.send(actor, "Title too long.")
		return
	case errors.Is(err, chat.ErrBadTitle):
		cs.send(actor, "Invalid character in title.")
		return
	case errors.Is(err, chat.ErrNotMember):
		cs.sendf(actor, "You are not on channel <%s>.", ch.Name())
		return
	}
	verb := "set"
	if title == "" {
		verb = "cleared"
	}
	note := ""
	if ch.Has(gamedb.ChanNoTitles) {
		note = "(NoTitles) "
	}
	cs.sendf(actor, "Title %s for %schannel %s.", verb, note, cs.reg.Label(ch))
}
