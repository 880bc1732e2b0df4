package comsys

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
	"github.com/crystal-mush/mushchat/pkg/lock"
	"github.com/crystal-mush/mushchat/pkg/recall"
)

// add handles "@channel/add name[=privs]".
func (cs *Commands) add(actor gamedb.DBRef, name, perms string) {
	if name == "" {
		cs.send(actor, "You must specify a channel.")
		return
	}
	if cs.guest(actor) {
		cs.send(actor, "Guests may not modify channels.")
		return
	}
	flags := 0
	if perms != "" {
		flags = chat.ParsePrivs(chat.ChannelPrivs, perms, 0)
	}
	ch, err := cs.reg.Create(name, actor, flags)
	switch {
	case errors.Is(err, chat.ErrTooMany):
		cs.send(actor, "No more room for channels.")
	case errors.Is(err, chat.ErrNameTooLong):
		cs.send(actor, "The channel needs a shorter name.")
	case errors.Is(err, chat.ErrInvalidName):
		cs.send(actor, "Invalid name for a channel.")
	case errors.Is(err, chat.ErrTooManyForCreator):
		cs.send(actor, "You already own too many channels.")
	case errors.Is(err, chat.ErrDuplicateName):
		cs.send(actor, "CHAT: The channel needs a more unique name.")
	case errors.Is(err, chat.ErrPermission):
		cs.send(actor, "You can't create channels of that type.")
	case errors.Is(err, chat.ErrCobjType):
		cs.send(actor, "CHAT: Channels can not be created with chanobj type.")
	case errors.Is(err, chat.ErrInsufficientFunds):
		cs.sendf(actor, "You can't afford the %d pennies.", cs.reg.Options().Cost)
	case err != nil:
		cs.send(actor, err.Error())
	default:
		if ch.Has(gamedb.ChanDisabled) {
			cs.send(actor, "Warning: channel will be created disabled.")
		}
		cs.sendf(actor, "CHAT: Channel <%s> created.", ch.Name())
	}
}

// remove handles "@channel/delete name".
func (cs *Commands) remove(actor gamedb.DBRef, name string) {
	if name == "" {
		cs.send(actor, "You must specify a channel.")
		return
	}
	if cs.guest(actor) {
		cs.send(actor, "Guests may not modify channels.")
		return
	}
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !cs.reg.CanNuke(ch, actor) {
		cs.send(actor, "Permission denied.")
		return
	}
	if err := cs.reg.Delete(ch, actor); err != nil {
		cs.send(actor, "CHAT: I don't recognize that channel.")
		return
	}
	cs.send(actor, "Channel removed.")
}

// rename handles "@channel/rename name=newname".
func (cs *Commands) rename(actor gamedb.DBRef, name, newName string) {
	if name == "" {
		cs.send(actor, "You must specify a channel.")
		return
	}
	if cs.guest(actor) {
		cs.send(actor, "Guests may not modify channels.")
		return
	}
	if newName == "" {
		cs.send(actor, "What do you want to do with the channel?")
		return
	}
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !cs.reg.CanModify(ch, actor) {
		cs.send(actor, "Permission denied.")
		return
	}
	old := ch.Name()
	err := cs.reg.Rename(ch, newName)
	switch {
	case errors.Is(err, chat.ErrDuplicateName):
		cs.send(actor, "The channel needs a more unique new name.")
		return
	case errors.Is(err, chat.ErrNameTooLong):
		cs.send(actor, "That name is too long.")
		return
	case errors.Is(err, chat.ErrInvalidName):
		cs.send(actor, "Invalid name for a channel.")
		return
	case err != nil:
		cs.send(actor, "CHAT: I don't recognize that channel.")
		return
	}
	if cs.OnRename != nil {
		cs.OnRename(old, ch.Name())
	}
	cs.reg.Broadcast(ch, actor, fmt.Sprintf("<%s> %s has renamed channel %s to %s.",
		ch.Name(), cs.world.Name(actor), old, ch.Name()), 0)
	cs.send(actor, "Channel renamed.")
}

// privs handles "@channel/privs name=privs".
func (cs *Commands) privs(actor gamedb.DBRef, name, perms string) {
	if name == "" {
		cs.send(actor, "You must specify a channel.")
		return
	}
	if cs.guest(actor) {
		cs.send(actor, "Guests may not modify channels.")
		return
	}
	if perms == "" {
		cs.send(actor, "What do you want to do with the channel?")
		return
	}
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !cs.reg.CanModify(ch, actor) {
		cs.send(actor, "Permission denied.")
		return
	}
	cur := ch.Flags()
	flags := chat.ParsePrivs(chat.ChannelPrivs, perms, cur)
	if !cs.reg.CanSetPrivs(actor, flags, cur) {
		cs.send(actor, "You can't make channels that type.")
		return
	}
	if flags&gamedb.ChanDisabled != 0 {
		cs.send(actor, "Warning: channel will be disabled.")
	}
	if flags == cur {
		cs.sendf(actor, "Invalid or same permissions on channel <%s>. No changes made.", ch.Name())
		return
	}
	ch.SetFlags(flags)
	cs.sendf(actor, "Permissions on channel <%s> changed.", ch.Name())
}

// chown handles "@channel/chown name=player".
func (cs *Commands) chown(actor gamedb.DBRef, name, newOwner string) {
	if !cs.world.Director(actor) {
		cs.send(actor, "CHAT: Only a Director can do that.")
		return
	}
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	victim := gamedb.Nothing
	if newOwner != "" {
		victim = cs.world.LookupPlayer(newOwner)
	}
	if victim == gamedb.Nothing {
		cs.send(actor, "CHAT: Invalid owner.")
		return
	}
	cs.reg.Chown(ch, victim)
	cs.sendf(actor, "CHAT: Channel <%s> now owned by %s.", ch.Name(), cs.world.Name(ch.Creator()))
}

// wipe handles "@channel/wipe name".
func (cs *Commands) wipe(actor gamedb.DBRef, name string) {
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	cs.wipeChannel(actor, ch)
}

func (cs *Commands) wipeChannel(actor gamedb.DBRef, ch *chat.Channel) {
	if !cs.reg.CanModify(ch, actor) {
		cs.send(actor, "CHAT: Wipe that silly grin off your face instead.")
		return
	}
	cs.reg.Wipe(ch, actor)
	cs.sendf(actor, "CHAT: Channel <%s> wiped.", ch.Name())
}

// describe handles "@channel/desc name=text".
func (cs *Commands) describe(actor gamedb.DBRef, name, desc string) {
	if len(desc) > chat.MaxDescLen {
		cs.send(actor, "CHAT: New description too long.")
		return
	}
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !cs.reg.CanModify(ch, actor) {
		cs.send(actor, "CHAT: Yeah, right.")
		return
	}
	if err := ch.SetDescription(desc); err != nil {
		cs.send(actor, "CHAT: New description too long.")
		return
	}
	if desc == "" {
		cs.sendf(actor, "CHAT: Channel <%s> description cleared.", ch.Name())
		return
	}
	cs.sendf(actor, "CHAT: Channel <%s> description set.", ch.Name())
}

// buffer handles "@channel/buffer name=lines".
func (cs *Commands) buffer(actor gamedb.DBRef, name, lines string) {
	if name == "" {
		cs.send(actor, "You need to specify a channel.")
		return
	}
	size, err := strconv.Atoi(lines)
	if err != nil {
		cs.send(actor, "You need to specify the number of lines to buffer.")
		return
	}
	if size < 0 || size > recall.MaxLines {
		cs.send(actor, "Invalid buffer size.")
		return
	}
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !cs.reg.CanModify(ch, actor) {
		cs.send(actor, "Permission denied.")
		return
	}
	had := ch.BufferLines() > 0
	if err := ch.SetBuffer(size); err != nil {
		cs.send(actor, "Invalid buffer size.")
		return
	}
	switch {
	case size == 0 && had:
		cs.sendf(actor, "CHAT: Channel buffering disabled for channel <%s>.", ch.Name())
	case size == 0:
		cs.sendf(actor, "CHAT: Channel buffering already disabled for channel <%s>.", ch.Name())
	case had:
		cs.sendf(actor, "CHAT: Resizing buffer of channel <%s>", ch.Name())
	default:
		cs.sendf(actor, "CHAT: Buffering enabled on channel <%s>.", ch.Name())
	}
}

var lockTitles = [gamedb.NumLocks]string{
	gamedb.LockJoin:   "Joinlock",
	gamedb.LockSpeak:  "Speaklock",
	gamedb.LockModify: "Modlock",
	gamedb.LockSee:    "Seelock",
	gamedb.LockHide:   "Hidelock",
}

// cmdClock handles "@clock/<kind> name[=key]". An empty key unlocks.
func cmdClock(cs *Commands, actor gamedb.DBRef, args string, switches []string) {
	var kind gamedb.LockKind
	found := false
	for _, sw := range switches {
		if k, ok := gamedb.LockKindByName(sw); ok {
			kind, found = k, true
			break
		}
	}
	if !found {
		cs.send(actor, "You must specify a type of lock")
		return
	}
	name, key := splitEq(args)
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !cs.reg.CanModify(ch, actor) {
		cs.sendf(actor, "CHAT: Channel %s resists.", cs.reg.Label(ch))
		return
	}
	if key == "" {
		ch.SetPolicy(kind, "")
		cs.sendf(actor, "CHAT: %s on <%s> reset.", lockTitles[kind], ch.Name())
		return
	}
	canon, err := lock.Canonical(key)
	if err != nil {
		cs.send(actor, "CHAT: I don't understand that key.")
		return
	}
	ch.SetPolicy(kind, canon)
	cs.sendf(actor, "CHAT: %s on <%s> set.", lockTitles[kind], ch.Name())
}

// cmdCobj handles "@cobj name=object" and "@cobj/reset name".
func cmdCobj(cs *Commands, actor gamedb.DBRef, args string, switches []string) {
	name, obj := splitEq(args)
	ch := cs.findChannel(actor, name)
	if ch == nil {
		return
	}
	if !cs.reg.CanModify(ch, actor) {
		cs.send(actor, "CHAT: Oh come on.")
		return
	}
	if hasSwitch(switches, "reset") {
		ch.ResetProxy()
		cs.send(actor, "ChanObj Reset.")
		return
	}
	proxy := cs.world.Match(obj)
	switch {
	case proxy == gamedb.Ambiguous:
		cs.send(actor, "Ambiguous Object")
		return
	case proxy < 0 || obj == "":
		cs.send(actor, "Invalid Object")
		return
	case !cs.world.Controls(actor, proxy):
		cs.send(actor, "You must own that object first")
		return
	case cs.world.Type(proxy) != gamedb.TypeThing:
		cs.send(actor, "Must be an object")
		return
	}
	ch.SetProxy(proxy)
	cs.sendf(actor, "Channel object for %s is now %s", ch.Name(), proxy)
}
