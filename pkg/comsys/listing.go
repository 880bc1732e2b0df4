package comsys

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// recallStamp is the timestamp layout of recalled lines.
const recallStamp = "Mon Jan _2 15:04:05 2006"

// padRight pads s to width terminal cells; markup takes no room.
func padRight(s string, width int) string {
	pad := width - chat.DisplayWidth(s)
	if pad <= 0 {
		return s
	}
	return s + strings.Repeat(" ", pad)
}

func flagChar(on bool, c byte) byte {
	if on {
		return c
	}
	return '-'
}

// list handles "@channel/list [prefix]".
func (cs *Commands) list(actor gamedb.DBRef, prefix string) {
	cs.sendf(actor, "%-30s %-5s %8s %-16s %-8s %-3s", "Name", "Users", "Msgs", "Chan Type", "Status", "Buf")
	for _, ch := range cs.reg.List(actor, prefix) {
		cs.send(actor, cs.listRow(actor, ch))
	}
}

func (cs *Commands) listRow(actor gamedb.DBRef, ch *chat.Channel) string {
	f := ch.Flags()
	has := func(bit int) bool { return f&bit != 0 }
	locked := func(k gamedb.LockKind) bool { return ch.Policy(k) != "" }

	staff := byte('-')
	switch {
	case has(gamedb.ChanAdmin):
		staff = 'A'
	case has(gamedb.ChanDirector):
		staff = 'W'
	}
	status, quiet, hide := "Off", byte(' '), byte(' ')
	if m, ok := ch.Lookup(actor); ok {
		status = "On"
		if m.Gagged() {
			status = "Gag"
		}
		if m.Quiet() {
			quiet = 'Q'
		}
		if m.Flags&gamedb.MemberHide != 0 {
			hide = 'H'
		}
	}
	return padRight(ch.Name(), 30) + fmt.Sprintf(" %5d %8d [%c%c%c%c%c%c%c%c %c%c%c%c%c%c] [%-3s %c%c] %3d",
		ch.NumUsers(), ch.NumMessages(),
		flagChar(has(gamedb.ChanDisabled), 'D'),
		flagChar(has(gamedb.ChanPlayer), 'P'),
		flagChar(has(gamedb.ChanObject), 'O'),
		staff,
		flagChar(has(gamedb.ChanQuiet), 'Q'),
		flagChar(has(gamedb.ChanCanHide), 'H'),
		flagChar(has(gamedb.ChanOpen), 'o'),
		flagChar(has(gamedb.ChanCobj), 'Z'),
		flagChar(locked(gamedb.LockJoin), 'j'),
		flagChar(locked(gamedb.LockSpeak), 's'),
		flagChar(locked(gamedb.LockModify), 'm'),
		flagChar(locked(gamedb.LockSee), 'v'),
		flagChar(locked(gamedb.LockHide), 'h'),
		flagChar(ch.Creator() == actor, '*'),
		status, quiet, hide,
		ch.BufferLines())
}

// what handles "@channel/what [prefix]".
func (cs *Commands) what(actor gamedb.DBRef, prefix string) {
	chans := cs.reg.List(actor, prefix)
	if len(chans) == 0 {
		cs.send(actor, "CHAT: I don't recognize that channel.")
		return
	}
	for _, ch := range chans {
		creator := ch.Creator()
		cs.send(actor, ch.Name())
		cs.sendf(actor, "Description: %s", ch.Description())
		cs.sendf(actor, "Owner: %s", cs.world.Name(creator))
		cs.sendf(actor, "Flags: %s", chat.PrivsString(chat.ChannelPrivs, ch.Flags()))
		if ch.Has(gamedb.ChanCobj) &&
			(actor == creator || cs.world.Director(actor) || cs.world.Controls(actor, cs.world.Owner(creator))) {
			proxy := ch.Proxy()
			cs.sendf(actor, "Channel object: %s(%s)", cs.world.Name(proxy), proxy)
		}
		if n := ch.BufferLines(); n > 0 {
			cs.sendf(actor, "Recall buffer: %dk, can hold %d.", ch.BufferSize()/1024, n)
		}
	}
}

// privWho reports whether actor sees hidden channel members.
func (cs *Commands) privWho(actor gamedb.DBRef) bool {
	return cs.world.Admin(actor) || cs.world.HasPower(actor, gamedb.PowPrivWho)
}

// who lists the connected, visible members of ch.
func (cs *Commands) who(actor gamedb.DBRef, ch *chat.Channel) {
	privWho := cs.privWho(actor)
	var items []string
	for _, m := range ch.Members() {
		thing := cs.world.Type(m.Who) == gamedb.TypeThing
		if !thing && !cs.world.Connected(m.Who) {
			continue
		}
		hidden := m.Flags&gamedb.MemberHide != 0
		if hidden && !privWho {
			continue
		}
		var b strings.Builder
		b.WriteString(cs.world.Name(m.Who))
		if thing {
			fmt.Fprintf(&b, "(%s)", m.Who)
		}
		var status []string
		if hidden {
			status = append(status, "hidden")
		}
		if m.Gagged() {
			status = append(status, "gagging")
		}
		if len(status) > 0 {
			b.WriteString(" (" + strings.Join(status, ",") + ")")
		}
		items = append(items, b.String())
	}
	if len(items) == 0 {
		cs.send(actor, "There are no connected players on that channel.")
		return
	}
	cs.sendf(actor, "Members of channel <%s> are:", ch.Name())
	cs.send(actor, itemize(items))
}

// itemize joins items as "a", "a and b" or "a, b, and c".
func itemize(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
}

// decompile handles "@channel/decompile[/brief] prefix": the commands
// that would recreate each matching channel.
func (cs *Commands) decompile(actor gamedb.DBRef, prefix string, brief bool) {
	clean, _ := chat.StripMarkup(prefix)
	privWho := cs.privWho(actor)
	found := 0
	for _, ch := range cs.reg.Channels() {
		plain := ch.PlainName()
		if len(plain) < len(clean) || !strings.EqualFold(plain[:len(clean)], clean) {
			continue
		}
		found++
		name := ch.Name()
		if !cs.reg.CanDecompile(ch, actor) {
			if cs.reg.CanSee(ch, actor) {
				cs.sendf(actor, "CHAT: No permission to decompile <%s>", name)
			}
			continue
		}
		cs.sendf(actor, "@channel/add %s = %s", name, chat.PrivsString(chat.ChannelPrivs, ch.Flags()))
		cs.sendf(actor, "@channel/chown %s = %s", name, cs.world.Name(ch.Creator()))
		if proxy := ch.Proxy(); proxy != gamedb.Nothing {
			cs.sendf(actor, "@cobj %s=%s", name, proxy)
		}
		for _, l := range []struct {
			sw string
			k  gamedb.LockKind
		}{
			{"mod", gamedb.LockModify},
			{"hide", gamedb.LockHide},
			{"join", gamedb.LockJoin},
			{"speak", gamedb.LockSpeak},
			{"see", gamedb.LockSee},
		} {
			if key := ch.Policy(l.k); key != "" {
				cs.sendf(actor, "@clock/%s %s = %s", l.sw, name, key)
			}
		}
		if desc := ch.Description(); desc != "" {
			cs.sendf(actor, "@channel/desc %s = %s", name, desc)
		}
		if n := ch.BufferLines(); n > 0 {
			cs.sendf(actor, "@channel/buffer %s = %d", name, n)
		}
		if brief {
			continue
		}
		for _, m := range ch.Members() {
			if m.Flags&gamedb.MemberHide == 0 || privWho {
				cs.sendf(actor, "@channel/on %s = %s", name, cs.world.Name(m.Who))
			}
		}
	}
	if found == 0 {
		cs.send(actor, "CHAT: No channel matches that string.")
	}
}

// recall handles "@channel/recall[/quiet] name[=lines[,start]]". Zero
// lines means the whole buffer.
func (cs *Commands) recall(actor gamedb.DBRef, name, arg string, quiet bool) {
	if name == "" {
		cs.send(actor, "You need to specify a channel.")
		return
	}
	linesArg, startArg, _ := strings.Cut(arg, ",")
	linesArg, startArg = strings.TrimSpace(linesArg), strings.TrimSpace(startArg)

	lines, start := 10, -1
	if startArg != "" {
		n, err := strconv.Atoi(startArg)
		if err != nil {
			cs.send(actor, "Which line do you want to start recall from?")
			return
		}
		start = n - 1
	}
	if linesArg != "" {
		n, err := strconv.Atoi(linesArg)
		if err != nil {
			cs.send(actor, "How many lines did you want to recall?")
			return
		}
		if n == 0 {
			n = math.MaxInt32
		}
		lines = n
	}
	if lines < 1 {
		cs.send(actor, "How many lines did you want to recall?")
		return
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
	if !ch.IsMember(actor) && !cs.reg.CanAccess(ch, actor) {
		cs.send(actor, "CHAT: You must join a channel to recall from it.")
		return
	}
	if ch.BufferLines() == 0 {
		cs.send(actor, "CHAT: That channel doesn't have a recall buffer.")
		return
	}
	total := ch.RecallCount()
	if start < 0 {
		start = total - lines
	}
	if total == 0 || total <= start {
		cs.send(actor, "CHAT: Nothing to recall.")
		return
	}
	all := start <= 0 && lines >= total
	if start < 0 {
		start = 0
	}
	records, _ := ch.Recall(lines, start+1)

	nospoof := cs.world.HasPower(actor, gamedb.PowNospoof)
	cs.sendf(actor, "CHAT: Recall from channel <%s>", ch.Name())
	for _, rec := range records {
		text := rec.Text
		if nospoof && rec.Speaker >= 0 && cs.world.Valid(rec.Speaker) {
			text = fmt.Sprintf("[%s:] %s", cs.world.Name(rec.Speaker), text)
		}
		if !quiet {
			text = fmt.Sprintf("[%s] %s", rec.Time.Format(recallStamp), text)
		}
		cs.send(actor, text)
	}
	cs.send(actor, "CHAT: End recall")
	if !all {
		cs.sendf(actor, "CHAT: To recall the entire buffer, use @chan/recall %s=0", ch.Name())
	}
}
