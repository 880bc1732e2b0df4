package chat

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// BroadcastFlags modify how a message is distributed.
type BroadcastFlags int

const (
	// CheckQuiet skips members who set themselves quiet.
	CheckQuiet BroadcastFlags = 1 << iota
	// SuppressSpoofProtect records the message without its speaker.
	SuppressSpoofProtect
	// Presence marks connection and membership changes for interaction
	// filtering; otherwise the message is treated as heard.
	Presence
)

// BroadcastResult reports who a broadcast reached.
type BroadcastResult struct {
	Delivered  int
	Recipients []gamedb.DBRef
}

// Say tokens recognized at the start of a chat message.
const (
	PoseToken     = ':'
	SemiposeToken = ';'
	SayToken      = '"'
)

const ansiNormal = "\x1b[0m"

// Broadcast sends text to every eligible member of c and appends it to
// the recall buffer. A disabled channel gets nothing. The roster is copied
// first; delivery happens with no lock held.
func (r *Registry) Broadcast(c *Channel, speaker gamedb.DBRef, text string, flags BroadcastFlags) BroadcastResult {
	c.mu.RLock()
	if c.flags&gamedb.ChanDisabled != 0 || c.deleted {
		c.mu.RUnlock()
		return BroadcastResult{}
	}
	roster := make([]Member, len(c.roster))
	copy(roster, c.roster)
	name, interact := c.name, c.flags&gamedb.ChanInteract != 0
	c.mu.RUnlock()

	d := Delivery{
		Speaker: speaker,
		Channel: name,
		Spoof:   flags&SuppressSpoofProtect != 0,
	}
	if interact {
		d.Interaction = InteractHear
		if flags&Presence != 0 {
			d.Interaction = InteractPresence
		}
	}

	w := r.deps.World
	var res BroadcastResult
	for _, m := range roster {
		if !w.Valid(m.Who) || m.Gagged() {
			continue
		}
		if flags&CheckQuiet != 0 && m.Quiet() {
			continue
		}
		if w.Type(m.Who) == gamedb.TypePlayer && !w.Connected(m.Who) {
			continue
		}
		if r.deps.Suppress != nil && r.deps.Suppress.Suppress(name, m.Who) {
			continue
		}
		r.deps.Transport.Deliver(m.Who, text, d)
		res.Recipients = append(res.Recipients, m.Who)
		res.Delivered++
	}

	who := speaker
	if d.Spoof {
		who = gamedb.Nothing
	}
	c.mu.Lock()
	if c.buf != nil {
		c.buf.Add(int(flags), who, text)
	}
	c.mu.Unlock()

	if r.deps.Observer != nil {
		r.deps.Observer.MessageBroadcast(name, who, text, res.Delivered)
	}
	return res
}

// Label returns the prefix shown before messages on c. A channel with a
// proxy object may render its own label; a proxy that no longer exists is
// detached.
func (r *Registry) Label(c *Channel) string {
	c.mu.RLock()
	name, proxy, cobj := c.name, c.proxy, c.flags&gamedb.ChanCobj != 0
	c.mu.RUnlock()
	if cobj {
		w := r.deps.World
		if !w.Valid(proxy) || w.Type(proxy) == gamedb.TypeGarbage {
			c.ResetProxy()
		} else if r.deps.Labels != nil {
			if label, ok := r.deps.Labels.ChannelLabel(proxy, name); ok {
				return label
			}
		}
	}
	return fmt.Sprintf(r.options().LabelFormat, name)
}

// speakerParts returns the title and name shown for who on c. Both empty
// never happens; "Someone" stands in.
func (r *Registry) speakerParts(c *Channel, who gamedb.DBRef, title string) (string, string) {
	flags := c.Flags()
	if flags&gamedb.ChanNoTitles != 0 {
		title = ""
	}
	name := ""
	if flags&gamedb.ChanNoNames == 0 {
		name = r.deps.World.Name(who)
	}
	if title == "" && name == "" {
		name = "Someone"
	}
	return title, name
}

func speakerPrefix(label, title, name string) string {
	var b strings.Builder
	b.WriteString(label)
	b.WriteByte(' ')
	b.WriteString(title)
	if title != "" {
		b.WriteString(ansiNormal)
		if name != "" {
			b.WriteByte(' ')
		}
	}
	b.WriteString(name)
	return b.String()
}

// FormatSpeech shapes a said message.
func FormatSpeech(label, title, name, text string) string {
	return fmt.Sprintf("%s says, \"%s\"", speakerPrefix(label, title, name), text)
}

// FormatPose shapes a posed message.
func FormatPose(label, title, name, text string) string {
	return speakerPrefix(label, title, name) + " " + text
}

// FormatSemipose shapes a semiposed message.
func FormatSemipose(label, title, name, text string) string {
	return speakerPrefix(label, title, name) + text
}

// FormatEmit shapes an emitted message.
func FormatEmit(label, text string, labeled bool) string {
	if !labeled {
		return text
	}
	return label + " " + text
}

// FormatMessage picks speech, pose or semipose from the leading token of
// msg.
func (r *Registry) FormatMessage(c *Channel, speaker gamedb.DBRef, msg string) string {
	title := ""
	if m, ok := c.Lookup(speaker); ok {
		title = m.Title
	}
	title, name := r.speakerParts(c, speaker, title)
	label := r.Label(c)
	switch {
	case strings.HasPrefix(msg, string(PoseToken)):
		return FormatPose(label, title, name, msg[1:])
	case strings.HasPrefix(msg, string(SemiposeToken)):
		return FormatSemipose(label, title, name, msg[1:])
	case r.options().StripQuote && strings.HasPrefix(msg, string(SayToken)):
		msg = msg[1:]
	}
	return FormatSpeech(label, title, name, msg)
}

// Speak sends speaker's chat message to c. The speaker must be of a type
// allowed on c and pass the speak policy, and must be on c or be its proxy
// unless c is open. A speaker who does not hear the broadcast, gagged or
// off the roster, gets a private copy of what was sent. The proxy object
// is offered the message as typed.
func (r *Registry) Speak(c *Channel, speaker gamedb.DBRef, msg string) (BroadcastResult, error) {
	if strings.TrimSpace(msg) == "" {
		return BroadcastResult{}, ErrEmptyMessage
	}
	if !r.OkType(c, speaker) {
		return BroadcastResult{}, ErrWrongType
	}
	if !r.CanSpeak(c, speaker) {
		return BroadcastResult{}, ErrPermission
	}
	if !c.onChannel(speaker) && !c.Has(gamedb.ChanOpen) {
		return BroadcastResult{}, ErrNotMember
	}
	m, on := c.Lookup(speaker)

	text := r.FormatMessage(c, speaker, msg)
	res := r.Broadcast(c, speaker, text, 0)
	if !on || m.Gagged() {
		r.notify(speaker, fmt.Sprintf("To channel %s: %s", c.Name(), text))
	}
	r.offerProxy(c, speaker, r.spokenText(msg))
	c.countMessage()
	return res, nil
}

// spokenText is msg without its leading pose, semipose or say token.
func (r *Registry) spokenText(msg string) string {
	switch {
	case strings.HasPrefix(msg, string(PoseToken)),
		strings.HasPrefix(msg, string(SemiposeToken)),
		r.options().StripQuote && strings.HasPrefix(msg, string(SayToken)):
		return msg[1:]
	}
	return msg
}

// Cemit emits msg on c. Unless silent it carries the channel label; with
// spoof the recall buffer does not record the emitter.
func (r *Registry) Cemit(c *Channel, speaker gamedb.DBRef, msg string, silent, spoof bool) (BroadcastResult, error) {
	if msg == "" {
		return BroadcastResult{}, ErrEmptyMessage
	}
	if !r.OkType(c, speaker) {
		return BroadcastResult{}, ErrWrongType
	}
	if c.Has(gamedb.ChanNoCemit) {
		return BroadcastResult{}, ErrNoCemit
	}
	if !r.CanCemit(c, speaker) {
		return BroadcastResult{}, ErrPermission
	}
	if !c.onChannel(speaker) && !c.Has(gamedb.ChanOpen) {
		return BroadcastResult{}, ErrNotMember
	}
	m, on := c.Lookup(speaker)

	text := FormatEmit(r.Label(c), msg, !silent)
	var flags BroadcastFlags
	if spoof {
		flags |= SuppressSpoofProtect
	}
	res := r.Broadcast(c, speaker, text, flags)
	if !on || m.Gagged() {
		r.notify(speaker, fmt.Sprintf("Cemit to channel %s: %s", c.Name(), msg))
	}
	c.countMessage()
	return res, nil
}

func (r *Registry) offerProxy(c *Channel, speaker gamedb.DBRef, text string) {
	if r.deps.Proxy == nil {
		return
	}
	proxy := c.Proxy()
	if proxy == gamedb.Nothing || proxy == speaker || !r.deps.World.Valid(proxy) {
		return
	}
	r.deps.Proxy.MatchProxy(proxy, speaker, text)
}

// Announce broadcasts "<label> <who> <tail>" on c. When names are hidden
// the member's title stands in, or "Someone".
func (r *Registry) Announce(c *Channel, who gamedb.DBRef, tail string, flags BroadcastFlags) BroadcastResult {
	title := ""
	if m, ok := c.Lookup(who); ok {
		title = m.Title
	}
	return r.announce(c, who, title, tail, flags)
}

func (r *Registry) announce(c *Channel, who gamedb.DBRef, title, tail string, flags BroadcastFlags) BroadcastResult {
	var name string
	switch {
	case !c.Has(gamedb.ChanNoNames):
		name = r.deps.World.Name(who)
	case c.Has(gamedb.ChanNoTitles) || title == "":
		name = "Someone"
	default:
		name = title
	}
	return r.Broadcast(c, who, r.Label(c)+" "+name+" "+tail, flags)
}

// AnnounceJoin tells c that p joined, unless c is quiet or p is dark.
func (r *Registry) AnnounceJoin(c *Channel, p gamedb.DBRef) {
	if c.Has(gamedb.ChanQuiet) || r.deps.World.Dark(p) {
		return
	}
	r.Announce(c, p, "has joined this channel.", CheckQuiet|Presence)
}

// AnnounceLeave tells c that the member m left. m has already been
// removed, so the message goes to the remaining members.
func (r *Registry) AnnounceLeave(c *Channel, m Member) {
	if c.Has(gamedb.ChanQuiet) || r.deps.World.Dark(m.Who) {
		return
	}
	r.announce(c, m.Who, m.Title, "has left this channel.", CheckQuiet|Presence)
}

// PlayerAnnounce tells every channel p is on about a connection change,
// for example "has connected.". With ungag, p's gags are cleared first.
// Hidden or dark members only announce on admin and director channels.
func (r *Registry) PlayerAnnounce(p gamedb.DBRef, msg string, ungag bool) int {
	n := 0
	dark := r.deps.World.Dark(p)
	for _, c := range r.ChannelsOf(p) {
		if ungag {
			c.SetUserFlag(p, gamedb.MemberGag, false)
		}
		m, ok := c.Lookup(p)
		if !ok {
			continue
		}
		flags := c.Flags()
		if flags&gamedb.ChanQuiet != 0 {
			continue
		}
		staff := flags&(gamedb.ChanAdmin|gamedb.ChanDirector) != 0
		if !staff && (m.Flags&gamedb.MemberHide != 0 || dark) {
			continue
		}
		r.Announce(c, p, msg, CheckQuiet|Presence)
		n++
	}
	return n
}
