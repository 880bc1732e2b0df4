package chat

import (
	"fmt"
	"slices"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// Join adds p to c's roster in display-name order and records c in p's
// channel index. It reports false, changing nothing, if p is already on
// the channel or the channel was deleted. Permission checks are the
// caller's job.
func (r *Registry) Join(c *Channel, p gamedb.DBRef, flags int) bool {
	name := r.deps.World.Name(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleted || c.indexOf(p) >= 0 {
		return false
	}
	r.insertMemberLocked(c, Member{Who: p, Flags: flags}, name)

	r.idxMu.Lock()
	r.indexAddLocked(p, c)
	r.idxMu.Unlock()
	return true
}

// insertMemberLocked places m after every member whose name sorts at or
// before name. Caller holds c.mu.
func (r *Registry) insertMemberLocked(c *Channel, m Member, name string) {
	i := 0
	for i < len(c.roster) && r.compareNames(r.deps.World.Name(c.roster[i].Who), name) <= 0 {
		i++
	}
	c.roster = slices.Insert(c.roster, i, m)
	if len(c.roster) > c.maxUsers {
		c.maxUsers = len(c.roster)
	}
}

func (r *Registry) indexAddLocked(p gamedb.DBRef, c *Channel) {
	set := r.index[p]
	if set == nil {
		set = make(map[*Channel]struct{})
		r.index[p] = set
	}
	set[c] = struct{}{}
}

func (r *Registry) indexRemoveLocked(p gamedb.DBRef, c *Channel) {
	set := r.index[p]
	delete(set, c)
	if len(set) == 0 {
		delete(r.index, p)
	}
}

// Leave removes p from c. It reports false if p was not on the channel.
func (r *Registry) Leave(c *Channel, p gamedb.DBRef) bool {
	_, ok := r.leave(c, p)
	return ok
}

// LeaveEntry is Leave but also returns the removed roster entry.
func (r *Registry) LeaveEntry(c *Channel, p gamedb.DBRef) (Member, bool) {
	return r.leave(c, p)
}

func (r *Registry) leave(c *Channel, p gamedb.DBRef) (Member, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(p)
	if i < 0 {
		return Member{}, false
	}
	m := c.roster[i]
	c.roster = slices.Delete(c.roster, i, i+1)

	r.idxMu.Lock()
	r.indexRemoveLocked(p, c)
	r.idxMu.Unlock()
	return m, true
}

// Wipe removes every member of c, telling each that actor removed them.
// It returns the number removed.
func (r *Registry) Wipe(c *Channel, actor gamedb.DBRef) int {
	c.mu.Lock()
	removed := c.roster
	c.roster = nil
	name := c.name
	r.idxMu.Lock()
	for _, m := range removed {
		r.indexRemoveLocked(m.Who, c)
	}
	r.idxMu.Unlock()
	c.mu.Unlock()

	msg := fmt.Sprintf("CHAT: %s has removed all users from <%s>.", r.deps.World.Name(actor), name)
	for _, m := range removed {
		r.notify(m.Who, msg)
	}
	return len(removed)
}

// RemoveEverywhere takes p off every channel it is on, for use when p is
// permanently removed from the world.
func (r *Registry) RemoveEverywhere(p gamedb.DBRef) int {
	n := 0
	for _, c := range r.indexed(p) {
		if r.Leave(c, p) {
			n++
		}
	}
	return n
}

func (r *Registry) indexed(p gamedb.DBRef) []*Channel {
	r.idxMu.RLock()
	defer r.idxMu.RUnlock()
	out := make([]*Channel, 0, len(r.index[p]))
	for c := range r.index[p] {
		out = append(out, c)
	}
	return out
}

// ChannelsOf returns the channels p is on, ordered by channel name.
func (r *Registry) ChannelsOf(p gamedb.DBRef) []*Channel {
	chans := r.indexed(p)
	type named struct {
		c    *Channel
		name string
	}
	ns := make([]named, len(chans))
	for i, c := range chans {
		ns[i] = named{c, c.PlainName()}
	}
	slices.SortFunc(ns, func(a, b named) int { return r.compareNames(a.name, b.name) })
	for i := range ns {
		chans[i] = ns[i].c
	}
	return chans
}

// UngagAll clears p's gag on every channel.
func (r *Registry) UngagAll(p gamedb.DBRef) {
	for _, c := range r.indexed(p) {
		c.SetUserFlag(p, gamedb.MemberGag, false)
	}
}

// SetUserFlagAll sets or clears a member flag on every channel p is on and
// returns the channels changed.
func (r *Registry) SetUserFlagAll(p gamedb.DBRef, flag int, on bool) []*Channel {
	var changed []*Channel
	for _, c := range r.ChannelsOf(p) {
		if c.SetUserFlag(p, flag, on) {
			changed = append(changed, c)
		}
	}
	return changed
}

// ChannelDescription summarizes the channels p is on, as shown by
// finger-style commands.
func (r *Registry) ChannelDescription(p gamedb.DBRef) string {
	chans := r.ChannelsOf(p)
	if len(chans) == 0 {
		if r.deps.World.Type(p) == gamedb.TypePlayer {
			return "Channels: *NONE*"
		}
		return ""
	}
	out := "Channels:"
	for _, c := range chans {
		out += " " + c.Name()
	}
	return out
}

// MemberHidden reports whether m is hidden from viewer's who list.
func (r *Registry) MemberHidden(m Member, viewer gamedb.DBRef) bool {
	if m.Flags&gamedb.MemberHide != 0 {
		return true
	}
	w := r.deps.World
	return w.Type(m.Who) == gamedb.TypePlayer && w.Hidden(m.Who, viewer)
}

func (r *Registry) notify(to gamedb.DBRef, text string) {
	r.deps.Transport.Deliver(to, text, Delivery{Speaker: gamedb.Nothing})
}
