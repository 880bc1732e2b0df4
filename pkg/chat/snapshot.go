package chat

import (
	"fmt"
	"log"
	"slices"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
	"github.com/crystal-mush/mushchat/pkg/recall"
)

// Snapshot copies every channel into its persisted form, in name order.
// Recall buffer contents are not included, only their capacity.
func (r *Registry) Snapshot() []gamedb.ChannelRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]gamedb.ChannelRecord, 0, len(r.chans))
	for _, c := range r.chans {
		c.mu.RLock()
		rec := gamedb.ChannelRecord{
			Name:        c.name,
			Description: c.desc,
			Flags:       c.flags,
			Creator:     c.creator,
			Proxy:       c.proxy,
			Cost:        c.cost,
			NumMessages: c.numMsgs,
			Locks:       c.locks,
		}
		if c.buf != nil {
			rec.Buffer = c.buf.Lines()
		}
		rec.Members = make([]gamedb.MemberRecord, len(c.roster))
		for i, m := range c.roster {
			rec.Members[i] = gamedb.MemberRecord{Who: m.Who, Flags: m.Flags, Title: m.Title}
		}
		c.mu.RUnlock()
		out = append(out, rec)
	}
	return out
}

// Restore replaces the whole registry with records. Members that no
// longer exist or may not be on their channel are dropped with a log line,
// as are channels whose name duplicates an earlier one. Nothing is changed
// if the record count exceeds the channel limit. It returns the number of
// dropped entries.
func (r *Registry) Restore(records []gamedb.ChannelRecord) (int, error) {
	opts := r.options()
	if len(records) > opts.MaxChannels {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooMany, len(records), opts.MaxChannels)
	}

	w := r.deps.World
	dropped := 0
	seen := make(map[string]bool, len(records))
	chans := make([]*Channel, 0, len(records))
	for _, rec := range records {
		c := newChannel(rec.Name, rec.Flags, rec.Creator)
		if !okName(rec.Name) || seen[c.key()] {
			log.Printf("comsys: dropping channel %q: bad or duplicate name", rec.Name)
			dropped++
			continue
		}
		seen[c.key()] = true
		c.desc = rec.Description
		c.proxy = rec.Proxy
		c.cost = rec.Cost
		c.numMsgs = rec.NumMessages
		c.locks = rec.Locks
		if c.proxy == gamedb.Nothing {
			c.flags &^= gamedb.ChanCobj
		}
		if rec.Buffer > 0 {
			buf, err := recall.New(rec.Buffer)
			if err != nil {
				log.Printf("comsys: channel %q: %v", rec.Name, err)
			} else {
				c.buf = buf
			}
		}
		for _, m := range rec.Members {
			if !w.Valid(m.Who) || !memberTypeOK(w, c, m.Who) {
				log.Printf("comsys: channel %q: dropping invalid member %s", rec.Name, m.Who)
				dropped++
				continue
			}
			if c.indexOf(m.Who) >= 0 {
				log.Printf("comsys: channel %q: dropping duplicate member %s", rec.Name, m.Who)
				dropped++
				continue
			}
			c.roster = append(c.roster, Member{Who: m.Who, Flags: m.Flags, Title: m.Title})
		}
		c.maxUsers = len(c.roster)
		chans = append(chans, c)
	}
	slices.SortFunc(chans, func(a, b *Channel) int { return r.compareNames(a.plain, b.plain) })

	r.mu.Lock()
	old := r.chans
	r.chans = chans
	r.idxMu.Lock()
	r.index = make(map[gamedb.DBRef]map[*Channel]struct{})
	for _, c := range chans {
		for _, m := range c.roster {
			r.indexAddLocked(m.Who, c)
		}
	}
	r.idxMu.Unlock()
	r.mu.Unlock()

	for _, c := range old {
		c.mu.Lock()
		c.deleted = true
		c.mu.Unlock()
	}
	log.Printf("comsys: restored %d channels (%d entries dropped)", len(chans), dropped)
	return dropped, nil
}

// memberTypeOK applies OkType to a channel that is not yet published.
func memberTypeOK(w World, c *Channel, p gamedb.DBRef) bool {
	if c.proxy == p {
		return true
	}
	switch w.Type(p) {
	case gamedb.TypePlayer:
		return c.flags&gamedb.ChanPlayer != 0
	case gamedb.TypeThing:
		return c.flags&gamedb.ChanObject != 0
	}
	return false
}
