package flatfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
	"github.com/crystal-mush/mushchat/pkg/lock"
)

// pennFlagRemap converts channel flag bits from +V saves.
var pennFlagRemap = []struct{ old, new int }{
	{0x800, gamedb.ChanInteract},
}

// RemapPennFlags applies the +V flag conversion table.
func RemapPennFlags(flags int) int {
	for _, m := range pennFlagRemap {
		if flags&m.old == m.old {
			flags = (flags &^ m.old) | m.new
		}
	}
	return flags
}

func newRecord() gamedb.ChannelRecord {
	return gamedb.ChannelRecord{
		Flags:   gamedb.ChanDefaultFlags,
		Creator: gamedb.Nothing,
		Proxy:   gamedb.Nothing,
	}
}

// readLabeledChannel reads one channel block; the users entry ends it.
func (p *Parser) readLabeledChannel() (gamedb.ChannelRecord, error) {
	rec := newRecord()
	for {
		p.skipBlank()
		ch, err := p.peekByte()
		if err != nil {
			return rec, fmt.Errorf("unexpected EOF in channel %q", rec.Name)
		}
		if ch == '*' {
			p.warnf("channel %q ends without a users entry", rec.Name)
			return rec, nil
		}
		label, value, err := p.readLabeled()
		if err != nil {
			return rec, err
		}
		switch strings.ToLower(label) {
		case "name":
			rec.Name = value
		case "description":
			rec.Description = value
		case "flags":
			rec.Flags = atoi(value)
			if p.db.Format == FormatPenn {
				rec.Flags = RemapPennFlags(rec.Flags)
			}
		case "creator":
			rec.Creator = p.parseRef(value)
		case "cobj":
			rec.Proxy = p.parseRef(value)
		case "cost":
			rec.Cost = atoi(value)
		case "buffer":
			rec.Buffer = atoi(value)
		case "lock":
			key, err := p.readKey()
			if err != nil {
				return rec, err
			}
			if k, ok := gamedb.LockKindByName(strings.ToLower(value)); ok && value != "mod" {
				rec.Locks[k] = key
			} else {
				p.warnf("unrecognized lock subfield %q in channel %q", value, rec.Name)
			}
		case "users":
			n := atoi(value)
			members, err := p.readLabeledUsers(rec.Name, n)
			rec.Members = members
			return rec, err
		default:
			p.warnf("unrecognized field %q in channel %q", label, rec.Name)
		}
	}
}

func (p *Parser) readLabeledUsers(channel string, n int) ([]gamedb.MemberRecord, error) {
	var members []gamedb.MemberRecord
	for i := 0; i < n; i++ {
		refText, err := p.readThis("dbref")
		if err != nil {
			return members, err
		}
		flags, err := p.readThis("flags")
		if err != nil {
			return members, err
		}
		title, err := p.readThis("title")
		if err != nil {
			return members, err
		}
		ref, ok := gamedb.ParseDBRef(refText)
		if !ok || ref < 0 {
			p.warnf("bad object %q removed from channel %q", refText, channel)
			continue
		}
		members = append(members, gamedb.MemberRecord{Who: ref, Flags: atoi(flags), Title: title})
	}
	return members, nil
}

// readLegacyChannel reads one positional channel: name, description,
// flags, creator, cost, five keys, user count and users.
func (p *Parser) readLegacyChannel() (gamedb.ChannelRecord, error) {
	rec := newRecord()
	var err error
	if rec.Name, err = p.readString(); err != nil {
		return rec, err
	}
	if rec.Description, err = p.readString(); err != nil {
		return rec, err
	}
	if rec.Flags, err = p.readRef(); err != nil {
		return rec, err
	}
	creator, err := p.readRef()
	if err != nil {
		return rec, err
	}
	rec.Creator = gamedb.DBRef(creator)
	if rec.Cost, err = p.readRef(); err != nil {
		return rec, err
	}
	for k := gamedb.LockJoin; k < gamedb.NumLocks; k++ {
		if rec.Locks[k], err = p.readKey(); err != nil {
			return rec, err
		}
	}
	n, err := p.readRef()
	if err != nil {
		return rec, err
	}
	for i := 0; i < n; i++ {
		ref, err := p.readRef()
		if err != nil {
			return rec, err
		}
		flags, err := p.readRef()
		if err != nil {
			return rec, err
		}
		title, err := p.readString()
		if err != nil {
			return rec, err
		}
		if ref < 0 {
			p.warnf("bad object #%d removed from channel %q", ref, rec.Name)
			continue
		}
		rec.Members = append(rec.Members, gamedb.MemberRecord{Who: gamedb.DBRef(ref), Flags: flags, Title: title})
	}
	return rec, nil
}

// readKey reads a key entry and returns canonical policy text. Text that
// does not parse is kept as is, so the policy never passes.
func (p *Parser) readKey() (string, error) {
	text, err := p.readThis("key")
	if err != nil {
		return "", err
	}
	if isTrueKey(text) {
		return "", nil
	}
	canon, err := lock.Canonical(text)
	if err != nil {
		p.warnf("unparseable key %q: %v", text, err)
		return text, nil
	}
	return canon, nil
}

func isTrueKey(text string) bool {
	switch strings.TrimSpace(text) {
	case "", TrueKey, "*UNLOCKED*":
		return true
	}
	return false
}

func (p *Parser) parseRef(value string) gamedb.DBRef {
	ref, ok := gamedb.ParseDBRef(value)
	if !ok {
		p.warnf("bad dbref %q", value)
		return gamedb.Nothing
	}
	return ref
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
