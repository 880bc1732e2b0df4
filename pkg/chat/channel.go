package chat

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
	"github.com/crystal-mush/mushchat/pkg/recall"
)

// Member is one roster entry.
type Member struct {
	Who   gamedb.DBRef
	Flags int
	Title string
}

// Quiet reports whether the member ignores connection messages.
func (m Member) Quiet() bool { return m.Flags&gamedb.MemberQuiet != 0 }

// Gagged reports whether the member hears nothing.
func (m Member) Gagged() bool { return m.Flags&gamedb.MemberGag != 0 }

// Channel is a named chat channel. All fields are guarded by mu; the name
// is additionally only changed while the registry is write-locked.
type Channel struct {
	mu sync.RWMutex

	name     string
	plain    string // name with markup stripped
	desc     string
	flags    int
	creator  gamedb.DBRef
	proxy    gamedb.DBRef
	cost     int
	numMsgs  int
	maxUsers int
	locks    [gamedb.NumLocks]string
	roster   []Member
	buf      *recall.Buffer
	deleted  bool
}

func newChannel(name string, flags int, creator gamedb.DBRef) *Channel {
	c := &Channel{flags: flags, creator: creator, proxy: gamedb.Nothing}
	c.setName(name)
	return c
}

func (c *Channel) setName(name string) {
	c.name = name
	c.plain, _ = StripMarkup(name)
}

func (c *Channel) key() string { return strings.ToLower(c.plain) }

// Name returns the channel name as given, markup included.
func (c *Channel) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// PlainName returns the name with markup stripped.
func (c *Channel) PlainName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plain
}

// Description returns the channel description.
func (c *Channel) Description() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.desc
}

// Flags returns the channel type flags.
func (c *Channel) Flags() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flags
}

// Has reports whether any of the given type flags are set.
func (c *Channel) Has(flag int) bool { return c.Flags()&flag != 0 }

// Creator returns the owning player.
func (c *Channel) Creator() gamedb.DBRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creator
}

// Proxy returns the channel's proxy object, or gamedb.Nothing.
func (c *Channel) Proxy() gamedb.DBRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proxy
}

// Cost returns what the creator paid.
func (c *Channel) Cost() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cost
}

// NumUsers returns the current member count.
func (c *Channel) NumUsers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.roster)
}

// MaxUsers returns the historical maximum member count.
func (c *Channel) MaxUsers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxUsers
}

// NumMessages returns the number of messages spoken on the channel.
func (c *Channel) NumMessages() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.numMsgs
}

// Policy returns the canonical text of one policy; "" is always true.
func (c *Channel) Policy(k gamedb.LockKind) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locks[k]
}

// BufferLines returns the recall capacity, 0 when there is no buffer.
func (c *Channel) BufferLines() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.buf == nil {
		return 0
	}
	return c.buf.Lines()
}

// BufferSize returns the recall byte budget, 0 when there is no buffer.
func (c *Channel) BufferSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.buf == nil {
		return 0
	}
	return c.buf.Size()
}

// Members returns a copy of the roster in roster order.
func (c *Channel) Members() []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.roster)
}

// Lookup finds p's roster entry.
func (c *Channel) Lookup(p gamedb.DBRef) (Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(p); i >= 0 {
		return c.roster[i], true
	}
	return Member{}, false
}

// IsMember reports whether p is on the roster.
func (c *Channel) IsMember(p gamedb.DBRef) bool {
	_, ok := c.Lookup(p)
	return ok
}

// onChannel counts the proxy object as present.
func (c *Channel) onChannel(p gamedb.DBRef) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proxy == p || c.indexOf(p) >= 0
}

func (c *Channel) indexOf(p gamedb.DBRef) int {
	for i, m := range c.roster {
		if m.Who == p {
			return i
		}
	}
	return -1
}

// SetDescription replaces the description.
func (c *Channel) SetDescription(desc string) error {
	if len(desc) > MaxDescLen {
		return ErrDescTooLong
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desc = desc
	return nil
}

// SetFlags replaces the type flags. The ChanObj bit is managed by
// SetProxy and ResetProxy and is preserved here.
func (c *Channel) SetFlags(flags int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags = (flags &^ gamedb.ChanCobj) | (c.flags & gamedb.ChanCobj)
}

// SetPolicy stores canonical policy text.
func (c *Channel) SetPolicy(k gamedb.LockKind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locks[k] = text
}

// SetProxy attaches a proxy object.
func (c *Channel) SetProxy(obj gamedb.DBRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proxy = obj
	c.flags |= gamedb.ChanCobj
}

// ResetProxy detaches the proxy object.
func (c *Channel) ResetProxy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proxy = gamedb.Nothing
	c.flags &^= gamedb.ChanCobj
}

// SetBuffer sets the recall capacity. Zero removes the buffer; changing the
// size keeps the most recent records that fit.
func (c *Channel) SetBuffer(lines int) error {
	if lines < 0 || lines > recall.MaxLines {
		return fmt.Errorf("%w: %d", ErrBufferSize, lines)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if lines == 0 {
		c.buf = nil
		return nil
	}
	var (
		nb  *recall.Buffer
		err error
	)
	if c.buf == nil {
		nb, err = recall.New(lines)
	} else {
		nb, err = c.buf.Resize(lines)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBufferSize, err)
	}
	c.buf = nb
	return nil
}

// Recall returns buffered records for a recall request: the last n, or n
// starting at the 1-based position start. n <= 0 means all.
func (c *Channel) Recall(n, start int) ([]recall.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.buf == nil {
		return nil, false
	}
	return c.buf.Tail(n, start), true
}

// RecallCount returns the number of buffered records.
func (c *Channel) RecallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.buf == nil {
		return 0
	}
	return c.buf.Len()
}

// SetUserFlag sets or clears a member flag. It reports false if p is not
// a member.
func (c *Channel) SetUserFlag(p gamedb.DBRef, flag int, on bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(p)
	if i < 0 {
		return false
	}
	if on {
		c.roster[i].Flags |= flag
	} else {
		c.roster[i].Flags &^= flag
	}
	return true
}

// SetTitle sets p's title. It reports ErrNotMember if p is not on the
// channel.
func (c *Channel) SetTitle(p gamedb.DBRef, title string) error {
	if len(title) > MaxTitleLen {
		return ErrTitleTooLong
	}
	for _, r := range title {
		if r == '\a' || (unicode.IsSpace(r) && r != ' ') {
			return ErrBadTitle
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(p)
	if i < 0 {
		return ErrNotMember
	}
	c.roster[i].Title = title
	return nil
}

func (c *Channel) countMessage() {
	c.mu.Lock()
	c.numMsgs++
	c.mu.Unlock()
}
