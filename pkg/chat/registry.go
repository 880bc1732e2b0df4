package chat

import (
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// Registry is the name-sorted set of all channels plus each participant's
// index of joined channels.
type Registry struct {
	deps Deps
	opts Options
	coll *Collator

	mu    sync.RWMutex
	chans []*Channel

	idxMu sync.RWMutex
	index map[gamedb.DBRef]map[*Channel]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps, opts Options) *Registry {
	if opts.LabelFormat == "" {
		opts.LabelFormat = "[%s]"
	}
	return &Registry{
		deps:  deps,
		opts:  opts,
		coll:  NewCollator(opts.Locale),
		index: make(map[gamedb.DBRef]map[*Channel]struct{}),
	}
}

// Options returns the registry's limits.
func (r *Registry) Options() Options { return r.options() }

// SetOptions replaces the tunable limits. Existing channels are unchanged.
// The collation locale is fixed when the registry is created.
func (r *Registry) SetOptions(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opts.LabelFormat == "" {
		opts.LabelFormat = "[%s]"
	}
	opts.Locale = r.opts.Locale
	r.opts = opts
}

func (r *Registry) options() Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts
}

// World returns the world collaborator.
func (r *Registry) World() World { return r.deps.World }

// compareNames orders channels by stripped name.
func (r *Registry) compareNames(a, b string) int { return r.coll.Compare(a, b) }

// insertLocked places c before the first channel not less than it.
// Caller holds r.mu for writing.
func (r *Registry) insertLocked(c *Channel) {
	i, _ := slices.BinarySearchFunc(r.chans, c.plain, func(e *Channel, target string) int {
		return r.compareNames(e.plain, target)
	})
	r.chans = slices.Insert(r.chans, i, c)
}

func (r *Registry) removeLocked(c *Channel) bool {
	i := slices.Index(r.chans, c)
	if i < 0 {
		return false
	}
	r.chans = slices.Delete(r.chans, i, i+1)
	return true
}

// findKeyLocked returns the channel whose stripped name equals key ignoring
// case. Caller holds r.mu.
func (r *Registry) findKeyLocked(plain string) *Channel {
	i, found := slices.BinarySearchFunc(r.chans, plain, func(e *Channel, target string) int {
		return r.compareNames(e.plain, target)
	})
	if found {
		return r.chans[i]
	}
	return nil
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chans)
}

// Channels returns every channel in name order.
func (r *Registry) Channels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.chans)
}

// CountOwned returns how many channels creator owns.
func (r *Registry) CountOwned(creator gamedb.DBRef) int {
	n := 0
	for _, c := range r.Channels() {
		if c.Creator() == creator {
			n++
		}
	}
	return n
}

// Create makes a new channel for actor. The cost is charged to actor's
// owner, who becomes the creator, and refunded if creation fails after
// the charge. The modify policy starts as "=#actor".
func (r *Registry) Create(name string, actor gamedb.DBRef, flags int) (*Channel, error) {
	opts := r.options()
	w := r.deps.World
	if r.Len() >= opts.MaxChannels {
		return nil, ErrTooMany
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	if !okName(name) {
		return nil, ErrInvalidName
	}
	owner := w.Owner(actor)
	admin := w.Admin(actor)
	if !admin && r.CountOwned(owner) >= opts.MaxPerCreator {
		return nil, ErrTooManyForCreator
	}
	plain, _ := StripMarkup(name)
	r.mu.RLock()
	dup := r.findKeyLocked(plain) != nil
	r.mu.RUnlock()
	if dup {
		return nil, ErrDuplicateName
	}
	if flags == 0 {
		flags = opts.DefaultFlags
	}
	if !r.CanUseType(actor, flags) {
		return nil, ErrPermission
	}
	if flags&gamedb.ChanCobj != 0 {
		return nil, ErrCobjType
	}
	if r.deps.Economy != nil && !r.deps.Economy.Charge(owner, opts.Cost) {
		return nil, ErrInsufficientFunds
	}

	c := newChannel(name, flags, owner)
	c.cost = opts.Cost
	c.locks[gamedb.LockModify] = "=" + actor.String()

	r.mu.Lock()
	var err error
	switch {
	case len(r.chans) >= r.opts.MaxChannels:
		err = ErrTooMany
	case r.findKeyLocked(plain) != nil:
		err = ErrDuplicateName
	case !admin && r.countOwnedLocked(owner) >= r.opts.MaxPerCreator:
		err = ErrTooManyForCreator
	default:
		r.insertLocked(c)
	}
	r.mu.Unlock()
	if err != nil {
		r.refund(owner, opts.Cost)
		return nil, err
	}
	log.Printf("comsys: channel %q created by %s", name, actor)
	return c, nil
}

func (r *Registry) countOwnedLocked(creator gamedb.DBRef) int {
	n := 0
	for _, c := range r.chans {
		c.mu.RLock()
		if c.creator == creator {
			n++
		}
		c.mu.RUnlock()
	}
	return n
}

func (r *Registry) refund(to gamedb.DBRef, amount int) {
	if r.deps.Economy != nil && amount > 0 {
		r.deps.Economy.Refund(to, amount)
	}
}

// Rename changes c's name, keeping the registry sorted. Renaming to a
// differently-cased form of the same name is allowed.
func (r *Registry) Rename(c *Channel, newName string) error {
	if len(newName) > MaxNameLen {
		return ErrNameTooLong
	}
	if !okName(newName) {
		return ErrInvalidName
	}
	plain, _ := StripMarkup(newName)

	r.mu.Lock()
	defer r.mu.Unlock()
	if other := r.findKeyLocked(plain); other != nil && other != c {
		return ErrDuplicateName
	}
	if !r.removeLocked(c) {
		return ErrDeleted
	}
	c.mu.Lock()
	c.setName(newName)
	c.mu.Unlock()
	r.insertLocked(c)
	return nil
}

// Delete removes every member (notifying them as removed by actor),
// refunds the creator and removes c from the registry.
func (r *Registry) Delete(c *Channel, actor gamedb.DBRef) error {
	r.mu.Lock()
	ok := r.removeLocked(c)
	r.mu.Unlock()
	if !ok {
		return ErrDeleted
	}
	c.mu.Lock()
	c.deleted = true
	creator, cost := c.creator, c.cost
	c.mu.Unlock()

	r.Wipe(c, actor)
	r.refund(creator, cost)
	log.Printf("comsys: channel %q deleted by %s", c.Name(), actor)
	return nil
}

// Chown gives c to newOwner. The old creator is refunded and the channel
// is treated as having cost nothing.
func (r *Registry) Chown(c *Channel, newOwner gamedb.DBRef) {
	c.mu.Lock()
	old, cost := c.creator, c.cost
	c.creator = newOwner
	c.cost = 0
	c.mu.Unlock()
	r.refund(old, cost)
}

// ChownAll transfers every channel owned by old to newOwner.
func (r *Registry) ChownAll(old, newOwner gamedb.DBRef) int {
	n := 0
	for _, c := range r.Channels() {
		if c.Creator() == old {
			r.Chown(c, newOwner)
			n++
		}
	}
	return n
}

// MatchKind describes how a query resolved.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchPartial
	MatchAmbiguous
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchPartial:
		return "partial"
	case MatchAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Mode restricts which channels a query may resolve to.
type Mode int

const (
	ModeAny       Mode = iota
	ModeMember         // only channels actor is on
	ModeNonMember      // only channels actor is not on
)

// Resolve finds a channel by exact name or unique prefix. Markup and a
// surrounding <...> are ignored. Only channels actor can see or is on are
// candidates, and an exact match actor cannot see ends the search with
// nothing. An ambiguous result still carries the earliest candidate.
func (r *Registry) Resolve(query string, actor gamedb.DBRef, mode Mode) (MatchKind, *Channel) {
	clean := normalizeQuery(query)
	if clean == "" {
		return MatchNone, nil
	}
	var first *Channel
	count := 0
	for _, c := range r.Channels() {
		on := c.onChannel(actor)
		switch mode {
		case ModeMember:
			if !on {
				continue
			}
		case ModeNonMember:
			if on {
				continue
			}
		}
		plain := c.PlainName()
		exact := len(plain) == len(clean) && hasPrefixFold(plain, clean)
		if !exact && !hasPrefixFold(plain, clean) {
			continue
		}
		visible := on || r.CanSee(c, actor)
		if exact {
			if visible {
				return MatchExact, c
			}
			return MatchNone, nil
		}
		if !visible {
			continue
		}
		if first == nil {
			first = c
		}
		count++
	}
	switch count {
	case 0:
		return MatchNone, nil
	case 1:
		return MatchPartial, first
	}
	return MatchAmbiguous, first
}

// ResolvePartial is like Resolve in ModeAny without visibility checks,
// but on an ambiguous match it prefers a channel actor is already on.
func (r *Registry) ResolvePartial(query string, actor gamedb.DBRef) (MatchKind, *Channel) {
	clean := normalizeQuery(query)
	if clean == "" {
		return MatchNone, nil
	}
	var best *Channel
	count := 0
	for _, c := range r.Channels() {
		plain := c.PlainName()
		if !hasPrefixFold(plain, clean) {
			continue
		}
		if len(plain) == len(clean) {
			return MatchExact, c
		}
		if best == nil || (!best.onChannel(actor) && c.onChannel(actor)) {
			best = c
		}
		count++
	}
	switch count {
	case 0:
		return MatchNone, nil
	case 1:
		return MatchPartial, best
	}
	return MatchAmbiguous, best
}

// PartialMatches lists the names of visible channels whose stripped name
// starts with query, filtered by mode.
func (r *Registry) PartialMatches(query string, actor gamedb.DBRef, mode Mode) []string {
	clean := normalizeQuery(query)
	var names []string
	for _, c := range r.Channels() {
		if !r.CanSee(c, actor) {
			continue
		}
		on := c.IsMember(actor)
		if (mode == ModeMember && !on) || (mode == ModeNonMember && on) {
			continue
		}
		if hasPrefixFold(c.PlainName(), clean) {
			names = append(names, c.Name())
		}
	}
	return names
}

// List returns the channels visible to actor whose stripped name starts
// with prefix, in name order.
func (r *Registry) List(actor gamedb.DBRef, prefix string) []*Channel {
	prefix = normalizeQuery(prefix)
	var out []*Channel
	for _, c := range r.Channels() {
		if hasPrefixFold(c.PlainName(), prefix) && r.CanSee(c, actor) {
			out = append(out, c)
		}
	}
	return out
}

// Stats summarizes the registry for metrics.
type Stats struct {
	Channels int
	Members  int
	Messages int
}

// Stats returns channel, membership and message totals.
func (r *Registry) Stats() Stats {
	var s Stats
	for _, c := range r.Channels() {
		s.Channels++
		c.mu.RLock()
		s.Members += len(c.roster)
		s.Messages += c.numMsgs
		c.mu.RUnlock()
	}
	return s
}

func (r *Registry) String() string {
	s := r.Stats()
	return fmt.Sprintf("chat registry: %d channels, %d memberships", s.Channels, s.Members)
}
